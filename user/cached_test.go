package user

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kengibson1111/go-user-cache/cache"
	"github.com/kengibson1111/go-user-cache/internal/cachetest"
)

// memRepo is a map-backed Repository that counts reads.
type memRepo struct {
	mu     sync.Mutex
	users  map[int64]User
	nextID int64
	reads  map[string]int
	err    error
}

func newMemRepo() *memRepo {
	return &memRepo{users: make(map[int64]User), reads: make(map[string]int)}
}

func (m *memRepo) readCount(op string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reads[op]
}

func (m *memRepo) Create(_ context.Context, u *User) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	m.nextID++
	u.ID = m.nextID
	m.users[u.ID] = *u
	out := *u
	return &out, nil
}

func (m *memRepo) FindByID(_ context.Context, id int64) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reads["id"]++
	if m.err != nil {
		return nil, m.err
	}
	u, ok := m.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &u, nil
}

func (m *memRepo) FindByEmail(_ context.Context, email string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reads["email"]++
	for _, u := range m.users {
		if !u.IsDeleted && strings.EqualFold(u.Email, strings.TrimSpace(email)) {
			return &u, nil
		}
	}
	return nil, ErrNotFound
}

func (m *memRepo) FindAll(_ context.Context, activeOnly bool) ([]User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reads["all"]++
	out := []User{}
	for id := int64(1); id <= m.nextID; id++ {
		if u, ok := m.users[id]; ok && (!activeOnly || !u.IsDeleted) {
			out = append(out, u)
		}
	}
	return out, nil
}

func (m *memRepo) Count(_ context.Context, activeOnly bool) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reads["count"]++
	var n int64
	for _, u := range m.users {
		if !activeOnly || !u.IsDeleted {
			n++
		}
	}
	return n, nil
}

func (m *memRepo) Update(_ context.Context, u *User) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.users[u.ID]
	if !ok {
		return nil, ErrNotFound
	}
	existing.FirstName = u.FirstName
	existing.LastName = u.LastName
	existing.Email = u.Email
	m.users[u.ID] = existing
	return &existing, nil
}

func (m *memRepo) SoftDelete(_ context.Context, id int64) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	existing.IsDeleted = true
	m.users[id] = existing
	return &existing, nil
}

func newCachedFixture(t *testing.T, opts ...CachedOption) (*CachedRepository, *memRepo, *cachetest.Store) {
	t.Helper()
	store := cachetest.New()
	svc, err := cache.New(store)
	require.NoError(t, err)
	base := newMemRepo()
	return NewCachedRepository(base, svc, opts...), base, store
}

func TestCachedRepository_FindByIDCachesHits(t *testing.T) {
	ctx := context.Background()
	repo, base, store := newCachedFixture(t)

	created, err := repo.Create(ctx, &User{FirstName: "Ann", LastName: "Lee", Email: "ann@example.com"})
	require.NoError(t, err)

	got, err := repo.FindByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Ann", got.FirstName)
	assert.Zero(t, base.readCount("id"), "create populates users:id:<id>")

	exists, err := store.Exists(ctx, "users:id:1")
	require.NoError(t, err)
	assert.True(t, exists)

	_, _ = store.Delete(ctx, "users:id:1")
	_, err = repo.FindByID(ctx, created.ID)
	require.NoError(t, err)
	_, err = repo.FindByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, base.readCount("id"), "second lookup is served from cache")
}

func TestCachedRepository_NotFound(t *testing.T) {
	ctx := context.Background()

	t.Run("without negative caching", func(t *testing.T) {
		repo, base, store := newCachedFixture(t)
		for i := 0; i < 2; i++ {
			_, err := repo.FindByID(ctx, 77)
			assert.ErrorIs(t, err, ErrNotFound)
		}
		assert.Equal(t, 2, base.readCount("id"))
		assert.Zero(t, store.Len())
	})

	t.Run("with negative caching", func(t *testing.T) {
		repo, base, store := newCachedFixture(t, WithNegativeTTL(time.Minute))
		for i := 0; i < 3; i++ {
			_, err := repo.FindByID(ctx, 77)
			assert.ErrorIs(t, err, ErrNotFound)
		}
		assert.Equal(t, 1, base.readCount("id"))
		assert.InDelta(t, time.Minute.Seconds(), store.TTL("users:missing:id:77").Seconds(), 5)

		exists, err := store.Exists(ctx, "users:id:77")
		require.NoError(t, err)
		assert.False(t, exists, "not-found is never stored under the id key")
	})

	t.Run("create clears the marker", func(t *testing.T) {
		repo, _, store := newCachedFixture(t, WithNegativeTTL(time.Minute))
		_, err := repo.FindByID(ctx, 1)
		require.ErrorIs(t, err, ErrNotFound)

		created, err := repo.Create(ctx, &User{FirstName: "Bo", LastName: "Ng"})
		require.NoError(t, err)
		require.Equal(t, int64(1), created.ID)

		exists, _ := store.Exists(ctx, "users:missing:id:1")
		assert.False(t, exists)
		got, err := repo.FindByID(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, "Bo", got.FirstName)
	})
}

func TestCachedRepository_NullPayloadFallsThrough(t *testing.T) {
	ctx := context.Background()
	repo, base, store := newCachedFixture(t)
	require.NoError(t, store.Set(ctx, "users:id:7", []byte("null"), 0))

	_, err := repo.FindByID(ctx, 7)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 1, base.readCount("id"), "a null payload is a miss")

	resp, err := NewService(repo, nil).GetByID(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, resp.Status)
	assert.Equal(t, "Failed!", resp.Message)
	assert.Nil(t, resp.Data)
	assert.Equal(t, 2, base.readCount("id"))
}

func TestCachedRepository_FindAllAndCount(t *testing.T) {
	ctx := context.Background()
	repo, base, _ := newCachedFixture(t)

	n, err := repo.Count(ctx, true)
	require.NoError(t, err)
	assert.Zero(t, n)
	n, err = repo.Count(ctx, true)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, 1, base.readCount("count"), "a cached zero count is a hit")

	users, err := repo.FindAll(ctx, true)
	require.NoError(t, err)
	assert.Empty(t, users)
	_, err = repo.FindAll(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, 1, base.readCount("all"))

	_, err = repo.FindAll(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, 2, base.readCount("all"), "unfiltered list bypasses the cache")

	_, err = repo.Create(ctx, &User{FirstName: "Cy", LastName: "Oh"})
	require.NoError(t, err)

	users, err = repo.FindAll(ctx, true)
	require.NoError(t, err)
	assert.Len(t, users, 1, "create invalidates users:all")
	n, err = repo.Count(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n, "create invalidates users:count")
}

func TestCachedRepository_FindByEmail(t *testing.T) {
	ctx := context.Background()
	repo, base, _ := newCachedFixture(t)
	_, err := repo.Create(ctx, &User{FirstName: "Di", LastName: "Po", Email: "di@example.com"})
	require.NoError(t, err)

	for _, email := range []string{"di@example.com", " DI@example.com", "Di@Example.Com"} {
		got, err := repo.FindByEmail(ctx, email)
		require.NoError(t, err)
		assert.Equal(t, "Di", got.FirstName)
	}
	assert.Equal(t, 1, base.readCount("email"), "normalised emails share one entry")
}

func TestCachedRepository_FindByEmailBypassesUnkeyableInput(t *testing.T) {
	ctx := context.Background()
	repo, base, store := newCachedFixture(t)

	for _, email := range []string{"", "   ", strings.Repeat("a", 250) + "@example.com"} {
		_, err := repo.FindByEmail(ctx, email)
		assert.ErrorIs(t, err, ErrNotFound)
	}
	assert.Equal(t, 3, base.readCount("email"))
	assert.Zero(t, store.TotalCalls(), "nothing reaches the cache")
}

func TestCachedRepository_Update(t *testing.T) {
	ctx := context.Background()
	repo, _, store := newCachedFixture(t)
	created, err := repo.Create(ctx, &User{FirstName: "Ed", LastName: "Ko", Email: "ed@example.com"})
	require.NoError(t, err)
	_, err = repo.FindByEmail(ctx, "ed@example.com")
	require.NoError(t, err)
	_, err = repo.FindAll(ctx, true)
	require.NoError(t, err)

	_, err = repo.Update(ctx, &User{ID: created.ID, FirstName: "Eddie", LastName: "Ko", Email: "eddie@example.com"})
	require.NoError(t, err)

	got, err := repo.FindByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Eddie", got.FirstName, "users:id:<id> is refreshed")

	for _, key := range []string{"users:email:ed@example.com", "users:all"} {
		exists, err := store.Exists(ctx, key)
		require.NoError(t, err)
		assert.False(t, exists, key)
	}

	_, err = repo.FindByEmail(ctx, "ed@example.com")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = repo.Update(ctx, &User{ID: 99, FirstName: "X", LastName: "Y"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCachedRepository_SoftDelete(t *testing.T) {
	ctx := context.Background()
	repo, _, store := newCachedFixture(t)
	created, err := repo.Create(ctx, &User{FirstName: "Fay", LastName: "Wu", Email: "fay@example.com"})
	require.NoError(t, err)
	_, err = repo.FindAll(ctx, true)
	require.NoError(t, err)
	_, err = repo.Count(ctx, true)
	require.NoError(t, err)

	_, err = repo.SoftDelete(ctx, created.ID)
	require.NoError(t, err)

	for _, key := range []string{"users:id:1", "users:all", "users:count", "users:email:fay@example.com"} {
		exists, err := store.Exists(ctx, key)
		require.NoError(t, err)
		assert.False(t, exists, key)
	}

	users, err := repo.FindAll(ctx, true)
	require.NoError(t, err)
	assert.Empty(t, users)

	_, err = repo.SoftDelete(ctx, 404)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCachedRepository_CacheDownFallsBack(t *testing.T) {
	ctx := context.Background()
	repo, base, store := newCachedFixture(t)
	store.SetDown(true)

	created, err := repo.Create(ctx, &User{FirstName: "Gil", LastName: "Ma"})
	require.NoError(t, err, "cache write failures never fail the base write")

	got, err := repo.FindByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Gil", got.FirstName)

	_, err = repo.SoftDelete(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, base.readCount("id"))

	_, err = repo.InvalidateAll(ctx)
	assert.True(t, cache.IsBulkInvalidationError(err))
}

func TestCachedRepository_BaseErrorsPassThrough(t *testing.T) {
	ctx := context.Background()
	repo, base, store := newCachedFixture(t, WithNegativeTTL(time.Minute))
	dbErr := errors.New("database locked")
	base.err = dbErr

	_, err := repo.FindByID(ctx, 5)
	assert.ErrorIs(t, err, dbErr)
	assert.Zero(t, store.Len(), "errors other than not-found are not remembered")
}

func TestCachedRepository_InvalidateAll(t *testing.T) {
	ctx := context.Background()
	repo, _, store := newCachedFixture(t)
	for _, name := range []string{"A", "B", "C"} {
		_, err := repo.Create(ctx, &User{FirstName: name, LastName: "Z"})
		require.NoError(t, err)
	}
	_, err := repo.FindAll(ctx, true)
	require.NoError(t, err)
	require.NoError(t, store.Set(ctx, "sessions:1", []byte("x"), 0))

	result, err := repo.InvalidateAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(4), result.KeysDeleted)
	assert.Equal(t, 1, store.Len())
}

func TestCachedRepository_Codecs(t *testing.T) {
	ctx := context.Background()
	store := cachetest.New()
	svc, err := cache.New(store)
	require.NoError(t, err)

	repo := NewCachedRepository(newMemRepo(), svc,
		WithTTL(10*time.Minute),
		WithCodecs(cache.Msgpack[*User]{}, cache.Msgpack[[]User]{}, cache.Msgpack[int64]{}))

	created, err := repo.Create(ctx, &User{FirstName: "Hal", LastName: "Yu", CreatedOn: time.Now().UTC()})
	require.NoError(t, err)
	assert.InDelta(t, (10 * time.Minute).Seconds(), store.TTL("users:id:1").Seconds(), 5)

	got, err := repo.FindByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Hal", got.FirstName)
	assert.True(t, created.CreatedOn.Equal(got.CreatedOn))
}
