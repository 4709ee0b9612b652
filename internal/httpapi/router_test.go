package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kengibson1111/go-user-cache/cache"
	"github.com/kengibson1111/go-user-cache/internal/cachetest"
	"github.com/kengibson1111/go-user-cache/internal/storage/sqlite"
	"github.com/kengibson1111/go-user-cache/user"
)

type fixture struct {
	handler http.Handler
	store   *cachetest.Store
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db, err := sqlite.Open(context.Background(), ":memory:", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	reg := prometheus.NewRegistry()
	metrics, err := cache.NewMetrics("usercache", reg)
	require.NoError(t, err)

	store := cachetest.New()
	cacheSvc, err := cache.New(store, cache.WithMetrics(metrics))
	require.NoError(t, err)

	repo := user.NewCachedRepository(db, cacheSvc)
	router := NewRouter(Options{
		Service:        user.NewService(repo, nil),
		Cache:          cacheSvc,
		Gatherer:       reg,
		AllowedOrigins: []string{"*"},
	})

	return &fixture{handler: router.Handler(), store: store}
}

func (f *fixture) do(t *testing.T, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) user.Response[T] {
	t.Helper()
	var resp user.Response[T]
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp), rec.Body.String())
	return resp
}

func TestRouter_Health(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok","cache":"connected"}`, rec.Body.String())

	f.store.SetDown(true)
	rec = f.do(t, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code, "a cache outage does not fail health")
	assert.JSONEq(t, `{"status":"ok","cache":"disconnected"}`, rec.Body.String())
}

func TestRouter_UserLifecycle(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/api/users", `{"firstName":"Ann","lastName":"Lee","email":"ann@example.com"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	created := decode[*user.User](t, rec)
	require.True(t, created.OK())
	require.NotNil(t, created.Data)
	id := created.Data.ID
	assert.NotZero(t, id)

	for range 2 {
		rec = f.do(t, http.MethodGet, "/api/users/1", "")
		require.Equal(t, http.StatusOK, rec.Code)
		got := decode[*user.User](t, rec)
		require.True(t, got.OK())
		assert.Equal(t, "Ann", got.Data.FirstName)
	}

	rec = f.do(t, http.MethodGet, "/api/users/by-email?email=ANN@example.com", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decode[*user.User](t, rec).OK())

	rec = f.do(t, http.MethodGet, "/api/users", "")
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[[]user.User](t, rec)
	assert.Len(t, list.Data, 1)

	rec = f.do(t, http.MethodGet, "/api/users/count", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(1), decode[int64](t, rec).Data)

	rec = f.do(t, http.MethodPut, "/api/users/1", `{"firstName":"Anne","lastName":"Lee","email":"anne@example.com"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	updated := decode[*user.User](t, rec)
	require.True(t, updated.OK())
	assert.Equal(t, "Anne", updated.Data.FirstName)

	rec = f.do(t, http.MethodGet, "/api/users/1", "")
	assert.Equal(t, "Anne", decode[*user.User](t, rec).Data.FirstName, "update refreshes the cached entry")

	rec = f.do(t, http.MethodDelete, "/api/users/1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	removed := decode[int](t, rec)
	assert.True(t, removed.OK())
	assert.Equal(t, 1, removed.Data)

	rec = f.do(t, http.MethodGet, "/api/users/count", "")
	assert.Equal(t, int64(0), decode[int64](t, rec).Data)
}

func TestRouter_NotFound(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name   string
		method string
		target string
		body   string
	}{
		{"get", http.MethodGet, "/api/users/77", ""},
		{"by email", http.MethodGet, "/api/users/by-email?email=nobody@example.com", ""},
		{"update", http.MethodPut, "/api/users/77", `{"firstName":"A","lastName":"B"}`},
		{"delete", http.MethodDelete, "/api/users/77", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(t, tt.method, tt.target, tt.body)
			require.Equal(t, http.StatusOK, rec.Code)
			resp := decode[json.RawMessage](t, rec)
			assert.Equal(t, user.StatusFailed, resp.Status)
			assert.Equal(t, "Failed!", resp.Message)
		})
	}
}

func TestRouter_BadRequests(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name    string
		method  string
		target  string
		body    string
		message string
	}{
		{"non numeric id", http.MethodGet, "/api/users/abc", "", "id must be a positive integer"},
		{"zero id", http.MethodDelete, "/api/users/0", "", "id must be a positive integer"},
		{"malformed body", http.MethodPost, "/api/users", `{"firstName":`, "Invalid request body"},
		{"missing names", http.MethodPost, "/api/users", `{"email":"a@example.com"}`, "firstname is required; lastname is required"},
		{"bad email", http.MethodPut, "/api/users/1", `{"firstName":"A","lastName":"B","email":"nope"}`, "email must be a valid email"},
		{"too long", http.MethodPost, "/api/users", `{"firstName":"` + strings.Repeat("x", 51) + `","lastName":"B"}`, "firstname must be at most 50 characters"},
		{"email query", http.MethodGet, "/api/users/by-email?email=", "", "email must be a valid email"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(t, tt.method, tt.target, tt.body)
			require.Equal(t, http.StatusBadRequest, rec.Code)
			resp := decode[json.RawMessage](t, rec)
			assert.Equal(t, user.StatusFailed, resp.Status)
			assert.Contains(t, resp.Message, tt.message)
		})
	}
}

func TestRouter_CacheDownStillServes(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/api/users", `{"firstName":"Ann","lastName":"Lee"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	f.store.SetDown(true)

	rec = f.do(t, http.MethodGet, "/api/users/1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decode[*user.User](t, rec).OK())
}

func TestRouter_InvalidateCache(t *testing.T) {
	f := newFixture(t)

	f.do(t, http.MethodPost, "/api/users", `{"firstName":"Ann","lastName":"Lee"}`)
	f.do(t, http.MethodGet, "/api/users", "")
	require.NotZero(t, f.store.Len())

	rec := f.do(t, http.MethodPost, "/api/cache/invalidate", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decode[*cache.RemovalResult](t, rec)
	require.True(t, resp.OK())
	require.NotNil(t, resp.Data)
	assert.Positive(t, resp.Data.KeysDeleted)
	assert.Zero(t, f.store.Len())
}

func TestRouter_Metrics(t *testing.T) {
	f := newFixture(t)

	f.do(t, http.MethodGet, "/api/users/1", "")

	rec := f.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "usercache_cache_misses_total")
}

func TestRouter_CORSPreflight(t *testing.T) {
	f := newFixture(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/users", nil)
	req.Header.Set("Origin", "https://example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}
