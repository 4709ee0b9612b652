package user

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/kengibson1111/go-user-cache/cache"
	"github.com/kengibson1111/go-user-cache/internal"
)

var _ Repository = (*CachedRepository)(nil)

// CachedRepository decorates a Repository with cache-aside reads and
// write-through invalidation. Cache failures never fail a repository call:
// reads fall back to the base repository and write-side cache errors are
// logged after the base write has already succeeded.
type CachedRepository struct {
	base        Repository
	svc         *cache.Service
	keys        cache.KeyNamer
	user        *cache.Typed[*User]
	list        *cache.Typed[[]User]
	count       *cache.Typed[int64]
	ttl         time.Duration
	negativeTTL time.Duration
	validator   *internal.InputValidator
	log         *zap.Logger
}

// CachedOption configures a CachedRepository.
type CachedOption func(*CachedRepository)

// WithTTL sets the expiry of cached users, lists and counts.
func WithTTL(ttl time.Duration) CachedOption {
	return func(c *CachedRepository) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithNegativeTTL enables not-found markers that live for ttl.
func WithNegativeTTL(ttl time.Duration) CachedOption {
	return func(c *CachedRepository) {
		if ttl > 0 {
			c.negativeTTL = ttl
		}
	}
}

// WithCodecs replaces the JSON codecs used for user, list and count entries.
func WithCodecs(u cache.Codec[*User], l cache.Codec[[]User], n cache.Codec[int64]) CachedOption {
	return func(c *CachedRepository) {
		c.user = cache.NewTyped(c.svc, u)
		c.list = cache.NewTyped(c.svc, l)
		c.count = cache.NewTyped(c.svc, n)
	}
}

// NewCachedRepository wraps base with svc.
func NewCachedRepository(base Repository, svc *cache.Service, opts ...CachedOption) *CachedRepository {
	c := &CachedRepository{
		base:      base,
		svc:       svc,
		keys:      svc.Keys(),
		user:      cache.NewTyped[*User](svc, nil),
		list:      cache.NewTyped[[]User](svc, nil),
		count:     cache.NewTyped[int64](svc, nil),
		ttl:       cache.DefaultTTL,
		validator: internal.NewInputValidator(),
		log:       svc.Logger().Named("user_repository"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FindByID reads users:id:<id>, loading and caching the user on a miss.
// With a negative TTL, a not-found result is remembered under
// users:missing:id:<id> and answered from there until it expires.
func (c *CachedRepository) FindByID(ctx context.Context, id int64) (*User, error) {
	return c.user.GetOrSet(ctx, c.keys.ByIntID(id), func(ctx context.Context) (*User, error) {
		missingKey := c.keys.MissingByIntID(id)
		if c.negativeTTL > 0 {
			if missing, _ := c.svc.Exists(ctx, missingKey); missing {
				return nil, ErrNotFound
			}
		}

		u, err := c.base.FindByID(ctx, id)
		if errors.Is(err, ErrNotFound) && c.negativeTTL > 0 {
			if err := cache.Set(ctx, c.svc, missingKey, true, c.negativeTTL); err != nil {
				c.log.Warn("failed to record missing user", zap.Int64("id", id), zap.Error(err))
			}
		}
		return u, err
	}, c.ttl)
}

// FindByEmail reads users:email:<normalised email>, loading on a miss.
// Emails that cannot be embedded in a key go straight to the base repository.
func (c *CachedRepository) FindByEmail(ctx context.Context, email string) (*User, error) {
	if err := c.validator.ValidateIdentifier(email, "email"); err != nil {
		c.log.Debug("bypassing cache for email lookup", zap.Error(err))
		return c.base.FindByEmail(ctx, email)
	}
	return c.user.GetOrSet(ctx, c.keys.ByEmail(email), func(ctx context.Context) (*User, error) {
		return c.base.FindByEmail(ctx, email)
	}, c.ttl)
}

// FindAll serves the active user list from users:all. The unfiltered list
// is not cached.
func (c *CachedRepository) FindAll(ctx context.Context, activeOnly bool) ([]User, error) {
	if !activeOnly {
		return c.base.FindAll(ctx, false)
	}
	return c.list.GetOrSet(ctx, c.keys.All(), func(ctx context.Context) ([]User, error) {
		return c.base.FindAll(ctx, true)
	}, c.ttl)
}

// Count serves the active user count from users:count.
func (c *CachedRepository) Count(ctx context.Context, activeOnly bool) (int64, error) {
	if !activeOnly {
		return c.base.Count(ctx, false)
	}
	return c.count.GetOrSet(ctx, c.keys.Count(), func(ctx context.Context) (int64, error) {
		return c.base.Count(ctx, true)
	}, c.ttl)
}

// Create persists u, drops the aggregates and any not-found marker for the
// new id, and caches the created user.
func (c *CachedRepository) Create(ctx context.Context, u *User) (*User, error) {
	created, err := c.base.Create(ctx, u)
	if err != nil {
		return nil, err
	}

	c.invalidate(ctx, "create", c.keys.All(), c.keys.Count(), c.keys.MissingByIntID(created.ID), c.keys.ByEmail(created.Email))
	c.store(ctx, created)
	return created, nil
}

// Update persists u and refreshes users:id:<id>. The email entries for the
// previous and the new address are dropped together with the aggregates.
func (c *CachedRepository) Update(ctx context.Context, u *User) (*User, error) {
	previous, err := c.base.FindByID(ctx, u.ID)
	if err != nil {
		return nil, err
	}

	updated, err := c.base.Update(ctx, u)
	if err != nil {
		return nil, err
	}

	c.store(ctx, updated)
	c.invalidate(ctx, "update", c.keys.ByEmail(previous.Email), c.keys.ByEmail(updated.Email), c.keys.All(), c.keys.Count())
	return updated, nil
}

// SoftDelete flags the user deleted and then invalidates its entries. The
// two steps are separate calls; a reader between them can still see the
// cached user until the invalidation lands.
func (c *CachedRepository) SoftDelete(ctx context.Context, id int64) (*User, error) {
	deleted, err := c.base.SoftDelete(ctx, id)
	if err != nil {
		return nil, err
	}

	c.invalidate(ctx, "delete", c.keys.ByIntID(id), c.keys.ByEmail(deleted.Email), c.keys.All(), c.keys.Count())
	return deleted, nil
}

// InvalidateAll removes every user cache entry.
func (c *CachedRepository) InvalidateAll(ctx context.Context) (*cache.RemovalResult, error) {
	return c.svc.RemoveByPatternWithOptions(ctx, c.keys.Prefix(), nil)
}

func (c *CachedRepository) store(ctx context.Context, u *User) {
	if err := c.user.Set(ctx, c.keys.ByIntID(u.ID), u, c.ttl); err != nil {
		c.log.Warn("failed to refresh cached user", zap.Int64("id", u.ID), zap.Error(err))
	}
}

func (c *CachedRepository) invalidate(ctx context.Context, op string, keys ...string) {
	if _, err := c.svc.RemoveKeys(ctx, c.keyable(keys)...); err != nil {
		c.log.Warn("failed to invalidate user cache", zap.String("op", op), zap.Strings("keys", keys), zap.Error(err))
	}
}

// keyable drops duplicate keys and keys the store would reject, such as
// an email entry for an address too long to key.
func (c *CachedRepository) keyable(keys []string) []string {
	seen := make(map[string]struct{}, len(keys))
	out := keys[:0:0]
	for _, k := range keys {
		if _, ok := seen[k]; ok {
			continue
		}
		if c.keys.ValidateKey(k) != nil {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out
}
