package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kengibson1111/go-user-cache/internal"
)

// Service is the cache-aside policy layer over a Store. Reads fail open
// (a store error is a miss), writes and invalidations report failures to
// the caller, who treats them as non-fatal. It holds no locks; concurrent
// calls on the same key are ordered by the store.
type Service struct {
	store      Store
	keys       KeyNamer
	log        *zap.Logger
	metrics    *Metrics
	defaultTTL time.Duration
	scanCount  int64
	batchSize  int
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.log = l
		}
	}
}

// WithMetrics sets the Prometheus counters to report to.
func WithMetrics(m *Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithKeyNamer replaces the key namer.
func WithKeyNamer(kn KeyNamer) Option {
	return func(s *Service) { s.keys = kn }
}

// WithDefaultTTL sets the expiry used when a write passes ttl <= 0.
func WithDefaultTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.defaultTTL = ttl
		}
	}
}

// WithScanCount sets the SCAN page size used by RemoveByPattern.
func WithScanCount(n int64) Option {
	return func(s *Service) {
		if n > 0 {
			s.scanCount = n
		}
	}
}

// WithBatchSize sets the DEL batch size used by RemoveByPattern.
func WithBatchSize(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.batchSize = n
		}
	}
}

// New creates a Service over store.
func New(store Store, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, internal.NewValidationError("store cannot be nil", nil)
	}

	s := &Service{
		store:      store,
		keys:       internal.NewKeyNamer(),
		log:        zap.NewNop(),
		defaultTTL: DefaultTTL,
		scanCount:  DefaultScanCount,
		batchSize:  DefaultBatchSize,
	}
	for _, opt := range opts {
		opt(s)
	}

	return s, nil
}

// NewRedisService creates a Service backed by a new Redis connection pool.
// The pool is shared by every call and released by Close.
func NewRedisService(config *RedisConfig, opts ...Option) (*Service, error) {
	client, err := internal.NewRedisClient(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create Redis client: %w", err)
	}

	return New(client, opts...)
}

// Keys returns the key namer used by the service.
func (s *Service) Keys() KeyNamer {
	return s.keys
}

// Logger returns the service logger.
func (s *Service) Logger() *zap.Logger {
	return s.log
}

// getRaw reads key, turning every store failure into a miss.
func (s *Service) getRaw(ctx context.Context, key string) ([]byte, bool) {
	data, ok, err := s.store.Get(ctx, key)
	if err != nil {
		s.metrics.storeError("get")
		s.log.Warn("cache read failed, treating as miss", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	return data, ok
}

// setRaw writes an encoded payload.
func (s *Service) setRaw(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = s.defaultTTL
	}

	if err := s.store.Set(ctx, key, data, ttl); err != nil {
		s.metrics.storeError("set")
		s.metrics.writeFailure()
		s.log.Error("failed to set cache", zap.String("key", key), zap.Error(err))
		return internal.NewCacheWriteFailedError(key, "failed to set cache", err)
	}

	s.log.Debug("cached value", zap.String("key", key), zap.Duration("ttl", ttl))
	return nil
}

// Remove deletes one key and reports whether it existed.
// A missing key is (false, nil); a store failure is CacheWriteFailed.
func (s *Service) Remove(ctx context.Context, key string) (bool, error) {
	if err := s.keys.ValidateKey(key); err != nil {
		return false, err
	}

	deleted, err := s.store.Delete(ctx, key)
	if err != nil {
		s.metrics.storeError("del")
		s.metrics.writeFailure()
		s.log.Error("failed to remove key", zap.String("key", key), zap.Error(err))
		return false, internal.NewCacheWriteFailedError(key, "failed to remove key", err)
	}

	if deleted {
		s.metrics.invalidated(1)
	}
	s.log.Debug("key removal", zap.String("key", key), zap.Bool("deleted", deleted))
	return deleted, nil
}

// RemoveKeys deletes several known keys with one DEL and returns how many existed.
func (s *Service) RemoveKeys(ctx context.Context, keys ...string) (int64, error) {
	for _, key := range keys {
		if err := s.keys.ValidateKey(key); err != nil {
			return 0, err
		}
	}
	if len(keys) == 0 {
		return 0, nil
	}

	n, err := s.store.DeleteMany(ctx, keys)
	if err != nil {
		s.metrics.storeError("del")
		s.metrics.writeFailure()
		s.log.Error("failed to remove keys", zap.Strings("keys", keys), zap.Error(err))
		return 0, internal.NewCacheWriteFailedError("", fmt.Sprintf("failed to remove %d keys", len(keys)), err)
	}

	s.metrics.invalidated(n)
	s.log.Debug("keys removed", zap.Strings("keys", keys), zap.Int64("deleted", n))
	return n, nil
}

// RemoveByPattern deletes every key starting with prefix using the
// service's scan count and batch size.
func (s *Service) RemoveByPattern(ctx context.Context, prefix string) error {
	_, err := s.RemoveByPatternWithOptions(ctx, prefix, &RemovalOptions{
		BatchSize: s.batchSize,
		ScanCount: s.scanCount,
	})
	return err
}

// RemoveByPatternWithOptions scans prefix+"*" in pages of ScanCount,
// collects the matches and deletes them in batches of BatchSize. Nil
// options, or zero ScanCount and BatchSize, use the service settings.
// A scan or batch failure returns BulkInvalidationFailed together with the
// partial result; batches already deleted stay deleted.
func (s *Service) RemoveByPatternWithOptions(ctx context.Context, prefix string, options *RemovalOptions) (*RemovalResult, error) {
	if err := s.keys.ValidateKey(prefix); err != nil {
		return nil, err
	}

	if options == nil {
		options = &RemovalOptions{}
	}
	batchSize := options.BatchSize
	if batchSize <= 0 {
		batchSize = s.batchSize
	}
	scanCount := options.ScanCount
	if scanCount <= 0 {
		scanCount = s.scanCount
	}

	if options.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, options.Timeout)
		defer cancel()
	}

	start := time.Now()
	result := &RemovalResult{}
	defer func() { result.Duration = time.Since(start) }()

	scanner := internal.NewScanner(s.store, prefix, scanCount)
	var keys []string
	for key, err := range scanner.Keys(ctx) {
		if err != nil {
			result.PagesScanned = scanner.Pages()
			return result, s.bulkFailure(prefix, "failed to scan keys", err)
		}
		keys = append(keys, key)
		if options.MaxKeys > 0 && int64(len(keys)) >= options.MaxKeys {
			break
		}
	}
	result.PagesScanned = scanner.Pages()
	result.KeysScanned = int64(len(keys))

	if options.DryRun || len(keys) == 0 {
		s.log.Debug("pattern removal found keys", zap.String("prefix", prefix),
			zap.Int64("scanned", result.KeysScanned), zap.Bool("dry_run", options.DryRun))
		return result, nil
	}

	for i := 0; i < len(keys); i += batchSize {
		end := min(i+batchSize, len(keys))
		n, err := s.store.DeleteMany(ctx, keys[i:end])
		if err != nil {
			return result, s.bulkFailure(prefix, fmt.Sprintf("failed to delete batch %d", result.BatchesUsed+1), err)
		}
		result.BatchesUsed++
		result.KeysDeleted += n
		s.metrics.invalidated(n)
	}

	s.log.Debug("removed keys matching pattern", zap.String("prefix", prefix),
		zap.Int64("deleted", result.KeysDeleted), zap.Int("batches", result.BatchesUsed))
	return result, nil
}

func (s *Service) bulkFailure(prefix, message string, err error) error {
	s.metrics.storeError("remove_by_pattern")
	s.metrics.writeFailure()
	s.log.Error("failed to remove keys by pattern", zap.String("prefix", prefix), zap.Error(err))
	return internal.NewBulkInvalidationError(prefix, message, err)
}

// Exists reports whether key is cached. Store failures read as false;
// the only error returned is InvalidKey.
func (s *Service) Exists(ctx context.Context, key string) (bool, error) {
	if err := s.keys.ValidateKey(key); err != nil {
		return false, err
	}

	exists, err := s.store.Exists(ctx, key)
	if err != nil {
		s.metrics.storeError("exists")
		s.log.Warn("failed to check existence", zap.String("key", key), zap.Error(err))
		return false, nil
	}
	return exists, nil
}

// IsConnected pings the store. Any failure reads as false.
func (s *Service) IsConnected(ctx context.Context) bool {
	if err := s.store.Ping(ctx); err != nil {
		s.metrics.storeError("ping")
		s.log.Warn("cache connection check failed", zap.Error(err))
		return false
	}
	return true
}

// Info returns connection diagnostics when the store provides them.
func (s *Service) Info(ctx context.Context) map[string]interface{} {
	type infoer interface {
		Info(ctx context.Context) (map[string]interface{}, error)
	}
	i, ok := s.store.(infoer)
	if !ok {
		return nil
	}
	info, err := i.Info(ctx)
	if err != nil {
		return nil
	}
	return info
}

// Close releases the store connection.
func (s *Service) Close() error {
	if err := s.store.Close(); err != nil {
		s.log.Error("error closing cache store", zap.Error(err))
		return err
	}
	s.log.Debug("cache service closed")
	return nil
}

// isCanceled reports whether err came from the caller's context.
func isCanceled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
