// Package cache provides a Redis-backed cache-aside layer for user records.
//
// The package coordinates three pieces:
//   - KeyNamer maps users to deterministic keys under the users: namespace
//   - Store is the byte-level Redis client with retry and an optional circuit breaker
//   - Service reads, writes and invalidates entries, and Typed adds a payload codec on top
//
// # Architecture
//
// Keys follow a flat colon separated layout:
//   - Single user: users:id:<id>
//   - User by email: users:email:<normalised email>
//   - Active user list: users:all
//   - Active user count: users:count
//   - Not-found marker: users:missing:id:<id>
//
// # Basic Usage
//
// Create a service with the default configuration:
//
//	config := cache.DefaultRedisConfig()
//	config.RedisAddr = "localhost:6379"
//
//	svc, err := cache.NewRedisService(config, cache.WithDefaultTTL(time.Hour))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer svc.Close()
//
// Read through the cache, loading from the source of truth on a miss:
//
//	u, err := cache.GetOrSet(ctx, svc, svc.Keys().ByIntID(42), func(ctx context.Context) (*user.User, error) {
//	    return repo.FindByID(ctx, 42)
//	}, 10*time.Minute)
//
// A cached zero value is a hit. Nil values are never written.
//
// # Failure Semantics
//
// Reads fail open: a Redis error, a timeout or an undecodable payload is
// logged and reported as a miss, so GetOrSet falls back to the factory.
// Writes are strict: Set and Remove return a CacheWriteFailed error when
// the store rejects them. Factory errors are returned unchanged and
// nothing is cached for them.
//
//	err := cache.Set(ctx, svc, key, value, time.Minute)
//	switch {
//	case cache.IsInvalidKeyError(err):
//	    // empty or malformed key, nothing was sent to Redis
//	case cache.IsSerializationError(err):
//	    // the codec could not encode value
//	case cache.IsCacheWriteFailedError(err):
//	    // Redis rejected the write
//	}
//
// # Pattern Removal
//
// RemoveByPattern deletes every key starting with a prefix. Glob
// metacharacters in the prefix are matched literally. Keys are collected
// with SCAN and deleted in batches:
//
//	result, err := svc.RemoveByPatternWithOptions(ctx, "users:id:", &cache.RemovalOptions{
//	    BatchSize: 100,
//	    ScanCount: 1000,
//	    MaxKeys:   10000,
//	    Timeout:   30 * time.Second,
//	})
//	if cache.IsBulkInvalidationError(err) {
//	    // result still reports the batches that were deleted
//	}
//
// Removal is not atomic with respect to concurrent writers; keys written
// after the scan passes them survive.
//
// # Codecs
//
// JSON is the default payload codec. Msgpack and CBOR are available
// through NewCodec("msgpack") and NewCodec("cbor"); all three honour json
// struct tags.
//
// # Thread Safety
//
// A Service and its Typed views are safe for concurrent use and share one
// Redis connection pool.
package cache
