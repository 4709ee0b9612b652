package cache

import (
	"time"

	"github.com/kengibson1111/go-user-cache/internal"
)

// Store is the byte-level key-value store the Service coordinates.
type Store = internal.Store

// RedisConfig holds Redis connection configuration parameters.
type RedisConfig = internal.Config

// RedisRetryConfig defines retry behavior with exponential backoff.
type RedisRetryConfig = internal.RetryConfig

// RedisBreakerConfig configures the circuit breaker around store calls.
type RedisBreakerConfig = internal.BreakerConfig

// KeyNamer maps user cache subjects to keys under the "users:" namespace.
type KeyNamer = internal.KeyNamer

// Codec encodes/decodes cached values.
type Codec[T any] = internal.Codec[T]

// JSON is the default, unknown-field tolerant codec.
type JSON[T any] = internal.JSON[T]

// Msgpack is a compact binary codec.
type Msgpack[T any] = internal.Msgpack[T]

// CBOR is a binary codec; build it with NewCBOR.
type CBOR[T any] = internal.CBOR[T]

// CacheError represents a cache-specific error with context.
type CacheError = internal.CacheError

// CacheErrorType classifies a CacheError.
type CacheErrorType = internal.ErrorType

const (
	CacheErrorTypeInvalidKey             = internal.ErrorTypeInvalidKey
	CacheErrorTypeStoreUnavailable       = internal.ErrorTypeStoreUnavailable
	CacheErrorTypeSerialization          = internal.ErrorTypeSerialization
	CacheErrorTypeCacheWriteFailed       = internal.ErrorTypeCacheWriteFailed
	CacheErrorTypeBulkInvalidationFailed = internal.ErrorTypeBulkInvalidationFailed
	CacheErrorTypeValidation             = internal.ErrorTypeValidation
)

var (
	ErrInvalidKey             = internal.ErrInvalidKey
	ErrStoreUnavailable       = internal.ErrStoreUnavailable
	ErrSerialization          = internal.ErrSerialization
	ErrCacheWriteFailed       = internal.ErrCacheWriteFailed
	ErrBulkInvalidationFailed = internal.ErrBulkInvalidationFailed
	ErrValidation             = internal.ErrValidation
)

// DefaultRedisConfig returns a RedisConfig with sensible default values.
func DefaultRedisConfig() *RedisConfig { return internal.DefaultConfig() }

// DefaultRedisRetryConfig returns the default retry policy.
func DefaultRedisRetryConfig() *RedisRetryConfig { return internal.DefaultRetryConfig() }

// DefaultRedisBreakerConfig returns the default circuit breaker settings.
func DefaultRedisBreakerConfig() *RedisBreakerConfig { return internal.DefaultBreakerConfig() }

// NewKeyNamer returns a KeyNamer.
func NewKeyNamer() KeyNamer { return internal.NewKeyNamer() }

// NewCBOR builds a CBOR codec.
func NewCBOR[T any]() (CBOR[T], error) { return internal.NewCBOR[T]() }

// NewCodec returns the codec named "json", "msgpack" or "cbor".
func NewCodec[T any](name string) (Codec[T], error) { return internal.NewCodec[T](name) }

// IsInvalidKeyError reports whether err is an InvalidKey error.
func IsInvalidKeyError(err error) bool { return internal.IsInvalidKeyError(err) }

// IsStoreUnavailableError reports whether err is, or wraps, a connectivity failure.
func IsStoreUnavailableError(err error) bool { return internal.IsStoreUnavailableError(err) }

// IsSerializationError reports whether err is a serialization failure.
func IsSerializationError(err error) bool { return internal.IsSerializationError(err) }

// IsCacheWriteFailedError reports whether err is a cache write failure.
func IsCacheWriteFailedError(err error) bool { return internal.IsCacheWriteFailedError(err) }

// IsBulkInvalidationError reports whether err is a pattern removal failure.
func IsBulkInvalidationError(err error) bool { return internal.IsBulkInvalidationError(err) }

// IsValidationError reports whether err is a validation failure.
func IsValidationError(err error) bool { return internal.IsValidationError(err) }

// RemovalOptions configures pattern removal.
type RemovalOptions struct {
	BatchSize int           `json:"batch_size"` // Number of keys to delete per DEL
	ScanCount int64         `json:"scan_count"` // COUNT hint per SCAN page
	MaxKeys   int64         `json:"max_keys"`   // Maximum number of keys to delete (0 = no limit)
	DryRun    bool          `json:"dry_run"`    // If true, only scan but don't delete
	Timeout   time.Duration `json:"timeout"`    // Timeout for the entire removal (0 = caller's ctx only)
}

// RemovalResult contains information about a pattern removal.
type RemovalResult struct {
	KeysScanned  int64         `json:"keys_scanned"`
	KeysDeleted  int64         `json:"keys_deleted"`
	PagesScanned int           `json:"pages_scanned"`
	BatchesUsed  int           `json:"batches_used"`
	Duration     time.Duration `json:"duration"`
}

const (
	// DefaultBatchSize is the number of keys deleted per DEL during pattern removal.
	DefaultBatchSize = 100
	// DefaultScanCount is the SCAN COUNT hint used during pattern removal.
	DefaultScanCount = internal.DefaultScanCount
	// DefaultTTL applies when a write passes a non-positive ttl.
	DefaultTTL = time.Hour
)

// DefaultRemovalOptions returns the package default batch size and scan count.
func DefaultRemovalOptions() *RemovalOptions {
	return &RemovalOptions{
		BatchSize: DefaultBatchSize,
		ScanCount: DefaultScanCount,
	}
}
