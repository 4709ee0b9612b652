package internal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand/v2"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"
)

// Config holds Redis connection configuration parameters
type Config struct {
	// Redis connection settings
	RedisAddr     string `json:"redis_addr" yaml:"addr"`         // Redis server address (host:port)
	RedisPassword string `json:"redis_password" yaml:"password"` // Redis password (optional)
	RedisDB       int    `json:"redis_db" yaml:"db"`             // Redis database number

	// Connection pool settings
	MaxRetries   int           `json:"max_retries" yaml:"max_retries"`     // Maximum number of retries
	DialTimeout  time.Duration `json:"dial_timeout" yaml:"dial_timeout"`   // Timeout for establishing connection
	ReadTimeout  time.Duration `json:"read_timeout" yaml:"read_timeout"`   // Timeout for socket reads
	WriteTimeout time.Duration `json:"write_timeout" yaml:"write_timeout"` // Timeout for socket writes
	PoolSize     int           `json:"pool_size" yaml:"pool_size"`         // Maximum number of socket connections

	// Resilience settings
	RetryConfig   *RetryConfig   `json:"retry_config" yaml:"retry"`     // Retry configuration for operations
	BreakerConfig *BreakerConfig `json:"breaker_config" yaml:"breaker"` // Circuit breaker; nil disables it
}

// RetryConfig defines retry behavior with exponential backoff
type RetryConfig struct {
	MaxAttempts  int           `json:"max_attempts" yaml:"max_attempts"`   // Maximum number of retry attempts
	InitialDelay time.Duration `json:"initial_delay" yaml:"initial_delay"` // Initial delay before first retry
	MaxDelay     time.Duration `json:"max_delay" yaml:"max_delay"`         // Maximum delay between retries
	Multiplier   float64       `json:"multiplier" yaml:"multiplier"`       // Backoff multiplier
	Jitter       bool          `json:"jitter" yaml:"jitter"`               // Whether to add random jitter
	RetryableOps []string      `json:"retryable_ops" yaml:"retryable_ops"` // Operations that should be retried
}

// BreakerConfig configures the circuit breaker wrapped around store calls.
type BreakerConfig struct {
	Name             string        `json:"name" yaml:"name"`
	MaxRequests      uint32        `json:"max_requests" yaml:"max_requests"` // requests allowed while half-open
	Interval         time.Duration `json:"interval" yaml:"interval"`         // closed-state count reset period
	Timeout          time.Duration `json:"timeout" yaml:"timeout"`           // open-state duration before half-open
	FailureThreshold float64       `json:"failure_threshold" yaml:"failure_threshold"`
	MinRequests      uint32        `json:"min_requests" yaml:"min_requests"`
}

// DefaultRetryConfig returns a RetryConfig with sensible default values
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxAttempts:  3,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		Multiplier:   2.0,
		Jitter:       true,
		RetryableOps: []string{"ping", "get", "set", "del", "exists", "scan"},
	}
}

// DefaultBreakerConfig returns the breaker settings used when one is enabled.
func DefaultBreakerConfig() *BreakerConfig {
	return &BreakerConfig{
		Name:             "redis",
		MaxRequests:      5,
		Interval:         30 * time.Second,
		Timeout:          10 * time.Second,
		FailureThreshold: 0.8,
		MinRequests:      5,
	}
}

// DefaultConfig returns a Config with sensible default values
func DefaultConfig() *Config {
	return &Config{
		RedisAddr:     "localhost:6379",
		RedisPassword: "",
		RedisDB:       0,
		MaxRetries:    3,
		DialTimeout:   5 * time.Second,
		ReadTimeout:   3 * time.Second,
		WriteTimeout:  3 * time.Second,
		PoolSize:      10,
		RetryConfig:   DefaultRetryConfig(),
	}
}

// Store is the byte-level key-value store consumed by the cache service.
// Get returns (value, true, nil) on hit and (nil, false, nil) on miss.
// Every I/O failure is returned as a StoreUnavailable *CacheError.
type Store interface {
	Ping(ctx context.Context) error
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) (bool, error)
	DeleteMany(ctx context.Context, keys []string) (int64, error)
	Exists(ctx context.Context, key string) (bool, error)
	ScanPage(ctx context.Context, cursor uint64, match string, count int64) ([]string, uint64, error)
	Close() error
}

// RedisClient wraps the go-redis client with retry and circuit breaking
type RedisClient struct {
	client    *redis.Client
	config    *Config
	breaker   *gobreaker.CircuitBreaker
	closeOnce sync.Once
	closeErr  error
}

var _ Store = (*RedisClient)(nil)

// NewRedisClient creates a new Redis client with the provided configuration.
// No connection is dialled here: go-redis connects lazily, so an unreachable
// server at startup degrades the cache instead of aborting the process.
func NewRedisClient(config *Config) (*RedisClient, error) {
	if config == nil {
		config = DefaultConfig()
	}

	if err := ValidateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	opts := &redis.Options{
		Addr:         config.RedisAddr,
		Password:     config.RedisPassword,
		DB:           config.RedisDB,
		MaxRetries:   config.MaxRetries,
		DialTimeout:  config.DialTimeout,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
		PoolSize:     config.PoolSize,
	}

	rc := &RedisClient{
		client: redis.NewClient(opts),
		config: config,
	}
	if config.BreakerConfig != nil {
		rc.breaker = newBreaker(config.BreakerConfig)
	}

	return rc, nil
}

func newBreaker(cfg *BreakerConfig) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= cfg.FailureThreshold
		},
		// a miss is an answer, not a failure
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, redis.Nil)
		},
	})
}

// ValidateConfig validates the Redis configuration parameters
func ValidateConfig(config *Config) error {
	if config.RedisAddr == "" {
		return NewValidationError("redis address cannot be empty", nil)
	}

	if config.RedisDB < 0 || config.RedisDB > 15 {
		return NewValidationError(fmt.Sprintf("redis database must be between 0 and 15, got %d", config.RedisDB), nil)
	}

	if config.MaxRetries < 0 {
		return NewValidationError(fmt.Sprintf("max retries cannot be negative, got %d", config.MaxRetries), nil)
	}

	if config.DialTimeout <= 0 {
		return NewValidationError(fmt.Sprintf("dial timeout must be positive, got %v", config.DialTimeout), nil)
	}

	if config.ReadTimeout <= 0 {
		return NewValidationError(fmt.Sprintf("read timeout must be positive, got %v", config.ReadTimeout), nil)
	}

	if config.WriteTimeout <= 0 {
		return NewValidationError(fmt.Sprintf("write timeout must be positive, got %v", config.WriteTimeout), nil)
	}

	if config.PoolSize <= 0 {
		return NewValidationError(fmt.Sprintf("pool size must be positive, got %d", config.PoolSize), nil)
	}

	if config.RetryConfig != nil {
		if err := validateRetryConfig(config.RetryConfig); err != nil {
			return fmt.Errorf("invalid retry configuration: %w", err)
		}
	}

	if config.BreakerConfig != nil {
		if err := validateBreakerConfig(config.BreakerConfig); err != nil {
			return fmt.Errorf("invalid breaker configuration: %w", err)
		}
	}

	return nil
}

// validateRetryConfig validates the retry configuration parameters
func validateRetryConfig(config *RetryConfig) error {
	if config.MaxAttempts < 0 {
		return NewValidationError(fmt.Sprintf("max attempts cannot be negative, got %d", config.MaxAttempts), nil)
	}

	if config.InitialDelay < 0 {
		return NewValidationError(fmt.Sprintf("initial delay cannot be negative, got %v", config.InitialDelay), nil)
	}

	if config.MaxDelay < 0 {
		return NewValidationError(fmt.Sprintf("max delay cannot be negative, got %v", config.MaxDelay), nil)
	}

	if config.Multiplier < 1.0 {
		return NewValidationError(fmt.Sprintf("multiplier must be >= 1.0, got %f", config.Multiplier), nil)
	}

	if config.InitialDelay > config.MaxDelay {
		return NewValidationError(fmt.Sprintf("initial delay (%v) cannot be greater than max delay (%v)", config.InitialDelay, config.MaxDelay), nil)
	}

	return nil
}

func validateBreakerConfig(config *BreakerConfig) error {
	if config.FailureThreshold <= 0 || config.FailureThreshold > 1 {
		return NewValidationError(fmt.Sprintf("failure threshold must be in (0, 1], got %v", config.FailureThreshold), nil)
	}

	if config.Timeout < 0 || config.Interval < 0 {
		return NewValidationError("breaker timeout and interval cannot be negative", nil)
	}

	return nil
}

// Ping checks that Redis answers PONG.
func (rc *RedisClient) Ping(ctx context.Context) error {
	err := rc.execute(ctx, "ping", func() error {
		pong, err := rc.client.Ping(ctx).Result()
		if err != nil {
			return err
		}
		if pong != "PONG" {
			return fmt.Errorf("unexpected ping response: %s", pong)
		}
		return nil
	})
	if err != nil {
		return NewStoreUnavailableError("", "redis health check failed", err)
	}
	return nil
}

// Get returns the raw value stored at key.
func (rc *RedisClient) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var data []byte
	err := rc.execute(ctx, "get", func() error {
		val, err := rc.client.Get(ctx, key).Bytes()
		if err != nil {
			return err
		}
		data = val
		return nil
	})
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, NewStoreUnavailableError(key, "get failed", err)
	}
	return data, true, nil
}

// Set stores value at key. A non-positive ttl stores without expiry.
func (rc *RedisClient) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl < 0 {
		ttl = 0
	}
	err := rc.execute(ctx, "set", func() error {
		return rc.client.Set(ctx, key, value, ttl).Err()
	})
	if err != nil {
		return NewStoreUnavailableError(key, "set failed", err)
	}
	return nil
}

// Delete removes key and reports whether it existed.
func (rc *RedisClient) Delete(ctx context.Context, key string) (bool, error) {
	n, err := rc.del(ctx, key)
	if err != nil {
		return false, NewStoreUnavailableError(key, "delete failed", err)
	}
	return n > 0, nil
}

// DeleteMany removes keys with a single DEL and returns how many existed.
func (rc *RedisClient) DeleteMany(ctx context.Context, keys []string) (int64, error) {
	if len(keys) == 0 {
		return 0, nil
	}
	n, err := rc.del(ctx, keys...)
	if err != nil {
		return 0, NewStoreUnavailableError("", fmt.Sprintf("delete of %d keys failed", len(keys)), err)
	}
	return n, nil
}

func (rc *RedisClient) del(ctx context.Context, keys ...string) (int64, error) {
	var n int64
	err := rc.execute(ctx, "del", func() error {
		val, err := rc.client.Del(ctx, keys...).Result()
		if err != nil {
			return err
		}
		n = val
		return nil
	})
	return n, err
}

// Exists reports whether key is present.
func (rc *RedisClient) Exists(ctx context.Context, key string) (bool, error) {
	var n int64
	err := rc.execute(ctx, "exists", func() error {
		val, err := rc.client.Exists(ctx, key).Result()
		if err != nil {
			return err
		}
		n = val
		return nil
	})
	if err != nil {
		return false, NewStoreUnavailableError(key, "exists failed", err)
	}
	return n > 0, nil
}

// ScanPage runs one SCAN step. A returned cursor of 0 ends the iteration.
func (rc *RedisClient) ScanPage(ctx context.Context, cursor uint64, match string, count int64) ([]string, uint64, error) {
	var (
		keys []string
		next uint64
	)
	err := rc.execute(ctx, "scan", func() error {
		k, c, err := rc.client.Scan(ctx, cursor, match, count).Result()
		if err != nil {
			return err
		}
		keys, next = k, c
		return nil
	})
	if err != nil {
		return nil, 0, NewStoreUnavailableError(match, "scan failed", err)
	}
	return keys, next, nil
}

// Client returns the underlying Redis client for direct access
func (rc *RedisClient) Client() *redis.Client {
	return rc.client
}

// Config returns the Redis client configuration
func (rc *RedisClient) Config() *Config {
	return rc.config
}

// Close closes the Redis client connection. Repeated calls are no-ops.
func (rc *RedisClient) Close() error {
	rc.closeOnce.Do(func() {
		if err := rc.client.Close(); err != nil && !errors.Is(err, redis.ErrClosed) {
			rc.closeErr = err
		}
	})
	return rc.closeErr
}

// Info returns information about the current Redis connection
func (rc *RedisClient) Info(ctx context.Context) (map[string]interface{}, error) {
	info := make(map[string]interface{})

	info["addr"] = rc.config.RedisAddr
	info["db"] = rc.config.RedisDB
	info["pool_size"] = rc.config.PoolSize

	poolStats := rc.client.PoolStats()
	info["pool_hits"] = poolStats.Hits
	info["pool_misses"] = poolStats.Misses
	info["pool_timeouts"] = poolStats.Timeouts
	info["pool_total_conns"] = poolStats.TotalConns
	info["pool_idle_conns"] = poolStats.IdleConns
	info["pool_stale_conns"] = poolStats.StaleConns

	if rc.breaker != nil {
		info["breaker_state"] = rc.breaker.State().String()
	}

	return info, nil
}

// execute runs fn through the circuit breaker, retrying per RetryConfig.
func (rc *RedisClient) execute(ctx context.Context, operation string, fn func() error) error {
	call := fn
	if rc.breaker != nil {
		call = func() error {
			_, err := rc.breaker.Execute(func() (interface{}, error) {
				return nil, fn()
			})
			return err
		}
	}
	return executeWithRetry(ctx, rc.config.RetryConfig, operation, call)
}

var retryableMessages = []string{
	"connection refused",
	"connection reset",
	"connection timeout",
	"network is unreachable",
	"no route to host",
	"broken pipe",
	"i/o timeout",
	"loading",
	"busy",
	"tryagain",
}

// isRetryableError determines if an error should trigger a retry
func isRetryableError(err error) bool {
	if err == nil || errors.Is(err, redis.Nil) {
		return false
	}

	// cancellation belongs to the caller; an open breaker should fail fast
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, io.EOF) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, s := range retryableMessages {
		if strings.Contains(msg, s) {
			return true
		}
	}

	return false
}

func isOperationRetryable(config *RetryConfig, operation string) bool {
	if config == nil {
		return false
	}

	for _, op := range config.RetryableOps {
		if op == operation {
			return true
		}
	}
	return false
}

// calculateBackoffDelay calculates the delay for the next retry attempt
func calculateBackoffDelay(config *RetryConfig, attempt int) time.Duration {
	if config == nil {
		return time.Second
	}

	delay := float64(config.InitialDelay) * math.Pow(config.Multiplier, float64(attempt))

	if delay > float64(config.MaxDelay) {
		delay = float64(config.MaxDelay)
	}

	if config.Jitter {
		jitter := rand.Float64() * 0.1 * delay // 10% jitter
		delay += jitter
	}

	return time.Duration(delay)
}

// executeWithRetry executes a function with retry logic
func executeWithRetry(ctx context.Context, config *RetryConfig, operation string, fn func() error) error {
	if !isOperationRetryable(config, operation) || config.MaxAttempts <= 1 {
		return fn()
	}

	var lastErr error
	maxAttempts := config.MaxAttempts

	for attempt := 0; attempt < maxAttempts; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}

		lastErr = err

		if !isRetryableError(err) {
			return err
		}

		// Don't wait after the last attempt
		if attempt == maxAttempts-1 {
			break
		}

		delay := calculateBackoffDelay(config, attempt)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}

	return fmt.Errorf("operation '%s' failed after %d attempts: %w", operation, maxAttempts, lastErr)
}
