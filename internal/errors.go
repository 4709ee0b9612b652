package internal

import (
	"errors"
	"fmt"
)

// ErrorType represents the type of cache error
type ErrorType int

const (
	// ErrorTypeInvalidKey indicates an empty or malformed cache key, rejected before any I/O
	ErrorTypeInvalidKey ErrorType = iota + 1
	// ErrorTypeStoreUnavailable indicates a connection, timeout or protocol failure talking to Redis
	ErrorTypeStoreUnavailable
	// ErrorTypeSerialization indicates a payload could not be encoded or decoded
	ErrorTypeSerialization
	// ErrorTypeCacheWriteFailed indicates a set or delete did not reach the store
	ErrorTypeCacheWriteFailed
	// ErrorTypeBulkInvalidationFailed indicates a pattern removal stopped part way
	ErrorTypeBulkInvalidationFailed
	// ErrorTypeValidation indicates input or configuration validation failure
	ErrorTypeValidation
)

// String returns the string representation of ErrorType
func (e ErrorType) String() string {
	switch e {
	case ErrorTypeInvalidKey:
		return "INVALID_KEY"
	case ErrorTypeStoreUnavailable:
		return "STORE_UNAVAILABLE"
	case ErrorTypeSerialization:
		return "SERIALIZATION"
	case ErrorTypeCacheWriteFailed:
		return "CACHE_WRITE_FAILED"
	case ErrorTypeBulkInvalidationFailed:
		return "BULK_INVALIDATION_FAILED"
	case ErrorTypeValidation:
		return "VALIDATION"
	default:
		return "UNKNOWN"
	}
}

// CacheError represents a cache-specific error with context
type CacheError struct {
	Type    ErrorType
	Key     string
	Message string
	Cause   error
}

// Error implements the error interface
func (e *CacheError) Error() string {
	msg := fmt.Sprintf("cache error [%s]: %s", e.Type.String(), e.Message)
	if e.Key != "" {
		msg = fmt.Sprintf("cache error [%s] for key '%s': %s", e.Type.String(), e.Key, e.Message)
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap returns the underlying cause error
func (e *CacheError) Unwrap() error {
	return e.Cause
}

// Is reports whether target is a *CacheError of the same Type.
func (e *CacheError) Is(target error) bool {
	if t, ok := target.(*CacheError); ok {
		return e.Type == t.Type
	}
	return false
}

// Sentinels for errors.Is comparisons by type.
var (
	ErrInvalidKey             = &CacheError{Type: ErrorTypeInvalidKey}
	ErrStoreUnavailable       = &CacheError{Type: ErrorTypeStoreUnavailable}
	ErrSerialization          = &CacheError{Type: ErrorTypeSerialization}
	ErrCacheWriteFailed       = &CacheError{Type: ErrorTypeCacheWriteFailed}
	ErrBulkInvalidationFailed = &CacheError{Type: ErrorTypeBulkInvalidationFailed}
	ErrValidation             = &CacheError{Type: ErrorTypeValidation}
)

// NewCacheError creates a new CacheError
func NewCacheError(errType ErrorType, key, message string, cause error) *CacheError {
	return &CacheError{
		Type:    errType,
		Key:     key,
		Message: message,
		Cause:   cause,
	}
}

// NewInvalidKeyError creates a key validation error
func NewInvalidKeyError(key, message string) *CacheError {
	return NewCacheError(ErrorTypeInvalidKey, key, message, nil)
}

// NewStoreUnavailableError creates a connectivity error for the given operation
func NewStoreUnavailableError(key, message string, cause error) *CacheError {
	return NewCacheError(ErrorTypeStoreUnavailable, key, message, cause)
}

// NewSerializationError creates a serialization error
func NewSerializationError(key, message string, cause error) *CacheError {
	return NewCacheError(ErrorTypeSerialization, key, message, cause)
}

// NewCacheWriteFailedError creates a write-path failure error
func NewCacheWriteFailedError(key, message string, cause error) *CacheError {
	return NewCacheError(ErrorTypeCacheWriteFailed, key, message, cause)
}

// NewBulkInvalidationError creates a pattern removal failure error
func NewBulkInvalidationError(prefix, message string, cause error) *CacheError {
	return NewCacheError(ErrorTypeBulkInvalidationFailed, prefix, message, cause)
}

// NewValidationError creates a validation error
func NewValidationError(message string, cause error) *CacheError {
	return NewCacheError(ErrorTypeValidation, "", message, cause)
}

func isType(err error, t ErrorType) bool {
	var cacheErr *CacheError
	if errors.As(err, &cacheErr) {
		return cacheErr.Type == t
	}
	return false
}

// IsInvalidKeyError checks if the error is an invalid key error
func IsInvalidKeyError(err error) bool {
	return isType(err, ErrorTypeInvalidKey)
}

// IsStoreUnavailableError checks if the error, or any error it wraps, is a store connectivity error
func IsStoreUnavailableError(err error) bool {
	return errors.Is(err, ErrStoreUnavailable)
}

// IsSerializationError checks if the error is a serialization error
func IsSerializationError(err error) bool {
	return isType(err, ErrorTypeSerialization)
}

// IsCacheWriteFailedError checks if the error is a cache write failure
func IsCacheWriteFailedError(err error) bool {
	return isType(err, ErrorTypeCacheWriteFailed)
}

// IsBulkInvalidationError checks if the error is a bulk invalidation failure
func IsBulkInvalidationError(err error) bool {
	return isType(err, ErrorTypeBulkInvalidationFailed)
}

// IsValidationError checks if the error is a validation error
func IsValidationError(err error) bool {
	return isType(err, ErrorTypeValidation)
}
