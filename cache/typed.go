package cache

import (
	"context"
	"reflect"
	"time"

	"go.uber.org/zap"

	"github.com/kengibson1111/go-user-cache/internal"
)

// Typed binds a Service to a value type and its codec.
type Typed[T any] struct {
	svc   *Service
	codec Codec[T]
}

// NewTyped returns a typed view of svc. A nil codec means JSON.
func NewTyped[T any](svc *Service, codec Codec[T]) *Typed[T] {
	if codec == nil {
		codec = JSON[T]{}
	}
	return &Typed[T]{svc: svc, codec: codec}
}

// Service returns the underlying Service.
func (t *Typed[T]) Service() *Service {
	return t.svc
}

// Get returns the cached value for key. ok is false on absence, on a store
// failure, on a payload that no longer decodes and on a payload that decodes
// to a nil value such as JSON null. The only error is InvalidKey.
func (t *Typed[T]) Get(ctx context.Context, key string) (T, bool, error) {
	var zero T
	if err := t.svc.keys.ValidateKey(key); err != nil {
		return zero, false, err
	}

	data, ok := t.svc.getRaw(ctx, key)
	if !ok {
		t.svc.metrics.miss()
		return zero, false, nil
	}

	value, err := t.codec.Decode(data)
	if err != nil {
		t.svc.metrics.decodeError()
		t.svc.metrics.miss()
		t.svc.log.Warn("failed to decode cached value, treating as miss", zap.String("key", key), zap.Error(err))
		return zero, false, nil
	}

	if isNil(value) {
		t.svc.metrics.miss()
		t.svc.log.Warn("cached value decoded to nil, treating as miss", zap.String("key", key))
		return zero, false, nil
	}

	t.svc.metrics.hit()
	return value, true, nil
}

// Set encodes value and stores it under key. A ttl <= 0 uses the service
// default. Nil pointers, slices, maps and interfaces are not cached.
func (t *Typed[T]) Set(ctx context.Context, key string, value T, ttl time.Duration) error {
	if err := t.svc.keys.ValidateKey(key); err != nil {
		return err
	}

	if isNil(value) {
		t.svc.log.Warn("refusing to cache nil value", zap.String("key", key))
		return nil
	}

	data, err := t.codec.Encode(value)
	if err != nil {
		return internal.NewSerializationError(key, "failed to encode value", err)
	}

	return t.svc.setRaw(ctx, key, data, ttl)
}

// GetOrSet returns the cached value for key, or calls factory once on a miss
// and caches its result. A hit is returned even when it is the zero value.
// A factory error is returned unchanged and nothing is cached. Failing to
// cache the produced value is logged and does not fail the call.
func (t *Typed[T]) GetOrSet(ctx context.Context, key string, factory func(context.Context) (T, error), ttl time.Duration) (T, error) {
	value, ok, err := t.Get(ctx, key)
	if err != nil {
		return value, err
	}
	if ok {
		return value, nil
	}

	value, err = factory(ctx)
	if err != nil {
		return value, err
	}

	if err := t.Set(ctx, key, value, ttl); err != nil {
		if isCanceled(err) {
			t.svc.log.Debug("cache populate canceled", zap.String("key", key))
		} else {
			t.svc.log.Warn("failed to populate cache", zap.String("key", key), zap.Error(err))
		}
	}

	return value, nil
}

// Get reads key from svc with the JSON codec.
func Get[T any](ctx context.Context, svc *Service, key string) (T, bool, error) {
	return NewTyped[T](svc, nil).Get(ctx, key)
}

// Set writes value under key in svc with the JSON codec.
func Set[T any](ctx context.Context, svc *Service, key string, value T, ttl time.Duration) error {
	return NewTyped[T](svc, nil).Set(ctx, key, value, ttl)
}

// GetOrSet is Typed.GetOrSet with the JSON codec.
func GetOrSet[T any](ctx context.Context, svc *Service, key string, factory func(context.Context) (T, error), ttl time.Duration) (T, error) {
	return NewTyped[T](svc, nil).GetOrSet(ctx, key, factory, ttl)
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Slice, reflect.Map, reflect.Interface, reflect.Chan, reflect.Func:
		return rv.IsNil()
	}
	return false
}
