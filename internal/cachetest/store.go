// Package cachetest provides an in-memory Store for tests that need real
// cache semantics without a Redis server.
package cachetest

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/kengibson1111/go-user-cache/internal"
)

// ErrDown is the cause of every failure while the store is marked down.
var ErrDown = errors.New("cachetest: store is down")

type entry struct {
	value []byte
	exp   time.Time
}

// Store is a goroutine-safe map-backed internal.Store. SCAN pages walk the
// keys in sorted order and the cursor is the offset of the next page.
type Store struct {
	mu      sync.Mutex
	m       map[string]entry
	down    bool
	closed  bool
	calls   map[string]int
	scanned []int
	deletes [][]string
}

var _ internal.Store = (*Store)(nil)

// New returns an empty Store.
func New() *Store {
	return &Store{m: make(map[string]entry), calls: make(map[string]int)}
}

// SetDown makes every later call fail with a StoreUnavailable error.
func (s *Store) SetDown(down bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.down = down
}

// Calls returns how many times op was invoked ("get", "set", "del", ...).
func (s *Store) Calls(op string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[op]
}

// TotalCalls returns the number of store calls of any kind.
func (s *Store) TotalCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		n += c
	}
	return n
}

// ScanPageSizes returns the number of keys returned by each ScanPage call.
func (s *Store) ScanPageSizes() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int(nil), s.scanned...)
}

// DeleteBatches returns the key lists passed to DeleteMany, in call order.
func (s *Store) DeleteBatches() [][]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]string, len(s.deletes))
	copy(out, s.deletes)
	return out
}

// Len returns the number of live keys.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for k := range s.m {
		if s.liveLocked(k) {
			n++
		}
	}
	return n
}

// TTL returns the remaining lifetime of key, zero when it has none.
func (s *Store) TTL(key string) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.m[key]
	if !ok || e.exp.IsZero() {
		return 0
	}
	return time.Until(e.exp)
}

// Closed reports whether Close has been called.
func (s *Store) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Store) begin(op, key string) error {
	s.calls[op]++
	if s.down {
		return internal.NewStoreUnavailableError(key, op+" failed", ErrDown)
	}
	return nil
}

func (s *Store) liveLocked(key string) bool {
	e, ok := s.m[key]
	if !ok {
		return false
	}
	if !e.exp.IsZero() && time.Now().After(e.exp) {
		delete(s.m, key)
		return false
	}
	return true
}

func (s *Store) Ping(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.begin("ping", "")
}

func (s *Store) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin("get", key); err != nil {
		return nil, false, err
	}
	if !s.liveLocked(key) {
		return nil, false, nil
	}
	return append([]byte(nil), s.m[key].value...), true, nil
}

func (s *Store) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin("set", key); err != nil {
		return err
	}
	var exp time.Time
	if ttl > 0 {
		exp = time.Now().Add(ttl)
	}
	s.m[key] = entry{value: append([]byte(nil), value...), exp: exp}
	return nil
}

func (s *Store) Delete(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin("del", key); err != nil {
		return false, err
	}
	if !s.liveLocked(key) {
		return false, nil
	}
	delete(s.m, key)
	return true, nil
}

func (s *Store) DeleteMany(_ context.Context, keys []string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin("del", ""); err != nil {
		return 0, err
	}
	s.deletes = append(s.deletes, append([]string(nil), keys...))
	var n int64
	for _, k := range keys {
		if s.liveLocked(k) {
			delete(s.m, k)
			n++
		}
	}
	return n, nil
}

func (s *Store) Exists(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin("exists", key); err != nil {
		return false, err
	}
	return s.liveLocked(key), nil
}

func (s *Store) ScanPage(_ context.Context, cursor uint64, match string, count int64) ([]string, uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin("scan", match); err != nil {
		return nil, 0, err
	}

	var matched []string
	for k := range s.m {
		if matchGlob(match, k) && s.liveLocked(k) {
			matched = append(matched, k)
		}
	}
	sort.Strings(matched)

	start := int(cursor)
	if start > len(matched) {
		start = len(matched)
	}
	end := start + int(count)
	if count <= 0 || end > len(matched) {
		end = len(matched)
	}

	page := matched[start:end]
	s.scanned = append(s.scanned, len(page))

	var next uint64
	if end < len(matched) {
		next = uint64(end)
	}
	return page, next, nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls["close"]++
	s.closed = true
	return nil
}

// Info reports the key count, matching RedisClient.Info's shape loosely.
func (s *Store) Info(_ context.Context) (map[string]interface{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return map[string]interface{}{
		"backend": "memory",
		"keys":    strconv.Itoa(len(s.m)),
	}, nil
}
