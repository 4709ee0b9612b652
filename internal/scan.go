package internal

import (
	"context"
	"iter"
)

// DefaultScanCount is the SCAN COUNT hint used when none is configured.
const DefaultScanCount int64 = 100

// Scanner walks the keys under a prefix with server-side SCAN cursors,
// one page at a time, so the store is never asked for the whole keyspace.
type Scanner struct {
	store    Store
	match    string
	pageSize int64
	pages    int
}

// NewScanner returns a Scanner over prefix+"*" with the given page size.
// Glob metacharacters in prefix match literally.
func NewScanner(store Store, prefix string, pageSize int64) *Scanner {
	if pageSize <= 0 {
		pageSize = DefaultScanCount
	}
	return &Scanner{store: store, match: EscapeGlob(prefix) + "*", pageSize: pageSize}
}

// Pages reports how many SCAN pages the last Keys iteration fetched.
func (s *Scanner) Pages() int {
	return s.pages
}

// Keys lazily yields every matching key. Each call starts a fresh cursor.
// Keys repeated by SCAN across pages are yielded once. On error the
// sequence yields ("", err) and stops.
func (s *Scanner) Keys(ctx context.Context) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		s.pages = 0
		seen := make(map[string]struct{})
		var cursor uint64
		for {
			if err := ctx.Err(); err != nil {
				yield("", err)
				return
			}

			keys, next, err := s.store.ScanPage(ctx, cursor, s.match, s.pageSize)
			if err != nil {
				yield("", err)
				return
			}
			s.pages++

			for _, k := range keys {
				if _, dup := seen[k]; dup {
					continue
				}
				seen[k] = struct{}{}
				if !yield(k, nil) {
					return
				}
			}

			if next == 0 {
				return
			}
			cursor = next
		}
	}
}

// ScanKeys is shorthand for NewScanner(store, prefix, pageSize).Keys(ctx).
func ScanKeys(ctx context.Context, store Store, prefix string, pageSize int64) iter.Seq2[string, error] {
	return NewScanner(store, prefix, pageSize).Keys(ctx)
}
