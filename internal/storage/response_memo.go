package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/ccass-tracker/internal/types"
)

// ErrFetchPanicked is returned to callers waiting on a fetch that panicked
var ErrFetchPanicked = errors.New("memoized fetch panicked")

// MemoFetchFunc performs the real request for a memo miss
type MemoFetchFunc func(ctx context.Context) (*types.RawDayResponse, error)

// ResponseMemo memoizes raw day responses by (stock code, date).
// The first caller for a key performs the fetch; concurrent callers for the
// same key wait for that result instead of issuing their own request.
// Failed fetches are not memoized. Entries are never evicted, so a memo is
// meant to live for one batch only.
type ResponseMemo struct {
	mu      sync.Mutex
	entries map[string]*memoEntry

	hits   atomic.Int64
	misses atomic.Int64
}

// memoEntry is closed over done once resp/err are final
type memoEntry struct {
	done chan struct{}
	resp *types.RawDayResponse
	err  error
}

// MemoStats represents memo statistics
type MemoStats struct {
	Hits    int64 `json:"hits"`
	Misses  int64 `json:"misses"`
	Entries int   `json:"entries"`
}

// NewResponseMemo creates an empty memo
func NewResponseMemo() *ResponseMemo {
	return &ResponseMemo{
		entries: make(map[string]*memoEntry),
	}
}

// MemoKey builds the memo key for a stock code and date.
// Format: <stockCode>:<date>
func MemoKey(stockCode string, date types.DateKey) string {
	return fmt.Sprintf("%s:%s", stockCode, date)
}

// GetOrFetch returns the memoized response for the key or calls fetch once.
// The boolean reports whether the response came from the memo.
func (m *ResponseMemo) GetOrFetch(ctx context.Context, stockCode string, date types.DateKey, fetch MemoFetchFunc) (*types.RawDayResponse, bool, error) {
	key := MemoKey(stockCode, date)

	m.mu.Lock()
	if entry, ok := m.entries[key]; ok {
		m.mu.Unlock()
		m.hits.Add(1)

		select {
		case <-entry.done:
			return entry.resp, true, entry.err
		case <-ctx.Done():
			return nil, true, ctx.Err()
		}
	}

	entry := &memoEntry{done: make(chan struct{})}
	m.entries[key] = entry
	m.mu.Unlock()
	m.misses.Add(1)

	completed := false
	defer func() {
		if !completed {
			entry.resp, entry.err = nil, ErrFetchPanicked
		}
		if entry.err != nil {
			m.mu.Lock()
			delete(m.entries, key)
			m.mu.Unlock()
		}
		close(entry.done)
	}()

	entry.resp, entry.err = fetch(ctx)
	completed = true

	return entry.resp, false, entry.err
}

// GetStats returns memo statistics
func (m *ResponseMemo) GetStats() *MemoStats {
	m.mu.Lock()
	entries := len(m.entries)
	m.mu.Unlock()

	return &MemoStats{
		Hits:    m.hits.Load(),
		Misses:  m.misses.Load(),
		Entries: entries,
	}
}
