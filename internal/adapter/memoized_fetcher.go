package adapter

import (
	"context"

	"github.com/ccass-tracker/internal/storage"
	"github.com/ccass-tracker/internal/types"
)

// MemoizedFetcher answers repeated (stock, day) requests from a memo
type MemoizedFetcher struct {
	fetcher DayFetcher
	memo    *storage.ResponseMemo
}

// NewMemoizedFetcher wraps fetcher with memo
func NewMemoizedFetcher(fetcher DayFetcher, memo *storage.ResponseMemo) *MemoizedFetcher {
	return &MemoizedFetcher{fetcher: fetcher, memo: memo}
}

// FetchDay implements DayFetcher
func (m *MemoizedFetcher) FetchDay(ctx context.Context, stockCode string, date types.DateKey) (*types.RawDayResponse, error) {
	resp, _, err := m.memo.GetOrFetch(ctx, PadStockCode(stockCode), date, func(ctx context.Context) (*types.RawDayResponse, error) {
		return m.fetcher.FetchDay(ctx, stockCode, date)
	})
	return resp, err
}

// Stats returns the memo statistics
func (m *MemoizedFetcher) Stats() *storage.MemoStats {
	return m.memo.GetStats()
}
