package adapter

import (
	"context"
	"fmt"
	"time"

	apperrors "github.com/ccass-tracker/internal/errors"
	"github.com/ccass-tracker/internal/logging"
	"github.com/ccass-tracker/internal/storage"
	"github.com/ccass-tracker/internal/types"
)

// Default batch configuration values.
const (
	DefaultWorkers     = 4
	DefaultMaxSpanDays = 366
)

// RangeFetcher retrieves raw responses for every day of a range
type RangeFetcher interface {
	FetchRange(ctx context.Context, stockCode string, start, end time.Time) (types.RawRangeResult, error)
}

// BatchFetcher fans day requests for a date range out to a bounded worker
// pool. The first failed day aborts the whole batch.
//
// A BatchFetcher owns its response memo, so one instance should serve one
// logical batch.
type BatchFetcher struct {
	fetcher     *MemoizedFetcher
	workers     int
	maxSpanDays int
}

// BatchFetcherConfig holds configuration for a batch fetcher
type BatchFetcherConfig struct {
	Client      DayFetcher
	Workers     int // Concurrent in-flight requests. Default: 4.
	MaxSpanDays int // Largest accepted range. Default: 366.
}

// dayJob is one day waiting for a worker
type dayJob struct {
	date types.DateKey
}

// dayResult is a worker's answer for one day
type dayResult struct {
	date types.DateKey
	resp *types.RawDayResponse
	err  error
}

// NewBatchFetcher creates a batch fetcher with a fresh memo
func NewBatchFetcher(cfg *BatchFetcherConfig) (*BatchFetcher, error) {
	if cfg == nil || cfg.Client == nil {
		return nil, fmt.Errorf("day fetcher cannot be nil")
	}

	workers := cfg.Workers
	if workers <= 0 {
		workers = DefaultWorkers
	}

	maxSpan := cfg.MaxSpanDays
	if maxSpan <= 0 {
		maxSpan = DefaultMaxSpanDays
	}

	return &BatchFetcher{
		fetcher:     NewMemoizedFetcher(cfg.Client, storage.NewResponseMemo()),
		workers:     workers,
		maxSpanDays: maxSpan,
	}, nil
}

// FetchRange fetches every day in [start, end]. On success the result holds
// exactly one entry per day. Requests already in flight when a failure is
// seen are left to finish but their results are dropped; queued days are
// not started.
func (b *BatchFetcher) FetchRange(ctx context.Context, stockCode string, start, end time.Time) (types.RawRangeResult, error) {
	logger := logging.FromContext(ctx).WithField("stock_code", PadStockCode(stockCode))

	if err := ValidateStockCode(stockCode); err != nil {
		return nil, apperrors.NewValidationError("stock_code", err.Error())
	}

	span := types.DaySpan(start, end)
	if span <= 0 {
		return nil, apperrors.NewValidationError("start_date", "must not be after end_date")
	}
	if span > b.maxSpanDays {
		return nil, apperrors.NewValidationError("end_date", fmt.Sprintf("range of %d days exceeds the maximum of %d", span, b.maxSpanDays))
	}

	dates := types.DatesInRange(start, end)

	jobs := make(chan dayJob, len(dates))
	for _, d := range dates {
		jobs <- dayJob{date: types.NewDateKey(d)}
	}
	close(jobs)

	// Buffered so workers never block once the batch has returned
	results := make(chan dayResult, len(dates))
	abort := make(chan struct{})

	workers := b.workers
	if workers > len(dates) {
		workers = len(dates)
	}
	// Requests outlive the caller: an abort or a finished handler stops
	// queued days only, never a request already sent.
	fetchCtx := context.WithoutCancel(ctx)
	for i := 0; i < workers; i++ {
		go b.worker(fetchCtx, stockCode, jobs, results, abort)
	}

	out := make(types.RawRangeResult, len(dates))
	for len(out) < len(dates) {
		res := <-results
		if res.err != nil {
			close(abort)
			logger.WithFields(map[string]interface{}{
				"date":      res.date.String(),
				"completed": len(out),
				"span":      len(dates),
			}).WithError(res.err).Error("CCASS batch aborted")
			return nil, fmt.Errorf("fetch %s: %w", res.date, res.err)
		}

		out[res.date] = res.resp
		logger.WithFields(map[string]interface{}{
			"date":   res.date.String(),
			"status": res.resp.StatusCode,
		}).Info("CCASS day fetched")
	}

	stats := b.fetcher.Stats()
	logger.WithFields(map[string]interface{}{
		"days":        len(out),
		"memo_hits":   stats.Hits,
		"memo_misses": stats.Misses,
	}).Debug("CCASS batch complete")

	return out, nil
}

// worker pulls days until the queue is empty or the batch is aborted
func (b *BatchFetcher) worker(ctx context.Context, stockCode string, jobs <-chan dayJob, results chan<- dayResult, abort <-chan struct{}) {
	for job := range jobs {
		select {
		case <-abort:
			return
		default:
		}

		resp, err := b.fetcher.FetchDay(ctx, stockCode, job.date)
		results <- dayResult{date: job.date, resp: resp, err: err}
	}
}

// FetchDay fetches a single day through the batch memo
func (b *BatchFetcher) FetchDay(ctx context.Context, stockCode string, date types.DateKey) (*types.RawDayResponse, error) {
	return b.fetcher.FetchDay(ctx, stockCode, date)
}

// MemoStats returns the statistics of the batch memo
func (b *BatchFetcher) MemoStats() *storage.MemoStats {
	return b.fetcher.Stats()
}
