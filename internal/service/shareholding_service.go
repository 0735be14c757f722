package service

import (
	"context"
	"fmt"
	"time"

	"github.com/ccass-tracker/internal/adapter"
	apperrors "github.com/ccass-tracker/internal/errors"
	"github.com/ccass-tracker/internal/logging"
	"github.com/ccass-tracker/internal/parser"
	"github.com/ccass-tracker/internal/types"
)

// DefaultTopN is the number of records kept per day by TopHoldings
const DefaultTopN = 10

// ShareholdingReader defines the views served over a date range
type ShareholdingReader interface {
	TopHoldings(ctx context.Context, query *ShareholdingQuery) (types.TableRangeResult, error)
	ThresholdChanges(ctx context.Context, query *ShareholdingQuery, threshold float64) (types.ChangeRangeResult, error)
}

// ShareholdingQuery selects a stock and a closed date range
type ShareholdingQuery struct {
	StockCode string    `json:"stockCode"`
	StartDate time.Time `json:"startDate"`
	EndDate   time.Time `json:"endDate"`
}

// ShareholdingService runs the fetch, parse and reduce pipeline.
// Every call builds its own BatchFetcher so memoized responses never
// outlive the request that fetched them.
type ShareholdingService struct {
	client      adapter.DayFetcher
	workers     int
	maxSpanDays int
	topN        int
	monitor     *PerformanceMonitor
}

// ServiceConfig holds configuration for the shareholding service
type ServiceConfig struct {
	Client      adapter.DayFetcher
	Workers     int
	MaxSpanDays int
	TopN        int
	Monitor     *PerformanceMonitor // Optional
}

// NewShareholdingService creates a new shareholding service
func NewShareholdingService(cfg *ServiceConfig) (*ShareholdingService, error) {
	if cfg == nil || cfg.Client == nil {
		return nil, fmt.Errorf("day fetcher cannot be nil")
	}

	topN := cfg.TopN
	if topN <= 0 {
		topN = DefaultTopN
	}

	monitor := cfg.Monitor
	if monitor == nil {
		monitor = NewPerformanceMonitor()
	}

	return &ShareholdingService{
		client:      cfg.Client,
		workers:     cfg.Workers,
		maxSpanDays: cfg.MaxSpanDays,
		topN:        topN,
		monitor:     monitor,
	}, nil
}

// Monitor returns the latency monitor fed by this service
func (s *ShareholdingService) Monitor() *PerformanceMonitor {
	return s.monitor
}

// TopHoldings returns the first N records of every day in the range
func (s *ShareholdingService) TopHoldings(ctx context.Context, query *ShareholdingQuery) (types.TableRangeResult, error) {
	started := time.Now()
	tables, err := s.loadTables(ctx, query)
	if err != nil {
		return nil, err
	}

	result := TopN(tables, s.topN)
	s.monitor.RecordQuery(ctx, ViewTopHoldings, time.Since(started), len(tables))
	return result, nil
}

// ThresholdChanges returns day-over-day percent changes at or above threshold
func (s *ShareholdingService) ThresholdChanges(ctx context.Context, query *ShareholdingQuery, threshold float64) (types.ChangeRangeResult, error) {
	if err := validateThreshold(threshold); err != nil {
		return nil, err
	}

	started := time.Now()
	tables, err := s.loadTables(ctx, query)
	if err != nil {
		return nil, err
	}

	result, err := DiffByThreshold(tables, threshold)
	if err != nil {
		return nil, err
	}

	s.monitor.RecordQuery(ctx, ViewThresholdChanges, time.Since(started), len(tables))
	return result, nil
}

// loadTables fetches and parses the whole range
func (s *ShareholdingService) loadTables(ctx context.Context, query *ShareholdingQuery) (types.TableRangeResult, error) {
	if query == nil {
		return nil, apperrors.NewValidationError("query", "cannot be nil")
	}

	logger := logging.FromContext(ctx).WithFields(map[string]interface{}{
		"stock_code": query.StockCode,
		"start_date": types.NewDateKey(query.StartDate).String(),
		"end_date":   types.NewDateKey(query.EndDate).String(),
	})

	batch, err := adapter.NewBatchFetcher(&adapter.BatchFetcherConfig{
		Client:      s.client,
		Workers:     s.workers,
		MaxSpanDays: s.maxSpanDays,
	})
	if err != nil {
		return nil, apperrors.NewInternalError("failed to create batch fetcher", err)
	}

	raw, err := batch.FetchRange(ctx, query.StockCode, query.StartDate, query.EndDate)
	if err != nil {
		return nil, err
	}

	tables, err := parser.ParseRange(raw)
	if err != nil {
		logger.WithError(err).Error("Failed to parse shareholding tables")
		return nil, err
	}

	stats := batch.MemoStats()
	logger.WithFields(map[string]interface{}{
		"days":        len(tables),
		"memo_hits":   stats.Hits,
		"memo_misses": stats.Misses,
	}).Debug("Shareholding tables loaded")
	return tables, nil
}

// TopN keeps the first n records of every day in table order.
// Days with fewer than n records are returned whole.
func TopN(tables types.TableRangeResult, n int) types.TableRangeResult {
	result := make(types.TableRangeResult, len(tables))
	for date, table := range tables {
		limit := n
		if limit > len(table) {
			limit = len(table)
		}
		if limit < 0 {
			limit = 0
		}

		top := make(types.DayTable, limit)
		copy(top, table[:limit])
		result[date] = top
	}
	return result
}
