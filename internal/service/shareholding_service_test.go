package service

import (
	"context"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	apperrors "github.com/ccass-tracker/internal/errors"
	"github.com/ccass-tracker/internal/parser"
	"github.com/ccass-tracker/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pageFetcher serves rendered CCASS pages keyed by date
type pageFetcher struct {
	mu     sync.Mutex
	pages  map[types.DateKey][]byte
	failOn map[types.DateKey]bool
	calls  int
}

func newPageFetcher(tables map[types.DateKey]types.DayTable) *pageFetcher {
	f := &pageFetcher{
		pages:  make(map[types.DateKey][]byte, len(tables)),
		failOn: make(map[types.DateKey]bool),
	}
	for date, table := range tables {
		f.pages[date] = parser.RenderDayTable(table)
	}
	return f
}

func (f *pageFetcher) FetchDay(ctx context.Context, stockCode string, date types.DateKey) (*types.RawDayResponse, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()

	if f.failOn[date] {
		return nil, apperrors.NewFetchError(date, 503, "Service Unavailable", nil)
	}

	body, ok := f.pages[date]
	if !ok {
		body = parser.RenderDayTable(nil)
	}
	return &types.RawDayResponse{Date: date, StatusCode: 200, Body: body}, nil
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func holder(id string, pct float64) types.ShareholderRecord {
	return types.ShareholderRecord{
		ParticipantID:       id,
		ParticipantName:     "Participant " + id,
		Address:             "1 Harbour Road, Hong Kong",
		Shareholding:        int64(pct * 1000000),
		ShareholdingPercent: pct,
	}
}

func newTestService(t *testing.T, f *pageFetcher) *ShareholdingService {
	t.Helper()
	svc, err := NewShareholdingService(&ServiceConfig{Client: f, Workers: 4, MaxSpanDays: 366})
	require.NoError(t, err)
	return svc
}

func TestNewShareholdingService_RequiresClient(t *testing.T) {
	_, err := NewShareholdingService(&ServiceConfig{})
	assert.Error(t, err)

	_, err = NewShareholdingService(nil)
	assert.Error(t, err)
}

func TestShareholdingService_ThresholdChanges_SignedFilter(t *testing.T) {
	f := newPageFetcher(map[types.DateKey]types.DayTable{
		"2023/01/02": {holder("A", 10.00)},
		"2023/01/03": {holder("A", 10.10), holder("B", 1.00)},
		"2023/01/04": {holder("A", 10.10)},
	})
	svc := newTestService(t, f)

	result, err := svc.ThresholdChanges(context.Background(), &ShareholdingQuery{
		StockCode: "700",
		StartDate: day(2023, time.January, 2),
		EndDate:   day(2023, time.January, 4),
	}, 0.05)
	require.NoError(t, err)

	assert.Equal(t, types.ChangeRangeResult{
		"2023/01/03": {"A": 0.1, "B": 1.0},
		"2023/01/04": {},
	}, result)
	assert.Equal(t, 3, f.calls)
}

func TestShareholdingService_TopHoldings(t *testing.T) {
	big := make(types.DayTable, 0, 15)
	for i := 0; i < 15; i++ {
		big = append(big, holder(fmt.Sprintf("C%05d", i), float64(15-i)))
	}

	f := newPageFetcher(map[types.DateKey]types.DayTable{
		"2023/01/02": big,
		"2023/01/03": big[:3],
	})
	svc := newTestService(t, f)

	result, err := svc.TopHoldings(context.Background(), &ShareholdingQuery{
		StockCode: "00700",
		StartDate: day(2023, time.January, 2),
		EndDate:   day(2023, time.January, 3),
	})
	require.NoError(t, err)
	require.Len(t, result, 2)

	assert.Len(t, result["2023/01/02"], 10)
	assert.Equal(t, "C00000", result["2023/01/02"][0].ParticipantID)
	assert.Equal(t, "C00009", result["2023/01/02"][9].ParticipantID)
	assert.Len(t, result["2023/01/03"], 3)

	stats := svc.Monitor().GetStats()
	assert.Equal(t, int64(1), stats.TotalQueries)
	assert.Equal(t, int64(2), stats.DaysServed)
}

func TestShareholdingService_Errors(t *testing.T) {
	query := &ShareholdingQuery{
		StockCode: "700",
		StartDate: day(2023, time.January, 2),
		EndDate:   day(2023, time.January, 6),
	}

	t.Run("fetch failure aborts the batch", func(t *testing.T) {
		f := newPageFetcher(nil)
		f.failOn["2023/01/04"] = true
		svc := newTestService(t, f)

		result, err := svc.ThresholdChanges(context.Background(), query, 0)
		require.Error(t, err)
		assert.Nil(t, result)
		assert.True(t, apperrors.IsFetchError(err))
		assert.Contains(t, err.Error(), "Service Unavailable")
		assert.Equal(t, int64(0), svc.Monitor().GetStats().TotalQueries)
	})

	t.Run("malformed page fails the view", func(t *testing.T) {
		f := newPageFetcher(nil)
		f.pages["2023/01/03"] = []byte("<html><body>maintenance</body></html>")
		svc := newTestService(t, f)

		result, err := svc.TopHoldings(context.Background(), query)
		require.Error(t, err)
		assert.Nil(t, result)
		assert.True(t, apperrors.IsParseError(err))
	})

	t.Run("reversed range is rejected before fetching", func(t *testing.T) {
		f := newPageFetcher(nil)
		svc := newTestService(t, f)

		_, err := svc.TopHoldings(context.Background(), &ShareholdingQuery{
			StockCode: "700",
			StartDate: day(2023, time.January, 6),
			EndDate:   day(2023, time.January, 2),
		})
		require.Error(t, err)
		assert.True(t, apperrors.IsValidationError(err))
		assert.Equal(t, 0, f.calls)
	})

	t.Run("non finite threshold is rejected before fetching", func(t *testing.T) {
		f := newPageFetcher(nil)
		svc := newTestService(t, f)

		_, err := svc.ThresholdChanges(context.Background(), &ShareholdingQuery{
			StockCode: "700",
			StartDate: day(2023, time.January, 2),
			EndDate:   day(2023, time.January, 3),
		}, math.NaN())
		require.Error(t, err)
		assert.True(t, apperrors.IsValidationError(err))
		assert.Equal(t, 0, f.calls)
	})

	t.Run("nil query", func(t *testing.T) {
		svc := newTestService(t, newPageFetcher(nil))
		_, err := svc.TopHoldings(context.Background(), nil)
		assert.True(t, apperrors.IsValidationError(err))
	})
}

func TestTopN(t *testing.T) {
	tables := types.TableRangeResult{
		"2023/01/02": {holder("A", 3), holder("B", 2), holder("C", 1)},
		"2023/01/03": {},
	}

	result := TopN(tables, 2)
	assert.Equal(t, types.DayTable{holder("A", 3), holder("B", 2)}, result["2023/01/02"])
	assert.Empty(t, result["2023/01/03"])
	assert.Contains(t, result, types.DateKey("2023/01/03"))

	// The input is left untouched
	result["2023/01/02"][0].ParticipantID = "Z"
	assert.Equal(t, "A", tables["2023/01/02"][0].ParticipantID)

	assert.Len(t, TopN(tables, 0)["2023/01/02"], 0)
}
