package service

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	apperrors "github.com/ccass-tracker/internal/errors"
	"github.com/ccass-tracker/internal/types"
)

// DeltaPlaces is the number of decimal places kept on a percent delta
const DeltaPlaces = 2

// DiffByThreshold compares each day with the previous day in calendar order
// and keeps the participants whose percent change, rounded to two places,
// is at least threshold. The filter is signed: a negative change only passes
// a threshold at or below it.
//
// Every day except the earliest gets an entry, empty when nothing passes.
// A participant missing from the later day is treated as holding zero.
func DiffByThreshold(tables types.TableRangeResult, threshold float64) (types.ChangeRangeResult, error) {
	if err := validateThreshold(threshold); err != nil {
		return nil, err
	}

	keys := make([]types.DateKey, 0, len(tables))
	for date := range tables {
		keys = append(keys, date)
	}

	dates, err := types.SortDateKeys(keys)
	if err != nil {
		return nil, fmt.Errorf("sort dates: %w", err)
	}

	limit := decimal.NewFromFloat(threshold)
	result := make(types.ChangeRangeResult, len(dates))
	if len(dates) < 2 {
		return result, nil
	}

	prev := indexPercent(tables[dates[0]])
	for _, date := range dates[1:] {
		curr := indexPercent(tables[date])
		changes := make(types.ShareholdingChange)

		for id, pct := range curr {
			delta := roundDelta(pct.Sub(prev[id]))
			if delta.GreaterThanOrEqual(limit) {
				changes[id] = delta.InexactFloat64()
			}
		}

		for id, pct := range prev {
			if _, ok := curr[id]; ok {
				continue
			}
			delta := roundDelta(pct.Neg())
			if delta.GreaterThanOrEqual(limit) {
				changes[id] = delta.InexactFloat64()
			}
		}

		result[date] = changes
		prev = curr
	}

	return result, nil
}

// indexPercent maps participant id to percent. The first row wins when an
// id repeats.
func indexPercent(table types.DayTable) map[string]decimal.Decimal {
	index := make(map[string]decimal.Decimal, len(table))
	for _, record := range table {
		if _, seen := index[record.ParticipantID]; seen {
			continue
		}
		index[record.ParticipantID] = decimal.NewFromFloat(record.ShareholdingPercent)
	}
	return index
}

// roundDelta rounds half away from zero
func roundDelta(d decimal.Decimal) decimal.Decimal {
	return d.Round(DeltaPlaces)
}

func validateThreshold(threshold float64) error {
	if math.IsNaN(threshold) || math.IsInf(threshold, 0) {
		return apperrors.NewValidationError("threshold", "must be a finite number")
	}
	return nil
}
