// Package types provides common type definitions for the CCASS shareholding tracker.
package types

import (
	"fmt"
	"sort"
	"time"
)

// DateKeyLayout is the canonical layout of a DateKey (YYYY/MM/DD)
const DateKeyLayout = "2006/01/02"

// ISODateLayout is the layout accepted on the HTTP surface
const ISODateLayout = "2006-01-02"

// DateKey identifies one calendar day across all per-day structures
type DateKey string

// NewDateKey formats a date as a DateKey
func NewDateKey(t time.Time) DateKey {
	return DateKey(t.Format(DateKeyLayout))
}

// ParseDateKey parses a YYYY/MM/DD string into a DateKey
func ParseDateKey(s string) (DateKey, error) {
	t, err := time.Parse(DateKeyLayout, s)
	if err != nil {
		return "", fmt.Errorf("invalid date key %q: %w", s, err)
	}
	return NewDateKey(t), nil
}

// Time converts the key back to a UTC date
func (d DateKey) Time() (time.Time, error) {
	return time.Parse(DateKeyLayout, string(d))
}

// String implements fmt.Stringer
func (d DateKey) String() string {
	return string(d)
}

// SortDateKeys returns the keys in chronological order.
// Keys are compared as parsed dates, never lexically.
func SortDateKeys(keys []DateKey) ([]DateKey, error) {
	type parsed struct {
		key DateKey
		at  time.Time
	}

	items := make([]parsed, 0, len(keys))
	for _, k := range keys {
		t, err := k.Time()
		if err != nil {
			return nil, fmt.Errorf("invalid date key %q: %w", k, err)
		}
		items = append(items, parsed{key: k, at: t})
	}

	sort.SliceStable(items, func(i, j int) bool {
		return items[i].at.Before(items[j].at)
	})

	sorted := make([]DateKey, len(items))
	for i, item := range items {
		sorted[i] = item.key
	}
	return sorted, nil
}

// DaySpan returns the number of calendar days in [start, end] inclusive.
// A start after end yields a non-positive span.
func DaySpan(start, end time.Time) int {
	s := truncateToDay(start)
	e := truncateToDay(end)
	return int(e.Sub(s).Hours()/24) + 1
}

// DatesInRange lists every day in [start, end] inclusive, oldest first
func DatesInRange(start, end time.Time) []time.Time {
	span := DaySpan(start, end)
	if span <= 0 {
		return nil
	}

	s := truncateToDay(start)
	dates := make([]time.Time, span)
	for i := 0; i < span; i++ {
		dates[i] = s.AddDate(0, 0, i)
	}
	return dates
}

func truncateToDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// ShareholderRecord is one participant row of a day's shareholding table
type ShareholderRecord struct {
	ParticipantID       string  `json:"participant-id"`
	ParticipantName     string  `json:"participant-name"`
	Address             string  `json:"address"`
	Shareholding        int64   `json:"shareholding"`
	ShareholdingPercent float64 `json:"shareholding-percent"` // Percentage points, 12.34 means 12.34%
}

// DayTable holds a day's records in the order returned by the source
// (descending shareholding)
type DayTable []ShareholderRecord

// RawDayResponse is the unparsed answer of the source for one day
type RawDayResponse struct {
	Date       DateKey
	StatusCode int
	Body       []byte
}

// RawRangeResult maps every date of a range to its raw response
type RawRangeResult map[DateKey]*RawDayResponse

// TableRangeResult maps every date of a range to its parsed table
type TableRangeResult map[DateKey]DayTable

// ShareholdingChange maps participant id to a percentage-point delta
type ShareholdingChange map[string]float64

// ChangeRangeResult maps every non-first date of a range to its changes
type ChangeRangeResult map[DateKey]ShareholdingChange

// ServiceError represents a structured error response
type ServiceError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

func (e *ServiceError) Error() string {
	return e.Message
}
