package types

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestDateRangeProperties(t *testing.T) {
	properties := gopter.NewProperties(nil)
	base := time.Date(2020, time.January, 1, 0, 0, 0, 0, time.UTC)

	properties.Property("range covers exactly span days with unique consecutive keys", prop.ForAll(
		func(offset, length int) bool {
			start := base.AddDate(0, 0, offset)
			end := start.AddDate(0, 0, length)

			dates := DatesInRange(start, end)
			if len(dates) != DaySpan(start, end) || len(dates) != length+1 {
				return false
			}

			seen := make(map[DateKey]bool, len(dates))
			for i, d := range dates {
				key := NewDateKey(d)
				if seen[key] {
					return false
				}
				seen[key] = true
				if i > 0 && !d.Equal(dates[i-1].AddDate(0, 0, 1)) {
					return false
				}
			}
			return true
		},
		gen.IntRange(0, 2000),
		gen.IntRange(0, 400),
	))

	properties.Property("sorting keys matches sorting dates", prop.ForAll(
		func(offsets []int) bool {
			keys := make([]DateKey, len(offsets))
			for i, o := range offsets {
				keys[i] = NewDateKey(base.AddDate(0, 0, o))
			}

			sorted, err := SortDateKeys(keys)
			if err != nil {
				return false
			}
			for i := 1; i < len(sorted); i++ {
				prev, _ := sorted[i-1].Time()
				curr, _ := sorted[i].Time()
				if curr.Before(prev) {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.IntRange(0, 3000)),
	))

	properties.TestingRun(t)
}
