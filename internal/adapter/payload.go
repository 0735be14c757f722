package adapter

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/ccass-tracker/internal/types"
)

// Form field names and fixed values understood by the CCASS search page
const (
	FieldEventTarget   = "__EVENTTARGET"
	FieldEventArgument = "__EVENTARGUMENT"
	FieldDate          = "txtShareholdingDate"
	FieldStockCode     = "txtStockCode"
	FieldSortBy        = "sortBy"
	FieldSortDirection = "sortDirection"

	searchEventTarget  = "btnSearch"
	sortByShareholding = "shareholding"
	sortDescending     = "desc"

	stockCodeWidth = 5
)

// PadStockCode left-pads a stock code with zeros to five characters
func PadStockCode(stockCode string) string {
	if len(stockCode) >= stockCodeWidth {
		return stockCode
	}
	return strings.Repeat("0", stockCodeWidth-len(stockCode)) + stockCode
}

// ValidateStockCode checks that a stock code is one to five digits
func ValidateStockCode(stockCode string) error {
	if stockCode == "" || len(stockCode) > stockCodeWidth {
		return fmt.Errorf("stock code must be 1 to %d digits, got %q", stockCodeWidth, stockCode)
	}
	for _, r := range stockCode {
		if r < '0' || r > '9' {
			return fmt.Errorf("stock code must be numeric, got %q", stockCode)
		}
	}
	return nil
}

// BuildSearchPayload builds the form submitted for one stock and day.
// A nil date means today.
func BuildSearchPayload(stockCode string, date *time.Time) url.Values {
	day := time.Now()
	if date != nil {
		day = *date
	}

	return url.Values{
		FieldEventTarget:   {searchEventTarget},
		FieldEventArgument: {""},
		FieldDate:          {day.Format(types.DateKeyLayout)},
		FieldStockCode:     {PadStockCode(stockCode)},
		FieldSortBy:        {sortByShareholding},
		FieldSortDirection: {sortDescending},
	}
}
