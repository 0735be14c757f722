// Package parser turns CCASS search result pages into shareholding tables.
package parser

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/shopspring/decimal"

	apperrors "github.com/ccass-tracker/internal/errors"
	"github.com/ccass-tracker/internal/types"
)

// Semantic column names, taken from the data-column-class attribute
const (
	ColumnParticipantID       = "participant-id"
	ColumnParticipantName     = "participant-name"
	ColumnAddress             = "address"
	ColumnShareholding        = "shareholding"
	ColumnShareholdingPercent = "shareholding-percent"
)

// ColumnCount is the number of cells per participant row
const ColumnCount = 5

const (
	headerSelector    = "th[data-column-class]"
	headerAttribute   = "data-column-class"
	headerPrefixLen   = 4 // "col-"
	cellSelector      = "div.mobile-list-body"
	percentSuffix     = "%"
	thousandSeparator = ","
)

var requiredColumns = []string{
	ColumnParticipantID,
	ColumnParticipantName,
	ColumnAddress,
	ColumnShareholding,
	ColumnShareholdingPercent,
}

// ParseDayTable extracts the participant table from one raw response.
// Rows keep the order of the page.
func ParseDayTable(raw *types.RawDayResponse) (types.DayTable, error) {
	if raw == nil {
		return nil, apperrors.NewParseError("nil response", nil)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(raw.Body))
	if err != nil {
		return nil, apperrors.NewParseError("unreadable html", err)
	}

	headers, err := extractHeaders(doc)
	if err != nil {
		return nil, err
	}

	index := make(map[string]int, len(headers))
	for i, h := range headers {
		index[h] = i
	}
	for _, col := range requiredColumns {
		if _, ok := index[col]; !ok {
			return nil, apperrors.NewParseError(fmt.Sprintf("missing column %q", col), nil)
		}
	}

	var cells []string
	doc.Find(cellSelector).Each(func(_ int, s *goquery.Selection) {
		cells = append(cells, strings.TrimSpace(s.Text()))
	})

	if len(cells)%ColumnCount != 0 {
		return nil, apperrors.NewParseError(fmt.Sprintf("%d cells is not a multiple of %d", len(cells), ColumnCount), nil)
	}

	table := make(types.DayTable, 0, len(cells)/ColumnCount)
	for start := 0; start < len(cells); start += ColumnCount {
		row := cells[start : start+ColumnCount]

		record, err := buildRecord(row, index)
		if err != nil {
			return nil, err
		}
		table = append(table, record)
	}

	return table, nil
}

// extractHeaders returns the semantic column names in page order
func extractHeaders(doc *goquery.Document) ([]string, error) {
	var headers []string
	malformed := ""
	broken := false

	doc.Find(headerSelector).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		value, _ := s.Attr(headerAttribute)
		fields := strings.Fields(value)
		if len(fields) == 0 || len(fields[0]) <= headerPrefixLen {
			malformed = value
			broken = true
			return false
		}
		headers = append(headers, fields[0][headerPrefixLen:])
		return true
	})

	if broken {
		return nil, apperrors.NewParseError(fmt.Sprintf("malformed column class %q", malformed), nil)
	}
	if len(headers) > 0 && len(headers) != ColumnCount {
		return nil, apperrors.NewParseError(fmt.Sprintf("expected %d columns, got %v", ColumnCount, headers), nil)
	}
	if len(headers) == 0 {
		return nil, apperrors.NewParseError("no table headers", nil)
	}
	return headers, nil
}

func buildRecord(row []string, index map[string]int) (types.ShareholderRecord, error) {
	shareholding, err := ParseShareholding(row[index[ColumnShareholding]])
	if err != nil {
		return types.ShareholderRecord{}, err
	}

	percent, err := ParsePercent(row[index[ColumnShareholdingPercent]])
	if err != nil {
		return types.ShareholderRecord{}, err
	}

	return types.ShareholderRecord{
		ParticipantID:       row[index[ColumnParticipantID]],
		ParticipantName:     row[index[ColumnParticipantName]],
		Address:             row[index[ColumnAddress]],
		Shareholding:        shareholding,
		ShareholdingPercent: percent,
	}, nil
}

// ParseShareholding parses a share count such as "1,234,567"
func ParseShareholding(s string) (int64, error) {
	cleaned := strings.ReplaceAll(strings.TrimSpace(s), thousandSeparator, "")
	n, err := strconv.ParseInt(cleaned, 10, 64)
	if err != nil {
		return 0, apperrors.NewParseError(fmt.Sprintf("invalid shareholding %q", s), err)
	}
	return n, nil
}

// ParsePercent parses "12.34%" into 12.34 (percentage points, not a ratio)
func ParsePercent(s string) (float64, error) {
	cleaned := strings.TrimSuffix(strings.TrimSpace(s), percentSuffix)
	d, err := decimal.NewFromString(strings.TrimSpace(cleaned))
	if err != nil {
		return 0, apperrors.NewParseError(fmt.Sprintf("invalid shareholding percent %q", s), err)
	}
	f, _ := d.Float64()
	return f, nil
}

// FormatPercent renders a percentage as the source does, e.g. "12.34%"
func FormatPercent(p float64) string {
	return decimal.NewFromFloat(p).StringFixed(2) + percentSuffix
}

// ParseRange parses every day of a raw range. The first malformed day
// fails the whole range.
func ParseRange(raw types.RawRangeResult) (types.TableRangeResult, error) {
	tables := make(types.TableRangeResult, len(raw))
	for date, resp := range raw {
		table, err := ParseDayTable(resp)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", date, err)
		}
		tables[date] = table
	}
	return tables, nil
}
