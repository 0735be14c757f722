package api

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	apperrors "github.com/ccass-tracker/internal/errors"
	"github.com/ccass-tracker/internal/service"
	"github.com/ccass-tracker/internal/types"
)

// rangeParams are the query parameters shared by both views
type rangeParams struct {
	StockCode string `query:"stock_code" validate:"required,number,max=5"`
	StartDate string `query:"start_date" validate:"required,datetime=2006-01-02"`
	EndDate   string `query:"end_date" validate:"required,datetime=2006-01-02"`
}

// thresholdParams adds the change threshold to a range
type thresholdParams struct {
	rangeParams
	Threshold string `query:"threshold" validate:"required,numeric"`
}

// newQueryValidator reports field errors under their query parameter names
func newQueryValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := field.Tag.Get("query")
		if name == "" || name == "-" {
			return field.Name
		}
		return name
	})
	return v
}

func readRangeParams(r *http.Request) rangeParams {
	q := r.URL.Query()
	return rangeParams{
		StockCode: strings.TrimSpace(q.Get("stock_code")),
		StartDate: strings.TrimSpace(q.Get("start_date")),
		EndDate:   strings.TrimSpace(q.Get("end_date")),
	}
}

// toQuery converts validated parameters into a service query
func (p rangeParams) toQuery() (*service.ShareholdingQuery, error) {
	start, err := time.Parse(types.ISODateLayout, p.StartDate)
	if err != nil {
		return nil, apperrors.NewValidationError("start_date", "expected YYYY-MM-DD")
	}
	end, err := time.Parse(types.ISODateLayout, p.EndDate)
	if err != nil {
		return nil, apperrors.NewValidationError("end_date", "expected YYYY-MM-DD")
	}
	if start.After(end) {
		return nil, apperrors.NewValidationError("start_date", "must not be after end_date")
	}

	return &service.ShareholdingQuery{
		StockCode: p.StockCode,
		StartDate: start,
		EndDate:   end,
	}, nil
}

// validationFailure turns the first validator complaint into a ValidationError
func validationFailure(err error) error {
	var fieldErrs validator.ValidationErrors
	if !stderrors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return apperrors.NewValidationError("query", err.Error())
	}

	fe := fieldErrs[0]
	var reason string
	switch fe.Tag() {
	case "required":
		reason = "is required"
	case "number":
		reason = "must contain digits only"
	case "max":
		reason = fmt.Sprintf("must be at most %s characters", fe.Param())
	case "datetime":
		reason = "expected YYYY-MM-DD"
	case "numeric":
		reason = "must be a number"
	default:
		reason = fmt.Sprintf("failed %s validation", fe.Tag())
	}
	return apperrors.NewValidationError(fe.Field(), reason)
}

// handleTopTenShareholding handles GET /ccass/top_ten_shareholding
func (s *Server) handleTopTenShareholding(w http.ResponseWriter, r *http.Request) {
	params := readRangeParams(r)
	if err := s.validate.Struct(params); err != nil {
		respondServiceError(w, r, validationFailure(err))
		return
	}

	query, err := params.toQuery()
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	result, err := s.shareholdingService.TopHoldings(r.Context(), query)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, result)
}

// handleShareholdingThreshold handles GET /ccass/shareholding_threshold
func (s *Server) handleShareholdingThreshold(w http.ResponseWriter, r *http.Request) {
	params := thresholdParams{
		rangeParams: readRangeParams(r),
		Threshold:   strings.TrimSpace(r.URL.Query().Get("threshold")),
	}
	if err := s.validate.Struct(params); err != nil {
		respondServiceError(w, r, validationFailure(err))
		return
	}

	threshold, err := strconv.ParseFloat(params.Threshold, 64)
	if err != nil {
		respondServiceError(w, r, apperrors.NewValidationError("threshold", "must be a number"))
		return
	}

	query, err := params.toQuery()
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	result, err := s.shareholdingService.ThresholdChanges(r.Context(), query, threshold)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, result)
}
