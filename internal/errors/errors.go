package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"

	"github.com/ccass-tracker/internal/types"
)

// ErrorCategory represents the category of an error
type ErrorCategory string

const (
	// CategoryValidation represents invalid caller input (4xx)
	CategoryValidation ErrorCategory = "validation"
	// CategoryFetch represents a failed request to the CCASS source
	CategoryFetch ErrorCategory = "fetch"
	// CategoryParse represents a malformed shareholding table
	CategoryParse ErrorCategory = "parse"
	// CategoryRateLimit represents rate limit errors
	CategoryRateLimit ErrorCategory = "rate_limit"
	// CategorySystem represents system errors (5xx)
	CategorySystem ErrorCategory = "system"
)

// Error codes
const (
	CodeFetchFailed      = "FETCH_FAILED"
	CodeParseFailed      = "PARSE_FAILED"
	CodeInvalidParameter = "INVALID_PARAMETER"
	CodeRateLimited      = "RATE_LIMIT_EXCEEDED"
	CodeInternalError    = "INTERNAL_ERROR"
)

// CategorizedError represents an error with category and HTTP status code
type CategorizedError struct {
	Category   ErrorCategory
	StatusCode int
	Code       string
	Message    string
	Details    map[string]interface{}
	Cause      error
}

// Error implements the error interface
func (e *CategorizedError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause
func (e *CategorizedError) Unwrap() error {
	return e.Cause
}

// ToServiceError converts to a ServiceError
func (e *CategorizedError) ToServiceError() *types.ServiceError {
	return &types.ServiceError{
		Code:    e.Code,
		Message: e.Message,
		Details: e.Details,
	}
}

// NewFetchError creates an error for one failed day request.
// body is the response body returned by the source, if any.
func NewFetchError(date types.DateKey, status int, body string, cause error) *CategorizedError {
	message := body
	if message == "" && cause != nil {
		message = cause.Error()
	}
	if message == "" {
		message = fmt.Sprintf("ccass request for %s failed with status %d", date, status)
	}

	return &CategorizedError{
		Category:   CategoryFetch,
		StatusCode: http.StatusInternalServerError,
		Code:       CodeFetchFailed,
		Message:    message,
		Cause:      cause,
		Details: map[string]interface{}{
			"date":   date.String(),
			"status": status,
		},
	}
}

// NewParseError creates an error for a malformed shareholding table
func NewParseError(reason string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryParse,
		StatusCode: http.StatusInternalServerError,
		Code:       CodeParseFailed,
		Message:    fmt.Sprintf("unexpected shareholding table: %s", reason),
		Cause:      cause,
	}
}

// NewValidationError creates an invalid parameter error
func NewValidationError(param string, reason string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryValidation,
		StatusCode: http.StatusBadRequest,
		Code:       CodeInvalidParameter,
		Message:    fmt.Sprintf("invalid parameter '%s': %s", param, reason),
		Details: map[string]interface{}{
			"parameter": param,
			"reason":    reason,
		},
	}
}

// NewRateLimitError creates a rate limit error
func NewRateLimitError(retryAfter int) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryRateLimit,
		StatusCode: http.StatusTooManyRequests,
		Code:       CodeRateLimited,
		Message:    "rate limit exceeded",
		Details: map[string]interface{}{
			"retryAfter": retryAfter,
		},
	}
}

// NewInternalError creates an internal server error
func NewInternalError(message string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategorySystem,
		StatusCode: http.StatusInternalServerError,
		Code:       CodeInternalError,
		Message:    message,
		Cause:      cause,
	}
}

// Categorize categorizes an existing error, looking through wrapped errors
func Categorize(err error) *CategorizedError {
	if err == nil {
		return nil
	}

	var catErr *CategorizedError
	if stderrors.As(err, &catErr) {
		return catErr
	}

	var svcErr *types.ServiceError
	if stderrors.As(err, &svcErr) {
		return &CategorizedError{
			Category:   CategorySystem,
			StatusCode: http.StatusInternalServerError,
			Code:       svcErr.Code,
			Message:    svcErr.Message,
			Details:    svcErr.Details,
		}
	}

	return NewInternalError(err.Error(), err)
}

func hasCategory(err error, category ErrorCategory) bool {
	var catErr *CategorizedError
	return stderrors.As(err, &catErr) && catErr.Category == category
}

// IsFetchError reports whether err is a failed source request
func IsFetchError(err error) bool {
	return hasCategory(err, CategoryFetch)
}

// IsParseError reports whether err is a malformed table
func IsParseError(err error) bool {
	return hasCategory(err, CategoryParse)
}

// IsValidationError reports whether err is invalid caller input
func IsValidationError(err error) bool {
	return hasCategory(err, CategoryValidation)
}

// IsUserError determines if an error is a user error (4xx)
func IsUserError(err error) bool {
	catErr := Categorize(err)
	if catErr == nil {
		return false
	}

	return catErr.StatusCode >= 400 && catErr.StatusCode < 500
}
