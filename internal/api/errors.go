package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	apperrors "github.com/ccass-tracker/internal/errors"
	"github.com/ccass-tracker/internal/logging"
	"github.com/ccass-tracker/internal/types"
)

// ErrorResponse represents an API error response.
type ErrorResponse struct {
	Error types.ServiceError `json:"error"`
}

// respondError sends an error response.
func respondError(w http.ResponseWriter, statusCode int, code, message string, details map[string]interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	response := ErrorResponse{
		Error: types.ServiceError{
			Code:    code,
			Message: message,
			Details: details,
		},
	}

	json.NewEncoder(w).Encode(response)
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// respondServiceError maps a pipeline error to its response. Fetch and
// parse failures keep the underlying message so callers see what the
// source returned.
func respondServiceError(w http.ResponseWriter, r *http.Request, err error) {
	catErr := apperrors.Categorize(err)

	logger := logging.FromContext(r.Context()).WithFields(map[string]interface{}{
		"code":   catErr.Code,
		"status": catErr.StatusCode,
	}).WithError(err)

	if apperrors.IsUserError(err) {
		logger.Info("Request rejected")
	} else {
		logger.Error("Request failed")
	}

	if catErr.Category == apperrors.CategoryRateLimit {
		if retry, ok := catErr.Details["retryAfter"].(int); ok {
			w.Header().Set("Retry-After", strconv.Itoa(retry))
		}
	}

	respondError(w, catErr.StatusCode, catErr.Code, catErr.Message, catErr.Details)
}
