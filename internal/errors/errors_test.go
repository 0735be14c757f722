package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/ccass-tracker/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewFetchError(t *testing.T) {
	t.Run("uses the response body as message", func(t *testing.T) {
		err := NewFetchError("2023/01/03", http.StatusBadGateway, "<html>down</html>", nil)
		assert.Equal(t, "<html>down</html>", err.Message)
		assert.Equal(t, http.StatusInternalServerError, err.StatusCode)
		assert.Equal(t, "2023/01/03", err.Details["date"])
		assert.Equal(t, http.StatusBadGateway, err.Details["status"])
	})

	t.Run("falls back to the cause", func(t *testing.T) {
		cause := stderrors.New("connection reset")
		err := NewFetchError("2023/01/03", 0, "", cause)
		assert.Equal(t, "connection reset", err.Message)
		assert.ErrorIs(t, err, cause)
	})

	t.Run("falls back to a generic message", func(t *testing.T) {
		err := NewFetchError("2023/01/03", 500, "", nil)
		assert.Contains(t, err.Message, "2023/01/03")
	})
}

func TestCategoryHelpers(t *testing.T) {
	fetchErr := fmt.Errorf("batch aborted: %w", NewFetchError("2023/01/03", 500, "boom", nil))
	parseErr := fmt.Errorf("parse 2023/01/03: %w", NewParseError("odd cell count", nil))
	validationErr := NewValidationError("start_date", "after end_date")

	assert.True(t, IsFetchError(fetchErr))
	assert.False(t, IsParseError(fetchErr))
	assert.True(t, IsParseError(parseErr))
	assert.True(t, IsValidationError(validationErr))
	assert.True(t, IsUserError(validationErr))
	assert.False(t, IsUserError(fetchErr))
	assert.False(t, IsFetchError(stderrors.New("plain")))
}

func TestCategorize(t *testing.T) {
	assert.Nil(t, Categorize(nil))

	wrapped := fmt.Errorf("outer: %w", NewValidationError("threshold", "not a number"))
	catErr := Categorize(wrapped)
	require.NotNil(t, catErr)
	assert.Equal(t, CodeInvalidParameter, catErr.Code)
	assert.Equal(t, http.StatusBadRequest, catErr.StatusCode)

	svcErr := &types.ServiceError{Code: "SOMETHING", Message: "went wrong"}
	assert.Equal(t, "SOMETHING", Categorize(svcErr).Code)

	plain := Categorize(stderrors.New("plain failure"))
	assert.Equal(t, CodeInternalError, plain.Code)
	assert.Equal(t, "plain failure", plain.Message)
}
