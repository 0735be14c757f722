package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	apperrors "github.com/ccass-tracker/internal/errors"
	"github.com/ccass-tracker/internal/service"
	"github.com/ccass-tracker/internal/types"
)

func decodeError(t *testing.T, w *httptest.ResponseRecorder) types.ServiceError {
	t.Helper()
	var response ErrorResponse
	if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
		t.Fatalf("Failed to decode error response: %v", err)
	}
	return response.Error
}

// TestTopTen_Success tests the happy path and query conversion
func TestTopTen_Success(t *testing.T) {
	server, svc := createTestServer()

	req := httptest.NewRequest("GET", "/ccass/top_ten_shareholding?stock_code=700&start_date=2023-01-02&end_date=2023-01-04", nil)
	w := httptest.NewRecorder()
	server.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	if svc.lastQuery.StockCode != "700" {
		t.Errorf("Expected stock code 700, got %s", svc.lastQuery.StockCode)
	}
	wantStart := time.Date(2023, time.January, 2, 0, 0, 0, 0, time.UTC)
	if !svc.lastQuery.StartDate.Equal(wantStart) {
		t.Errorf("Expected start %v, got %v", wantStart, svc.lastQuery.StartDate)
	}

	var result map[string][]map[string]interface{}
	if err := json.NewDecoder(w.Body).Decode(&result); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	records := result["2023/01/02"]
	if len(records) != 1 {
		t.Fatalf("Expected 1 record for 2023/01/02, got %v", result)
	}
	if records[0]["participant-id"] != "A00003" {
		t.Errorf("Expected participant-id A00003, got %v", records[0]["participant-id"])
	}
	if records[0]["shareholding-percent"] != 12.85 {
		t.Errorf("Expected shareholding-percent 12.85, got %v", records[0]["shareholding-percent"])
	}
}

// TestThreshold_Success tests threshold parsing and the response shape
func TestThreshold_Success(t *testing.T) {
	server, svc := createTestServer()

	req := httptest.NewRequest("GET", "/ccass/shareholding_threshold?stock_code=00700&start_date=2023-01-02&end_date=2023-01-04&threshold=-0.5", nil)
	w := httptest.NewRecorder()
	server.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	if svc.lastThreshold != -0.5 {
		t.Errorf("Expected threshold -0.5, got %v", svc.lastThreshold)
	}

	var result map[string]map[string]float64
	if err := json.NewDecoder(w.Body).Decode(&result); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if result["2023/01/04"]["A00003"] != 0.1 {
		t.Errorf("Expected A00003 change 0.1 on 2023/01/04, got %v", result)
	}
}

// TestQueryValidation tests that bad parameters are rejected before the service runs
func TestQueryValidation(t *testing.T) {
	tests := []struct {
		name      string
		path      string
		wantParam string
	}{
		{"missing stock code", "/ccass/top_ten_shareholding?start_date=2023-01-02&end_date=2023-01-04", "stock_code"},
		{"non numeric stock code", "/ccass/top_ten_shareholding?stock_code=HK700&start_date=2023-01-02&end_date=2023-01-04", "stock_code"},
		{"stock code too long", "/ccass/top_ten_shareholding?stock_code=123456&start_date=2023-01-02&end_date=2023-01-04", "stock_code"},
		{"bad start date", "/ccass/top_ten_shareholding?stock_code=700&start_date=2023/01/02&end_date=2023-01-04", "start_date"},
		{"missing end date", "/ccass/top_ten_shareholding?stock_code=700&start_date=2023-01-02", "end_date"},
		{"reversed range", "/ccass/top_ten_shareholding?stock_code=700&start_date=2023-01-05&end_date=2023-01-04", "start_date"},
		{"missing threshold", "/ccass/shareholding_threshold?stock_code=700&start_date=2023-01-02&end_date=2023-01-04", "threshold"},
		{"non numeric threshold", "/ccass/shareholding_threshold?stock_code=700&start_date=2023-01-02&end_date=2023-01-04&threshold=abc", "threshold"},
		{"threshold endpoint checks dates", "/ccass/shareholding_threshold?stock_code=700&start_date=2023-13-02&end_date=2023-01-04&threshold=1", "start_date"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server, svc := createTestServer()

			w := httptest.NewRecorder()
			server.router.ServeHTTP(w, httptest.NewRequest("GET", tt.path, nil))

			if w.Code != http.StatusBadRequest {
				t.Fatalf("Expected status 400, got %d: %s", w.Code, w.Body.String())
			}

			svcErr := decodeError(t, w)
			if svcErr.Code != apperrors.CodeInvalidParameter {
				t.Errorf("Expected code %s, got %s", apperrors.CodeInvalidParameter, svcErr.Code)
			}
			if svcErr.Details["parameter"] != tt.wantParam {
				t.Errorf("Expected parameter %s, got %v", tt.wantParam, svcErr.Details["parameter"])
			}
			if svc.calls != 0 {
				t.Errorf("Expected service not to be called, got %d calls", svc.calls)
			}
		})
	}
}

// TestServiceErrors tests that pipeline failures surface with their message
func TestServiceErrors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
		wantMsg    string
	}{
		{
			name:       "fetch failure keeps the upstream body",
			err:        apperrors.NewFetchError("2023/01/03", http.StatusBadGateway, "Bad Gateway from hkexnews", nil),
			wantStatus: http.StatusInternalServerError,
			wantCode:   apperrors.CodeFetchFailed,
			wantMsg:    "Bad Gateway from hkexnews",
		},
		{
			name:       "parse failure",
			err:        apperrors.NewParseError("17 cells is not a multiple of 5", nil),
			wantStatus: http.StatusInternalServerError,
			wantCode:   apperrors.CodeParseFailed,
			wantMsg:    "unexpected shareholding table: 17 cells is not a multiple of 5",
		},
		{
			name:       "range too long",
			err:        apperrors.NewValidationError("end_date", "range of 400 days exceeds the maximum of 366"),
			wantStatus: http.StatusBadRequest,
			wantCode:   apperrors.CodeInvalidParameter,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server, svc := createTestServer()
			svc.topFunc = func(ctx context.Context, query *service.ShareholdingQuery) (types.TableRangeResult, error) {
				return nil, tt.err
			}

			w := httptest.NewRecorder()
			server.router.ServeHTTP(w, httptest.NewRequest("GET", "/ccass/top_ten_shareholding?stock_code=700&start_date=2023-01-02&end_date=2023-01-04", nil))

			if w.Code != tt.wantStatus {
				t.Fatalf("Expected status %d, got %d", tt.wantStatus, w.Code)
			}

			svcErr := decodeError(t, w)
			if svcErr.Code != tt.wantCode {
				t.Errorf("Expected code %s, got %s", tt.wantCode, svcErr.Code)
			}
			if tt.wantMsg != "" && svcErr.Message != tt.wantMsg {
				t.Errorf("Expected message %q, got %q", tt.wantMsg, svcErr.Message)
			}
		})
	}
}
