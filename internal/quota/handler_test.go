package quota

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func setupUsageRouter(t *testing.T, limits Limits) (*gin.Engine, *Ledger) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	ledger := NewLedger(NewMemoryStore(), limits, WithClock(func() time.Time { return baseTime }))
	r := gin.New()
	NewHandler(ledger).RegisterRoutes(r.Group("/api/v1"))
	return r, ledger
}

func TestGetUsageReportsWindows(t *testing.T) {
	router, ledger := setupUsageRouter(t, Limits{Hourly: 5, Daily: 20, CostCap: 10, CostPerRequest: 0.03})
	for i := 0; i < 2; i++ {
		if _, err := ledger.Reserve(context.Background(), "client-1", 0.03); err != nil {
			t.Fatalf("reserve: %v", err)
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/usage/client-1", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	var got Usage
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Hourly.Used != 2 || got.Hourly.Remaining != 3 {
		t.Fatalf("unexpected hourly usage: %+v", got.Hourly)
	}
	if got.Daily.Used != 2 || got.Daily.Limit != 20 {
		t.Fatalf("unexpected daily usage: %+v", got.Daily)
	}
	if !got.CanSubmit {
		t.Fatalf("expected can_submit true")
	}
}

func TestGetUsageUnknownClientIsZero(t *testing.T) {
	router, _ := setupUsageRouter(t, Limits{Hourly: 5})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/usage/stranger", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	var got Usage
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Hourly.Used != 0 || got.Hourly.Remaining != 5 {
		t.Fatalf("expected untouched quota, got %+v", got.Hourly)
	}
}

func TestGetUsageRejectsMalformedClientID(t *testing.T) {
	router, _ := setupUsageRouter(t, Limits{Hourly: 5})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/usage/bad%20id%3Cscript%3E", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Error.Code != "validation_error" {
		t.Fatalf("expected validation_error, got %q", body.Error.Code)
	}
}
