package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestHandlerExposesTripCounters(t *testing.T) {
	gin.SetMode(gin.TestMode)
	before := testutil.ToFloat64(TripsFinished.WithLabelValues("completed"))
	TripsFinished.WithLabelValues("completed").Inc()
	if got := testutil.ToFloat64(TripsFinished.WithLabelValues("completed")); got != before+1 {
		t.Fatalf("expected counter %v, got %v", before+1, got)
	}

	r := gin.New()
	r.GET("/metrics", Handler())
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if !strings.Contains(resp.Body.String(), "trip_planner_trips_finished_total") {
		t.Fatalf("expected trips_finished_total in output")
	}
}
