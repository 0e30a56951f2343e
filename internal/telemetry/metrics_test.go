package telemetry

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_ObserveStage(t *testing.T) {
	m := NewMetrics()

	m.ObserveStage("extract", OutcomeSuccess, 10*time.Millisecond)
	m.ObserveStage("extract", OutcomeSuccess, 20*time.Millisecond)
	m.ObserveStage("normalize", OutcomeBackendError, time.Millisecond)

	if got := testutil.ToFloat64(m.stageCalls.WithLabelValues("extract", "success")); got != 2 {
		t.Errorf("extract success = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.stageCalls.WithLabelValues("normalize", "backend_error")); got != 1 {
		t.Errorf("normalize backend_error = %v, want 1", got)
	}
}

func TestMetrics_ObservePipeline(t *testing.T) {
	m := NewMetrics()

	m.ObservePipeline("text", "")
	m.ObservePipeline("image", "normalize")

	if got := testutil.ToFloat64(m.pipelineRuns.WithLabelValues("text", "none")); got != 1 {
		t.Errorf("text none = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.pipelineRuns.WithLabelValues("image", "normalize")); got != 1 {
		t.Errorf("image normalize = %v, want 1", got)
	}
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveStage("extract", OutcomeSuccess, time.Second)
	m.ObservePipeline("text", "")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestMetrics_Handler(t *testing.T) {
	m := NewMetrics()
	m.ObserveStage("schedule", OutcomeTransportError, time.Second)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, `appointment_gateway_stage_calls_total{outcome="transport_error",stage="schedule"} 1`) {
		t.Errorf("expected stage counter in exposition, got:\n%s", body)
	}
}
