package observability

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
)

func TestObserveRequestRecordsMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewAPICollector(reg)
	if err != nil {
		t.Fatalf("NewAPICollector: %v", err)
	}

	collector.ObserveRequest(http.MethodPost, "/screening/run", http.StatusOK, 15*time.Millisecond)
	collector.ObserveRequest(http.MethodPost, "/screening/run", http.StatusOK, 20*time.Millisecond)
	collector.ObserveRequest(http.MethodGet, "/events", http.StatusBadRequest, time.Millisecond)

	if got := testutil.ToFloat64(collector.Requests.WithLabelValues("POST", "/screening/run", "200")); got != 2 {
		t.Fatalf("api_requests_total = %v, want 2", got)
	}
	if got := testutil.ToFloat64(collector.Requests.WithLabelValues("GET", "/events", "400")); got != 1 {
		t.Fatalf("api_requests_total error label = %v, want 1", got)
	}

	if count := histogramSampleCount(t, reg, "api_request_duration_seconds", map[string]string{
		"method": "POST",
		"route":  "/screening/run",
	}); count != 2 {
		t.Fatalf("api_request_duration_seconds sample_count = %d, want 2", count)
	}
}

func TestCollectorsTolerateDoubleRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := NewAPICollector(reg)
	if err != nil {
		t.Fatalf("first NewAPICollector: %v", err)
	}
	second, err := NewAPICollector(reg)
	if err != nil {
		t.Fatalf("second NewAPICollector: %v", err)
	}

	first.ObserveRequest(http.MethodGet, "/health", http.StatusOK, time.Millisecond)
	if got := testutil.ToFloat64(second.Requests.WithLabelValues("GET", "/health", "200")); got != 1 {
		t.Fatalf("collectors not sharing series after re-registration: got %v", got)
	}

	if _, err := NewScreeningCollector(reg); err != nil {
		t.Fatalf("first NewScreeningCollector: %v", err)
	}
	if _, err := NewScreeningCollector(reg); err != nil {
		t.Fatalf("second NewScreeningCollector: %v", err)
	}
}

func TestMetricsHandlerExposesScreeningSeries(t *testing.T) {
	reg := prometheus.NewRegistry()
	api, err := NewAPICollector(reg)
	if err != nil {
		t.Fatalf("NewAPICollector: %v", err)
	}
	screening, err := NewScreeningCollector(reg)
	if err != nil {
		t.Fatalf("NewScreeningCollector: %v", err)
	}

	api.SetCatalogObjects(42)
	api.ObserveRequest(http.MethodGet, "/health", http.StatusOK, time.Millisecond)
	screening.RecordRun("completed", 800*time.Millisecond, 12)
	screening.AddSavedEvents("COLLISION", 3)
	screening.IncRefinementFailures()
	screening.RecordManeuverPlan(true)
	screening.RecordNotification(false)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	api.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("/metrics status = %d, want 200", rr.Code)
	}
	body := rr.Body.String()
	for _, metric := range []string{
		"api_requests_total",
		"api_request_duration_seconds",
		"catalog_objects 42",
		"screening_runs_total",
		"screening_pass_duration_seconds",
		"screening_candidate_pairs 12",
		"conjunction_events_saved_total",
		"screening_refinement_failures_total 1",
		`maneuver_plans_total{outcome="success"} 1`,
		`notifications_total{status="failed"} 1`,
	} {
		if !strings.Contains(body, metric) {
			t.Fatalf("expected %q in /metrics output:\n%s", metric, body)
		}
	}
}

func histogramSampleCount(t *testing.T, gatherer prometheus.Gatherer, name string, labels map[string]string) uint64 {
	t.Helper()

	metrics, err := gatherer.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	for _, mf := range metrics {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.Metric {
			if matchLabels(m.GetLabel(), labels) && m.GetHistogram() != nil {
				return m.GetHistogram().GetSampleCount()
			}
		}
	}
	return 0
}

func matchLabels(got []*dto.LabelPair, want map[string]string) bool {
	if len(got) < len(want) {
		return false
	}
	matched := 0
	for _, lp := range got {
		if val, ok := want[lp.GetName()]; ok && val == lp.GetValue() {
			matched++
		}
	}
	return matched == len(want)
}
