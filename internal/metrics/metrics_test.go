package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_Observe(t *testing.T) {
	m := New("test")

	m.ObserveScenario("linear_regression", true, 10*time.Millisecond)
	m.ObserveScenario("linear_regression", false, time.Millisecond)
	m.ObserveScenario("moving_average", true, time.Millisecond)
	m.ObserveCache("revenue", true)
	m.ObserveCache("revenue", false)
	m.ObserveCache("revenue", false)
	m.CacheRefreshFailed("inventory")
	m.SessionCreated()
	m.SessionRerun()
	m.SessionDeleted()

	if got := testutil.ToFloat64(m.ScenarioRuns.WithLabelValues("linear_regression", OutcomeSuccess)); got != 1 {
		t.Errorf("Expected 1 successful linear run, got %v", got)
	}
	if got := testutil.ToFloat64(m.ScenarioRuns.WithLabelValues("linear_regression", OutcomeFailed)); got != 1 {
		t.Errorf("Expected 1 failed linear run, got %v", got)
	}
	if got := testutil.ToFloat64(m.CacheMisses.WithLabelValues("revenue")); got != 2 {
		t.Errorf("Expected 2 cache misses, got %v", got)
	}
	if got := testutil.ToFloat64(m.CacheHits.WithLabelValues("revenue")); got != 1 {
		t.Errorf("Expected 1 cache hit, got %v", got)
	}
	if got := testutil.ToFloat64(m.CacheRefreshFail.WithLabelValues("inventory")); got != 1 {
		t.Errorf("Expected 1 refresh failure, got %v", got)
	}
	if got := testutil.ToFloat64(m.SessionsCreated); got != 1 {
		t.Errorf("Expected 1 session created, got %v", got)
	}
	if got := testutil.CollectAndCount(m.ScenarioDuration); got != 2 {
		t.Errorf("Expected 2 duration series, got %d", got)
	}
}

func TestMetrics_NilReceiver(t *testing.T) {
	var m *Metrics
	m.ObserveScenario("linear_regression", true, time.Millisecond)
	m.ObserveCache("revenue", true)
	m.CacheRefreshFailed("revenue")
	m.SessionCreated()
	m.SessionRerun()
	m.SessionDeleted()
}

func TestMetrics_IndependentRegistries(t *testing.T) {
	a := New("ledgercast")
	b := New("ledgercast")

	a.SessionCreated()
	if got := testutil.ToFloat64(b.SessionsCreated); got != 0 {
		t.Errorf("Expected registries to be independent, got %v", got)
	}
}

func TestMetrics_Handler(t *testing.T) {
	m := New("ledgercast").WithRuntimeCollectors()
	m.SessionCreated()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), "ledgercast_sessions_created_total 1") {
		t.Errorf("Expected sessions counter in exposition, got:\n%s", body)
	}
	if !strings.Contains(string(body), "go_goroutines") {
		t.Error("Expected runtime collectors in exposition")
	}
}
