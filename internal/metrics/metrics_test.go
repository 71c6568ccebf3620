package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCounters(t *testing.T) {
	m := New()

	m.Outcome("parallel", "")
	m.Outcome("parallel", "InputError")
	m.Outcome("parallel", "InputError")
	m.Retry("score", "TransientNetworkError")
	m.Cache("hit")
	m.BatchPoll("RUNNING")
	m.ObserveRun("parallel", 2*time.Second)
	done := m.TrackScore()
	if got := testutil.ToFloat64(m.InflightScores); got != 1 {
		t.Fatalf("expected 1 inflight score, got %v", got)
	}
	done()

	if got := testutil.ToFloat64(m.Outcomes.WithLabelValues("parallel", "InputError")); got != 2 {
		t.Fatalf("expected 2 input errors, got %v", got)
	}
	if got := testutil.ToFloat64(m.Retries.WithLabelValues("score", "TransientNetworkError")); got != 1 {
		t.Fatalf("expected 1 retry, got %v", got)
	}
	if got := testutil.ToFloat64(m.InflightScores); got != 0 {
		t.Fatalf("expected no inflight scores, got %v", got)
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics

	m.Outcome("sequential", "")
	m.Retry("score", "x")
	m.Cache("miss")
	m.BatchPoll("FAILED")
	m.ObserveRun("batch", time.Second)
	m.TrackScore()()
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := New()
	m.Cache("build")

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("get metrics: %v", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if !strings.Contains(string(body), `resume_match_context_cache_events_total{event="build"} 1`) {
		t.Fatalf("expected cache counter in output:\n%s", body)
	}
}
