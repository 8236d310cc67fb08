package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"logvault/cmd/internal/auth/session"
	"logvault/cmd/internal/logs"
)

// Compile-time checks that Metrics plugs into the recorder hooks.
var (
	_ session.Recorder    = (*Metrics)(nil)
	_ logs.Recorder       = (*Metrics)(nil)
	_ logs.StreamRecorder = (*Metrics)(nil)
)

func TestObserveHTTP(t *testing.T) {
	m := NewWithRegistry(prometheus.NewRegistry())

	m.ObserveHTTP("GET", "/logs", 200, 10*time.Millisecond)
	m.ObserveHTTP("GET", "/logs", 200, 20*time.Millisecond)
	m.ObserveHTTP("POST", "/logs", 401, time.Millisecond)

	expected := `
# HELP logvault_http_requests_total Total number of HTTP requests
# TYPE logvault_http_requests_total counter
logvault_http_requests_total{method="GET",route="/logs",status="200"} 2
logvault_http_requests_total{method="POST",route="/logs",status="401"} 1
`
	if err := testutil.CollectAndCompare(m.HTTPRequestsTotal, strings.NewReader(expected)); err != nil {
		t.Fatalf("unexpected metrics: %v", err)
	}
	if n := testutil.CollectAndCount(m.HTTPRequestDuration); n != 2 {
		t.Fatalf("expected 2 duration series, got %d", n)
	}
}

func TestOutcomeCounters(t *testing.T) {
	m := NewWithRegistry(prometheus.NewRegistry())

	m.ObserveRegister("ok")
	m.ObserveRegister("conflict")
	m.ObserveLogin("invalid")
	m.ObserveLogin("invalid")
	m.ObserveTokenRejected("expired")
	m.ObserveAppend("ok")
	m.ObserveList("empty")

	checks := []struct {
		name string
		got  float64
		want float64
	}{
		{"register ok", testutil.ToFloat64(m.RegisterTotal.WithLabelValues("ok")), 1},
		{"register conflict", testutil.ToFloat64(m.RegisterTotal.WithLabelValues("conflict")), 1},
		{"login invalid", testutil.ToFloat64(m.LoginTotal.WithLabelValues("invalid")), 2},
		{"token expired", testutil.ToFloat64(m.TokenRejectedTotal.WithLabelValues("expired")), 1},
		{"append ok", testutil.ToFloat64(m.LogAppendTotal.WithLabelValues("ok")), 1},
		{"list empty", testutil.ToFloat64(m.LogListTotal.WithLabelValues("empty")), 1},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Fatalf("%s: got %v want %v", c.name, c.got, c.want)
		}
	}
}

func TestStreamGauge(t *testing.T) {
	m := NewWithRegistry(prometheus.NewRegistry())

	m.StreamOpened()
	m.StreamOpened()
	m.StreamClosed("dropped")
	m.ObserveStreamDropped()

	if got := testutil.ToFloat64(m.StreamSubscribers); got != 1 {
		t.Fatalf("subscribers=%v want 1", got)
	}
	if got := testutil.ToFloat64(m.StreamClosedTotal.WithLabelValues("dropped")); got != 1 {
		t.Fatalf("closed=%v want 1", got)
	}
	if got := testutil.ToFloat64(m.StreamDroppedTotal); got != 1 {
		t.Fatalf("dropped=%v want 1", got)
	}
}

func TestHandlerServesTextFormat(t *testing.T) {
	m := New()
	m.ObserveLogin("ok")

	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	body, _ := io.ReadAll(rr.Body)
	for _, want := range []string{`logvault_auth_login_total{outcome="ok"} 1`, "go_goroutines"} {
		if !strings.Contains(string(body), want) {
			t.Fatalf("missing %q in metrics output", want)
		}
	}
}

func TestRegisterPoolNil(t *testing.T) {
	var m *Metrics
	m.RegisterPool(nil)
	New().RegisterPool(nil)
}
