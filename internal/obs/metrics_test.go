package obs

import (
	"net/http"
	"net/http/httptest"
	"runtime"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		t.Fatalf("read counter: %v", err)
	}
	return m.GetCounter().GetValue()
}

func TestCanonicalPath(t *testing.T) {
	cases := map[string]string{
		"":                                       "/",
		"/metrics":                               "/metrics",
		"/v1/applications":                       "/v1/applications",
		"/v1/applications/abc":                   "/v1/applications/:id",
		"/v1/applications/abc/users":             "/v1/applications/:id/users",
		"/v1/applications/abc/users/u1/pause":    "/v1/applications/:id/users/:id/pause",
		"/v1/applications/abc/activity?limit=10": "/v1/applications/:id/activity",
		"/v1/client/login":                       "/v1/client/login",
	}
	for input, expected := range cases {
		if got := CanonicalPath(input); got != expected {
			t.Fatalf("CanonicalPath(%q)=%q, want %q", input, got, expected)
		}
	}
}

func TestInstrumentUsesRoutePattern(t *testing.T) {
	r := chi.NewRouter()
	r.Use(Instrument)
	r.Get("/v1/applications/{appID}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	before := counterValue(t, httpRequestsTotal.WithLabelValues(http.MethodGet, "/v1/applications/{appID}", "418"))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/applications/01HX", nil))
	if rec.Code != http.StatusTeapot {
		t.Fatalf("unexpected status %d", rec.Code)
	}
	after := counterValue(t, httpRequestsTotal.WithLabelValues(http.MethodGet, "/v1/applications/{appID}", "418"))
	if after != before+1 {
		t.Fatalf("expected counter increment, before=%v after=%v", before, after)
	}
}

func TestDomainCounters(t *testing.T) {
	before := counterValue(t, loginAttempts.WithLabelValues("hwid_mismatch"))
	ObserveLogin("hwid_mismatch")
	if got := counterValue(t, loginAttempts.WithLabelValues("hwid_mismatch")); got != before+1 {
		t.Fatalf("login counter not incremented: %v", got)
	}

	reaped := counterValue(t, sessionsReaped)
	AddReaped(0)
	AddReaped(3)
	if got := counterValue(t, sessionsReaped); got != reaped+3 {
		t.Fatalf("reaped counter = %v, want %v", got, reaped+3)
	}
}

func TestHandlerServesRegistry(t *testing.T) {
	Init()
	Init()
	ObserveWebhook("delivered")
	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(rec.Body.String(), "authority_webhook_deliveries_total") {
		t.Fatalf("metrics output missing webhook counter")
	}
}

func TestInitBuildInfo(t *testing.T) {
	InitBuildInfo("", "abc123")
	InitBuildInfo("1.2.0", "abc123")

	if n := testCollectorSeries(t, buildInfo); n != 1 {
		t.Fatalf("expected a single build_info series, got %d", n)
	}
	var m dto.Metric
	if err := buildInfo.WithLabelValues("1.2.0", "abc123", runtime.Version()).Write(&m); err != nil {
		t.Fatalf("read gauge: %v", err)
	}
	if m.GetGauge().GetValue() != 1 {
		t.Fatalf("expected build_info=1, got %v", m.GetGauge().GetValue())
	}
	if orUnknown("") != "unknown" {
		t.Fatalf("empty label should read unknown")
	}
}

func testCollectorSeries(t *testing.T, c prometheus.Collector) int {
	t.Helper()
	ch := make(chan prometheus.Metric, 16)
	c.Collect(ch)
	close(ch)
	n := 0
	for range ch {
		n++
	}
	return n
}
