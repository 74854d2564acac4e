package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
)

func TestMetrics_Exposition(t *testing.T) {
	m := New()
	m.Submissions.WithLabelValues("PREAUTH", "HCX", "success").Inc()
	m.Webhooks.WithLabelValues("processed").Add(3)
	m.ObserveAdapter("DIRECT_API", "submit_claim", time.Now().Add(-50*time.Millisecond))

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := m.Handler()(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	body := rec.Body.String()
	if !strings.Contains(body, "payerlink_gateway_submissions_total") {
		t.Error("expected submissions counter in exposition")
	}
	if !strings.Contains(body, `payerlink_gateway_webhooks_total{outcome="processed"} 3`) {
		t.Error("expected webhook counter value 3 in exposition")
	}
	if !strings.Contains(body, "payerlink_gateway_adapter_duration_seconds") {
		t.Error("expected adapter duration histogram in exposition")
	}
}

func TestMetrics_IndependentRegistries(t *testing.T) {
	a := New()
	b := New()
	a.Submissions.WithLabelValues("CLAIM", "SFTP_BATCH", "failed").Inc()

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := b.Handler()(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.Contains(rec.Body.String(), `mode="SFTP_BATCH"`) {
		t.Error("expected registries to be independent")
	}
}
