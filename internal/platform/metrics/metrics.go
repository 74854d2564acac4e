// Package metrics instruments the gateway with Prometheus counters and
// histograms and exposes them on /metrics.
package metrics

import (
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry *prometheus.Registry

	Submissions     *prometheus.CounterVec
	StatusChecks    *prometheus.CounterVec
	Webhooks        *prometheus.CounterVec
	PollerCycles    *prometheus.CounterVec
	PollerUpdated   *prometheus.CounterVec
	AdapterDuration *prometheus.HistogramVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		Submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "payerlink",
			Name:      "gateway_submissions_total",
			Help:      "Outbound preauth/claim submissions by entity type, adapter mode and result.",
		}, []string{"entity", "mode", "result"}),
		StatusChecks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "payerlink",
			Name:      "gateway_status_checks_total",
			Help:      "Adapter status checks by entity type and adapter mode.",
		}, []string{"entity", "mode"}),
		Webhooks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "payerlink",
			Name:      "gateway_webhooks_total",
			Help:      "Inbound payer webhooks by outcome.",
		}, []string{"outcome"}),
		PollerCycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "payerlink",
			Name:      "gateway_poller_cycles_total",
			Help:      "Reconciliation poller cycles by outcome.",
		}, []string{"outcome"}),
		PollerUpdated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "payerlink",
			Name:      "gateway_poller_updates_total",
			Help:      "Entities updated by the reconciliation poller.",
		}, []string{"entity"}),
		AdapterDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "payerlink",
			Name:      "gateway_adapter_duration_seconds",
			Help:      "Latency of adapter calls by mode and operation.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"mode", "op"}),
	}

	m.registry.MustRegister(
		m.Submissions,
		m.StatusChecks,
		m.Webhooks,
		m.PollerCycles,
		m.PollerUpdated,
		m.AdapterDuration,
	)

	return m
}

// ObserveAdapter records the latency of one adapter call.
func (m *Metrics) ObserveAdapter(mode, op string, start time.Time) {
	m.AdapterDuration.WithLabelValues(mode, op).Observe(time.Since(start).Seconds())
}

// Handler returns the /metrics exposition handler.
func (m *Metrics) Handler() echo.HandlerFunc {
	h := promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
	return func(c echo.Context) error {
		h.ServeHTTP(c.Response(), c.Request())
		return nil
	}
}
