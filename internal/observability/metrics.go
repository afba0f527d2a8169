package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics tracks the bot's workflow and QA relay activity.
//
// Metric families:
//   - demogate_events_total{type} — Slack events received, by event type
//   - demogate_handler_errors_total{handler} — handler failures after recovery
//   - demogate_approvals_posted_total — approval cards posted
//   - demogate_decisions_total{verdict} — approve/decline decisions
//   - demogate_qa_requests_total{outcome} — QA relay calls by outcome
//   - demogate_qa_duration_seconds — QA relay end-to-end latency
type Metrics struct {
	EventCounter    *prometheus.CounterVec
	HandlerErrors   *prometheus.CounterVec
	ApprovalsPosted prometheus.Counter
	Decisions       *prometheus.CounterVec
	QARequests      *prometheus.CounterVec
	QADuration      prometheus.Histogram
}

// NewMetrics creates and registers all metrics on the given registerer.
// Pass prometheus.DefaultRegisterer in production; tests use a fresh
// prometheus.NewRegistry to avoid cross-test registration conflicts.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		EventCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "demogate_events_total",
				Help: "Slack events received, by event type.",
			},
			[]string{"type"},
		),
		HandlerErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "demogate_handler_errors_total",
				Help: "Event handler failures, by handler name.",
			},
			[]string{"handler"},
		),
		ApprovalsPosted: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "demogate_approvals_posted_total",
				Help: "Approval cards posted to the approval channel.",
			},
		),
		Decisions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "demogate_decisions_total",
				Help: "Approval decisions, by verdict (approved|declined).",
			},
			[]string{"verdict"},
		),
		QARequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "demogate_qa_requests_total",
				Help: "QA relay calls, by outcome (answered|empty|timeout|error|not_configured).",
			},
			[]string{"outcome"},
		),
		QADuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "demogate_qa_duration_seconds",
				Help:    "QA relay end-to-end latency in seconds.",
				Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 90},
			},
		),
	}
}

// ObserveQA records one QA relay call.
func (m *Metrics) ObserveQA(outcome string, elapsed time.Duration) {
	m.QARequests.WithLabelValues(outcome).Inc()
	m.QADuration.Observe(elapsed.Seconds())
}

// Serve exposes the given gatherer on addr at /metrics. It blocks until the
// server fails, so callers run it in a goroutine.
func Serve(addr string, gatherer prometheus.Gatherer) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return server.ListenAndServe()
}
