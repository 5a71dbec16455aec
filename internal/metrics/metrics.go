package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	globalMetrics *Metrics
	globalMu      sync.RWMutex
)

// Metrics holds all Prometheus metrics for the roll-call service
type Metrics struct {
	// Delivery counters
	SendsTotal        *prometheus.CounterVec
	SendFailuresTotal *prometheus.CounterVec
	ExpiredTotal      *prometheus.CounterVec

	// Answer counters
	AnswersTotal         *prometheus.CounterVec
	AnswersRejectedTotal *prometheus.CounterVec

	// Campaign gauges
	CampaignActive *prometheus.GaugeVec
	Recipients     *prometheus.GaugeVec

	// Scheduler
	SchedulerPassesTotal prometheus.Counter
	SchedulerPassSeconds prometheus.Histogram
	SchedulerErrorsTotal prometheus.Counter

	// API metrics
	APIRequestsTotal *prometheus.CounterVec

	registry *prometheus.Registry
}

// New creates a new Metrics instance with all metrics registered
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		SendsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rollcall_sends_total",
				Help: "Total number of successfully delivered roll-call DMs",
			},
			[]string{"community", "kind"},
		),
		SendFailuresTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rollcall_send_failures_total",
				Help: "Total number of failed DM deliveries by failure class",
			},
			[]string{"community", "reason"},
		),
		ExpiredTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rollcall_recipients_expired_total",
				Help: "Total number of recipients expired by the deadline",
			},
			[]string{"community"},
		),
		AnswersTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rollcall_answers_total",
				Help: "Total number of recorded answers",
			},
			[]string{"community", "answer"},
		),
		AnswersRejectedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rollcall_answers_rejected_total",
				Help: "Total number of rejected answers (stale, duplicate, spoofed)",
			},
			[]string{"community", "reason"},
		),
		CampaignActive: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "rollcall_campaign_active",
				Help: "1 when the community has an active campaign",
			},
			[]string{"community"},
		),
		Recipients: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "rollcall_recipients",
				Help: "Current recipients per status",
			},
			[]string{"community", "status"},
		),
		SchedulerPassesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "rollcall_scheduler_passes_total",
				Help: "Total number of scheduler ticks",
			},
		),
		SchedulerPassSeconds: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "rollcall_scheduler_pass_seconds",
				Help:    "Duration of a full scheduler tick over all communities",
				Buckets: prometheus.ExponentialBuckets(0.01, 4, 8),
			},
		),
		SchedulerErrorsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "rollcall_scheduler_errors_total",
				Help: "Total number of failed delivery passes",
			},
		),
		APIRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rollcall_api_requests_total",
				Help: "Total number of API requests",
			},
			[]string{"method", "path", "status"},
		),
		registry: reg,
	}

	reg.MustRegister(
		m.SendsTotal,
		m.SendFailuresTotal,
		m.ExpiredTotal,
		m.AnswersTotal,
		m.AnswersRejectedTotal,
		m.CampaignActive,
		m.Recipients,
		m.SchedulerPassesTotal,
		m.SchedulerPassSeconds,
		m.SchedulerErrorsTotal,
		m.APIRequestsTotal,
	)

	return m
}

// Registry returns the metrics registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// SetGlobal sets the global metrics instance
func SetGlobal(m *Metrics) {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalMetrics = m
}

// Global returns the global metrics instance, or nil if not set
func Global() *Metrics {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return globalMetrics
}

// IncSends increments the delivered-DM counter
func IncSends(community, kind string) {
	if m := Global(); m != nil {
		m.SendsTotal.WithLabelValues(community, kind).Inc()
	}
}

// IncSendFailures increments the failed-DM counter
func IncSendFailures(community, reason string) {
	if m := Global(); m != nil {
		m.SendFailuresTotal.WithLabelValues(community, reason).Inc()
	}
}

// IncExpired increments the expired-recipient counter
func IncExpired(community string) {
	if m := Global(); m != nil {
		m.ExpiredTotal.WithLabelValues(community).Inc()
	}
}

// IncAnswers increments the recorded-answer counter
func IncAnswers(community, answer string) {
	if m := Global(); m != nil {
		m.AnswersTotal.WithLabelValues(community, answer).Inc()
	}
}

// IncAnswersRejected increments the rejected-answer counter
func IncAnswersRejected(community, reason string) {
	if m := Global(); m != nil {
		m.AnswersRejectedTotal.WithLabelValues(community, reason).Inc()
	}
}

// SetCampaignActive sets the active-campaign gauge
func SetCampaignActive(community string, active bool) {
	if m := Global(); m != nil {
		v := 0.0
		if active {
			v = 1.0
		}
		m.CampaignActive.WithLabelValues(community).Set(v)
	}
}

// SetRecipients sets the per-status recipient gauges
func SetRecipients(community string, counts map[string]int) {
	if m := Global(); m != nil {
		for status, n := range counts {
			m.Recipients.WithLabelValues(community, status).Set(float64(n))
		}
	}
}

// ObserveSchedulerPass records one full scheduler tick
func ObserveSchedulerPass(seconds float64) {
	if m := Global(); m != nil {
		m.SchedulerPassesTotal.Inc()
		m.SchedulerPassSeconds.Observe(seconds)
	}
}

// IncSchedulerErrors increments the failed-pass counter
func IncSchedulerErrors() {
	if m := Global(); m != nil {
		m.SchedulerErrorsTotal.Inc()
	}
}

// IncAPIRequests increments the API request counter
func IncAPIRequests(method, path, status string) {
	if m := Global(); m != nil {
		m.APIRequestsTotal.WithLabelValues(method, path, status).Inc()
	}
}
