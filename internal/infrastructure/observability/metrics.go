package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all application metrics. Every recording helper tolerates a
// nil receiver so components can run without a registry.
type Metrics struct {
	// Payment metrics
	PaymentsProcessed    *prometheus.CounterVec
	PaymentsRefunded     *prometheus.CounterVec
	ProviderErrors       *prometheus.CounterVec
	ProviderCallDuration *prometheus.HistogramVec

	// Command metrics
	CommandsTotal   *prometheus.CounterVec
	CommandUndos    *prometheus.CounterVec
	CommandDuration *prometheus.HistogramVec
	CommandHistory  prometheus.Gauge

	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Circuit breaker metrics
	CircuitBreakerState *prometheus.GaugeVec

	// Worker metrics
	WorkerMessagesProcessed *prometheus.CounterVec
}

// NewMetrics creates and registers all metrics against the given registry.
// If reg is nil, prometheus.DefaultRegisterer is used.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		PaymentsProcessed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "payment_processed_total",
				Help:      "Payments processed by provider, currency and outcome",
			},
			[]string{"provider", "currency", "status"},
		),
		PaymentsRefunded: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "payment_refunded_total",
				Help:      "Refunds issued by provider and currency",
			},
			[]string{"provider", "currency"},
		),
		ProviderErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "provider_errors_total",
				Help:      "Provider call failures by provider, operation and kind",
			},
			[]string{"provider", "operation", "kind"},
		),
		ProviderCallDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "provider_call_duration_seconds",
				Help:      "Provider call duration in seconds",
				Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 20},
			},
			[]string{"provider", "operation"},
		),
		CommandsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "commands_total",
				Help:      "Commands executed by name and outcome",
			},
			[]string{"command", "status"},
		),
		CommandUndos: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "command_undo_total",
				Help:      "Command undos by name and outcome",
			},
			[]string{"command", "status"},
		),
		CommandDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "command_duration_seconds",
				Help:      "Command execution duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"command"},
		),
		CommandHistory: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "command_history_size",
				Help:      "Number of undoable commands held in history",
			},
		),
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		CircuitBreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "circuit_breaker_state",
				Help:      "Circuit breaker state (0=closed, 1=half-open, 2=open)",
			},
			[]string{"name"},
		),
		WorkerMessagesProcessed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "worker_messages_processed_total",
				Help:      "Total number of worker messages processed",
			},
			[]string{"stream", "status"},
		),
	}

	reg.MustRegister(
		m.PaymentsProcessed,
		m.PaymentsRefunded,
		m.ProviderErrors,
		m.ProviderCallDuration,
		m.CommandsTotal,
		m.CommandUndos,
		m.CommandDuration,
		m.CommandHistory,
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.CircuitBreakerState,
		m.WorkerMessagesProcessed,
	)

	return m
}

func (m *Metrics) RecordPayment(provider, currency, status string) {
	if m == nil {
		return
	}
	m.PaymentsProcessed.WithLabelValues(provider, currency, status).Inc()
}

func (m *Metrics) RecordRefund(provider, currency string) {
	if m == nil {
		return
	}
	m.PaymentsRefunded.WithLabelValues(provider, currency).Inc()
}

func (m *Metrics) RecordProviderCall(provider, operation string, d time.Duration) {
	if m == nil {
		return
	}
	m.ProviderCallDuration.WithLabelValues(provider, operation).Observe(d.Seconds())
}

func (m *Metrics) RecordProviderError(provider, operation, kind string) {
	if m == nil {
		return
	}
	m.ProviderErrors.WithLabelValues(provider, operation, kind).Inc()
}

func (m *Metrics) RecordCommand(command, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.CommandsTotal.WithLabelValues(command, status).Inc()
	m.CommandDuration.WithLabelValues(command).Observe(d.Seconds())
}

func (m *Metrics) RecordUndo(command, status string) {
	if m == nil {
		return
	}
	m.CommandUndos.WithLabelValues(command, status).Inc()
}

func (m *Metrics) SetHistorySize(n int) {
	if m == nil {
		return
	}
	m.CommandHistory.Set(float64(n))
}

func (m *Metrics) SetBreakerState(name string, state float64) {
	if m == nil {
		return
	}
	m.CircuitBreakerState.WithLabelValues(name).Set(state)
}

func (m *Metrics) RecordWorkerMessage(stream, status string) {
	if m == nil {
		return
	}
	m.WorkerMessagesProcessed.WithLabelValues(stream, status).Inc()
}
