// Package metrics provides Prometheus metrics for the notification pipeline.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "tickerfox"

// Metrics holds all Prometheus metrics for the application. A nil *Metrics
// is valid and records nothing.
type Metrics struct {
	// Webhook ingestion
	WebhookDeliveries *prometheus.CounterVec
	DispatchDuration  prometheus.Histogram

	// Channel delivery
	ChannelSends *prometheus.CounterVec

	// Hub subscriptions
	HubRequests *prometheus.CounterVec

	// Query generation
	QueriesGenerated *prometheus.CounterVec

	// Alert lifecycle
	AlertOperations *prometheus.CounterVec
}

// NewMetrics registers all metrics with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		WebhookDeliveries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "webhook",
			Name:      "deliveries_total",
			Help:      "Inbound hub deliveries by outcome",
		}, []string{"outcome"}),
		DispatchDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "webhook",
			Name:      "dispatch_duration_seconds",
			Help:      "Time spent fanning out one delivery",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
		ChannelSends: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "channel",
			Name:      "sends_total",
			Help:      "Notification sends by channel and result",
		}, []string{"channel", "result"}),
		HubRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "hub",
			Name:      "requests_total",
			Help:      "Hub subscribe/unsubscribe requests by mode and result",
		}, []string{"mode", "result"}),
		QueriesGenerated: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "query",
			Name:      "generated_total",
			Help:      "Generated search queries by strategy",
		}, []string{"strategy"}),
		AlertOperations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "alerts",
			Name:      "operations_total",
			Help:      "Alert lifecycle operations by operation and result",
		}, []string{"operation", "result"}),
	}
}

func (m *Metrics) ObserveDelivery(outcome string) {
	if m == nil {
		return
	}
	m.WebhookDeliveries.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveDispatch(d time.Duration) {
	if m == nil {
		return
	}
	m.DispatchDuration.Observe(d.Seconds())
}

func (m *Metrics) ObserveSend(channel string, ok bool) {
	if m == nil {
		return
	}
	m.ChannelSends.WithLabelValues(channel, result(ok)).Inc()
}

func (m *Metrics) ObserveHubRequest(mode string, ok bool) {
	if m == nil {
		return
	}
	m.HubRequests.WithLabelValues(mode, result(ok)).Inc()
}

func (m *Metrics) ObserveQuery(strategy string) {
	if m == nil {
		return
	}
	m.QueriesGenerated.WithLabelValues(strategy).Inc()
}

func (m *Metrics) ObserveAlertOperation(operation string, err error) {
	if m == nil {
		return
	}
	m.AlertOperations.WithLabelValues(operation, result(err == nil)).Inc()
}

func result(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}
