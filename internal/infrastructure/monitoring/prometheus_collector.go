package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type PrometheusCollector struct {
	// Gauges
	connectionsLive     prometheus.Gauge
	sessionsActiveTotal prometheus.Gauge

	// Counters
	messagesReceivedTotal  *prometheus.CounterVec
	broadcastsTotal        *prometheus.CounterVec
	deliveryFailuresTotal  prometheus.Counter
	sweeperDeletionsTotal  *prometheus.CounterVec
	sessionsCreatedTotal   prometheus.Counter
	sessionsEndedTotal     prometheus.Counter

	// Histograms
	messageHandlingDuration *prometheus.HistogramVec

	// Per-session metrics
	sessionParticipantCount *prometheus.GaugeVec
}

func NewPrometheusCollector() *PrometheusCollector {
	return &PrometheusCollector{
		connectionsLive: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "watchparty_connections_live",
			Help: "Number of live websocket connections",
		}),

		sessionsActiveTotal: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "watchparty_sessions_active_total",
			Help: "Total number of active sessions",
		}),

		messagesReceivedTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "watchparty_messages_received_total",
			Help: "Total number of websocket messages received",
		}, []string{"type"}),

		broadcastsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "watchparty_broadcasts_total",
			Help: "Total number of session broadcasts",
		}, []string{"type"}),

		deliveryFailuresTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "watchparty_delivery_failures_total",
			Help: "Total number of per-recipient broadcast delivery failures",
		}),

		sweeperDeletionsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "watchparty_sweeper_deletions_total",
			Help: "Total number of sessions deleted by the lifecycle sweeper",
		}, []string{"reason"}),

		sessionsCreatedTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "watchparty_sessions_created_total",
			Help: "Total number of sessions created",
		}),

		sessionsEndedTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "watchparty_sessions_ended_total",
			Help: "Total number of sessions deactivated",
		}),

		messageHandlingDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "watchparty_message_handling_duration_seconds",
			Help:    "Duration of websocket message handling",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		}, []string{"type"}),

		sessionParticipantCount: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "watchparty_session_participant_count",
			Help: "Number of participants per session",
		}, []string{"session_id"}),
	}
}

func (p *PrometheusCollector) RecordConnectionOpened() {
	p.connectionsLive.Inc()
}

func (p *PrometheusCollector) RecordConnectionClosed() {
	p.connectionsLive.Dec()
}

func (p *PrometheusCollector) RecordSessionCreated() {
	p.sessionsCreatedTotal.Inc()
	p.sessionsActiveTotal.Inc()
}

func (p *PrometheusCollector) RecordSessionEnded(sessionID string) {
	p.sessionsEndedTotal.Inc()
	p.sessionsActiveTotal.Dec()
	p.sessionParticipantCount.DeleteLabelValues(sessionID)
}

func (p *PrometheusCollector) RecordMessageReceived(messageType string) {
	p.messagesReceivedTotal.WithLabelValues(messageType).Inc()
}

func (p *PrometheusCollector) RecordBroadcast(messageType string) {
	p.broadcastsTotal.WithLabelValues(messageType).Inc()
}

func (p *PrometheusCollector) RecordDeliveryFailure() {
	p.deliveryFailuresTotal.Inc()
}

func (p *PrometheusCollector) RecordSweeperDeletion(reason string, count int) {
	p.sweeperDeletionsTotal.WithLabelValues(reason).Add(float64(count))
}

func (p *PrometheusCollector) RecordMessageHandling(messageType string, duration time.Duration) {
	p.messageHandlingDuration.WithLabelValues(messageType).Observe(duration.Seconds())
}

func (p *PrometheusCollector) UpdateParticipantCount(sessionID string, count int) {
	p.sessionParticipantCount.WithLabelValues(sessionID).Set(float64(count))
}
