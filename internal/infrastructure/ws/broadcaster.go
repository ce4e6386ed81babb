package ws

import (
	"encoding/json"
	"fmt"

	"watchparty/internal/core/domain"
	"watchparty/internal/infrastructure/monitoring"
	"watchparty/internal/infrastructure/registry"

	"go.uber.org/zap"
)

// Broadcaster fans typed messages out to every connection registered under a
// session. Delivery is fire-and-forget, at most once per connection; nothing
// is queued or retried.
type Broadcaster struct {
	registry *registry.Registry
	metrics  *monitoring.PrometheusCollector
	logger   *zap.SugaredLogger
}

func NewBroadcaster(reg *registry.Registry, metrics *monitoring.PrometheusCollector, logger *zap.SugaredLogger) *Broadcaster {
	return &Broadcaster{
		registry: reg,
		metrics:  metrics,
		logger:   logger,
	}
}

// Broadcast serializes the envelope once and sends it to every connection in
// the session. A failed send on one connection is logged and does not abort
// delivery to the others.
func (b *Broadcaster) Broadcast(sessionID domain.SessionID, messageType string, payload interface{}) {
	data, err := encodeEnvelope(messageType, payload)
	if err != nil {
		b.logger.Errorw("failed to encode broadcast message",
			"session_id", sessionID,
			"type", messageType,
			"error", err,
		)
		return
	}

	conns := b.registry.ConnectionsFor(sessionID)
	for _, conn := range conns {
		if err := conn.WriteMessage(data); err != nil {
			if b.metrics != nil {
				b.metrics.RecordDeliveryFailure()
			}
			b.logger.Warnw("broadcast delivery failed for one connection",
				"session_id", sessionID,
				"type", messageType,
				"error", err,
			)
		}
	}

	if b.metrics != nil {
		b.metrics.RecordBroadcast(messageType)
	}
	b.logger.Debugw("broadcast sent",
		"session_id", sessionID,
		"type", messageType,
		"connections", len(conns),
	)
}

// SendTo is the unicast counterpart, used for late-joiner sync and direct
// error replies.
func (b *Broadcaster) SendTo(conn registry.Conn, messageType string, payload interface{}) error {
	data, err := encodeEnvelope(messageType, payload)
	if err != nil {
		return fmt.Errorf("failed to encode message: %w", err)
	}
	return conn.WriteMessage(data)
}

func encodeEnvelope(messageType string, payload interface{}) ([]byte, error) {
	var data json.RawMessage
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		data = raw
	}
	return json.Marshal(Envelope{Type: messageType, Data: data})
}
