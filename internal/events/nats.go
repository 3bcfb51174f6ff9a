package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/Mizumo-prjkt/openattendance/internal/metrics"

	"github.com/nats-io/nats.go"
)

// NATSPublisher publishes each event on "<prefix>.<event type>".
type NATSPublisher struct {
	conn    *nats.Conn
	prefix  string
	logger  *slog.Logger
	metrics *metrics.MessagingMetrics
}

func NewNATSPublisher(url, prefix string, logger *slog.Logger, m *metrics.MessagingMetrics) (*NATSPublisher, error) {
	nc, err := nats.Connect(url, nats.Name("openattendance"))
	if err != nil {
		return nil, err
	}

	logger.Info("NATS publisher initialized", "url", url, "prefix", prefix)

	return NewNATSPublisherWithConn(nc, prefix, logger, m), nil
}

func NewNATSPublisherWithConn(nc *nats.Conn, prefix string, logger *slog.Logger, m *metrics.MessagingMetrics) *NATSPublisher {
	return &NATSPublisher{
		conn:    nc,
		prefix:  prefix,
		logger:  logger,
		metrics: m,
	}
}

func (p *NATSPublisher) subject(eventType string) string {
	if p.prefix == "" {
		return eventType
	}
	return p.prefix + "." + eventType
}

func (p *NATSPublisher) Publish(ctx context.Context, event Event) error {
	start := time.Now()
	subject := p.subject(event.Type)

	payload, err := json.Marshal(event)
	if err != nil {
		p.logger.ErrorContext(ctx, "failed to marshal event", "error", err)
		return err
	}

	err = p.conn.Publish(subject, payload)
	p.metrics.RecordPublish(ctx, subject, time.Since(start), err)
	if err != nil {
		return err
	}

	p.logger.DebugContext(ctx, "event sent to NATS", "subject", subject, "key", event.Key)
	return nil
}

func (p *NATSPublisher) Close() error {
	return p.conn.Drain()
}
