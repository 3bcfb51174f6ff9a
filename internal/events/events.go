// Package events publishes domain events (excuse submitted/adjudicated, attendance recorded) to
// the configured broker. Publishing happens after the originating transaction commits; a broker
// failure is logged and counted but never fails the request that produced the event.
package events

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Mizumo-prjkt/openattendance/internal/config"
	"github.com/Mizumo-prjkt/openattendance/internal/metrics"
)

const (
	TypeExcuseSubmitted   = "excuse.submitted"
	TypeExcuseAdjudicated = "excuse.adjudicated"
	TypeCheckIn           = "attendance.checked_in"
	TypeCheckOut          = "attendance.checked_out"
	TypeAbsence           = "attendance.absent"
)

type Event struct {
	Type       string      `json:"type"`
	Key        string      `json:"key"`
	OccurredAt time.Time   `json:"occurred_at"`
	Payload    interface{} `json:"payload"`
}

type Publisher interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}

// New returns the publisher selected by cfg.Driver.
func New(cfg config.EventsConfig, logger *slog.Logger, m *metrics.MessagingMetrics) (Publisher, error) {
	switch cfg.Driver {
	case "nats":
		return NewNATSPublisher(cfg.NATSURL, cfg.SubjectPrefix, logger, m)
	case "kafka":
		return NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic, logger, m)
	case "none", "":
		return NoopPublisher{}, nil
	default:
		return nil, fmt.Errorf("unsupported events driver %q", cfg.Driver)
	}
}

type NoopPublisher struct{}

func (NoopPublisher) Publish(context.Context, Event) error { return nil }
func (NoopPublisher) Close() error                        { return nil }

// Emit publishes event and logs a failure instead of returning it.
func Emit(ctx context.Context, p Publisher, logger *slog.Logger, event Event) {
	if p == nil {
		return
	}
	if err := p.Publish(ctx, event); err != nil {
		logger.WarnContext(ctx, "failed to publish event", "type", event.Type, "key", event.Key, "error", err)
	}
}
