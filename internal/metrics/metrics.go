package metrics

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

type Metrics struct {
	Database  *DatabaseMetrics
	Messaging *MessagingMetrics
	Domain    *DomainMetrics
}

func New(meter metric.Meter, logger *slog.Logger) (*Metrics, error) {
	database, err := NewDatabaseMetrics(meter)
	if err != nil {
		return nil, err
	}

	messaging, err := NewMessagingMetrics(meter)
	if err != nil {
		return nil, err
	}

	domain, err := NewDomainMetrics(meter)
	if err != nil {
		return nil, err
	}

	logger.Info("metrics collectors initialized successfully")

	return &Metrics{
		Database:  database,
		Messaging: messaging,
		Domain:    domain,
	}, nil
}

// NewMock creates a no-op Metrics instance for testing.
// The returned Metrics will safely ignore all Record* calls.
func NewMock() *Metrics {
	return &Metrics{
		Database:  &DatabaseMetrics{},
		Messaging: &MessagingMetrics{},
		Domain:    &DomainMetrics{},
	}
}

// DomainMetrics counts business operations.
type DomainMetrics struct {
	logins             metric.Int64Counter
	excusesSubmitted   metric.Int64Counter
	excusesAdjudicated metric.Int64Counter
	attendanceEvents   metric.Int64Counter
}

func NewDomainMetrics(meter metric.Meter) (*DomainMetrics, error) {
	dm := &DomainMetrics{}

	var err error

	dm.logins, err = meter.Int64Counter(
		"auth.logins",
		metric.WithDescription("Login attempts by role and outcome"),
		metric.WithUnit("{login}"),
	)
	if err != nil {
		return nil, err
	}

	dm.excusesSubmitted, err = meter.Int64Counter(
		"excuse.requests.submitted",
		metric.WithDescription("Excuse requests submitted"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	dm.excusesAdjudicated, err = meter.Int64Counter(
		"excuse.requests.adjudicated",
		metric.WithDescription("Excuse requests moved out of pending"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	dm.attendanceEvents, err = meter.Int64Counter(
		"attendance.events",
		metric.WithDescription("Presence and absence records written"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return nil, err
	}

	return dm, nil
}

func (dm *DomainMetrics) RecordLogin(ctx context.Context, role string, success bool) {
	if dm == nil || dm.logins == nil {
		return
	}
	dm.logins.Add(ctx, 1, metric.WithAttributes(
		attribute.String("role", role),
		attribute.Bool("success", success),
	))
}

func (dm *DomainMetrics) RecordExcuseSubmitted(ctx context.Context, approvedNow bool) {
	if dm == nil || dm.excusesSubmitted == nil {
		return
	}
	dm.excusesSubmitted.Add(ctx, 1, metric.WithAttributes(attribute.Bool("approved_now", approvedNow)))
}

func (dm *DomainMetrics) RecordExcuseAdjudicated(ctx context.Context, result, processorKind string) {
	if dm == nil || dm.excusesAdjudicated == nil {
		return
	}
	dm.excusesAdjudicated.Add(ctx, 1, metric.WithAttributes(
		attribute.String("result", result),
		attribute.String("processor_type", processorKind),
	))
}

func (dm *DomainMetrics) RecordAttendanceEvent(ctx context.Context, kind string) {
	if dm == nil || dm.attendanceEvents == nil {
		return
	}
	dm.attendanceEvents.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}
