package messaging

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/MartinFunctu/lifeos/application/ports"
	"github.com/MartinFunctu/lifeos/domain/events"
)

// LogPublisher writes events to the log. It is the bus for local runs.
type LogPublisher struct {
	logger *zap.Logger
}

var _ ports.EventBus = (*LogPublisher)(nil)

// NewLogPublisher creates a LogPublisher
func NewLogPublisher(logger *zap.Logger) *LogPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogPublisher{logger: logger.Named("events")}
}

func (p *LogPublisher) Publish(_ context.Context, evts ...events.DomainEvent) error {
	for _, e := range evts {
		p.logger.Info("Domain event",
			zap.String("eventType", e.GetEventType()),
			zap.String("eventID", e.GetEventID()),
			zap.String("aggregateID", e.GetAggregateID()),
			zap.String("ownerID", e.GetOwnerID()),
			zap.Time("timestamp", e.GetTimestamp()),
		)
	}
	return nil
}

// Fanout publishes to every bus and joins their errors
type Fanout []ports.EventBus

var _ ports.EventBus = Fanout(nil)

func (f Fanout) Publish(ctx context.Context, evts ...events.DomainEvent) error {
	var errs []error
	for _, bus := range f {
		if err := bus.Publish(ctx, evts...); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
