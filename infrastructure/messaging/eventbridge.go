// Package messaging publishes domain events to the configured event bus.
package messaging

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge/types"
	"go.uber.org/zap"

	"github.com/MartinFunctu/lifeos/application/ports"
	"github.com/MartinFunctu/lifeos/domain/events"
)

// maxBatch is the PutEvents entry limit
const maxBatch = 10

// EventBridgeAPI is the subset of the EventBridge client the publisher uses
type EventBridgeAPI interface {
	PutEvents(ctx context.Context, params *eventbridge.PutEventsInput, optFns ...func(*eventbridge.Options)) (*eventbridge.PutEventsOutput, error)
}

// EventBridgePublisher implements ports.EventBus using AWS EventBridge
type EventBridgePublisher struct {
	client       EventBridgeAPI
	eventBusName string
	source       string
	logger       *zap.Logger
}

var _ ports.EventBus = (*EventBridgePublisher)(nil)

// NewEventBridgePublisher creates a new EventBridge publisher
func NewEventBridgePublisher(client EventBridgeAPI, eventBusName string, logger *zap.Logger) *EventBridgePublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EventBridgePublisher{
		client:       client,
		eventBusName: eventBusName,
		source:       events.SourceCanvas,
		logger:       logger,
	}
}

// Publish sends events in batches of ten
func (p *EventBridgePublisher) Publish(ctx context.Context, evts ...events.DomainEvent) error {
	for i := 0; i < len(evts); i += maxBatch {
		end := i + maxBatch
		if end > len(evts) {
			end = len(evts)
		}
		if err := p.publishBatch(ctx, evts[i:end]); err != nil {
			return err
		}
	}
	return nil
}

func (p *EventBridgePublisher) publishBatch(ctx context.Context, batch []events.DomainEvent) error {
	entries := make([]types.PutEventsRequestEntry, 0, len(batch))
	for _, event := range batch {
		detail, err := json.Marshal(event)
		if err != nil {
			p.logger.Error("Failed to marshal event",
				zap.Error(err),
				zap.String("eventType", event.GetEventType()),
			)
			continue
		}
		entries = append(entries, types.PutEventsRequestEntry{
			EventBusName: aws.String(p.eventBusName),
			Source:       aws.String(p.source),
			DetailType:   aws.String(event.GetEventType()),
			Detail:       aws.String(string(detail)),
			Time:         aws.Time(event.GetTimestamp()),
			Resources:    []string{fmt.Sprintf("lifeos:canvas:%s:%s", event.GetOwnerID(), event.GetAggregateID())},
		})
	}
	if len(entries) == 0 {
		return nil
	}

	result, err := p.client.PutEvents(ctx, &eventbridge.PutEventsInput{Entries: entries})
	if err != nil {
		return fmt.Errorf("failed to publish events to EventBridge: %w", err)
	}
	if result.FailedEntryCount > 0 {
		for i, entry := range result.Entries {
			if entry.ErrorCode != nil && i < len(batch) {
				p.logger.Error("Failed to publish event",
					zap.String("eventType", batch[i].GetEventType()),
					zap.String("errorCode", aws.ToString(entry.ErrorCode)),
					zap.String("errorMessage", aws.ToString(entry.ErrorMessage)),
				)
			}
		}
		return fmt.Errorf("%d events failed to publish", result.FailedEntryCount)
	}

	p.logger.Debug("Events published to EventBridge",
		zap.Int("count", len(entries)),
		zap.String("eventBus", p.eventBusName),
	)
	return nil
}
