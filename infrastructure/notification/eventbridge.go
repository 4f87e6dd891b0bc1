package notification

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge/types"
	"github.com/jmhodges/clock"

	"memorymap-backend/application/ports"
)

// DetailTypeAnniversary is the EventBridge detail-type of reminders.
const DetailTypeAnniversary = "AnniversaryReminder"

// EventBridgeAPI is the subset of *eventbridge.Client used by the sink.
type EventBridgeAPI interface {
	PutEvents(ctx context.Context, params *eventbridge.PutEventsInput, optFns ...func(*eventbridge.Options)) (*eventbridge.PutEventsOutput, error)
}

// EventBridgeSink publishes reminders to an event bus so downstream rules
// can route them to mobile push, email and so on.
type EventBridgeSink struct {
	client       EventBridgeAPI
	eventBusName string
	source       string
	clock        clock.Clock
}

func NewEventBridgeSink(client EventBridgeAPI, eventBusName, source string, clk clock.Clock) *EventBridgeSink {
	return &EventBridgeSink{
		client:       client,
		eventBusName: eventBusName,
		source:       source,
		clock:        clk,
	}
}

func (s *EventBridgeSink) Notify(ctx context.Context, n ports.Notification) error {
	detail, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	result, err := s.client.PutEvents(ctx, &eventbridge.PutEventsInput{
		Entries: []types.PutEventsRequestEntry{{
			EventBusName: aws.String(s.eventBusName),
			Source:       aws.String(s.source),
			DetailType:   aws.String(DetailTypeAnniversary),
			Detail:       aws.String(string(detail)),
			Time:         aws.Time(s.clock.Now()),
			Resources:    []string{fmt.Sprintf("arn:aws:memorymap::%s", n.UserID)},
		}},
	})
	if err != nil {
		return fmt.Errorf("failed to publish event to EventBridge: %w", err)
	}

	if result.FailedEntryCount > 0 {
		for _, entry := range result.Entries {
			if entry.ErrorCode != nil {
				return fmt.Errorf("event rejected: %s: %s", aws.ToString(entry.ErrorCode), aws.ToString(entry.ErrorMessage))
			}
		}
		return fmt.Errorf("event rejected")
	}
	return nil
}
