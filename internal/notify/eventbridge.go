package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	ebtypes "github.com/aws/aws-sdk-go-v2/service/eventbridge/types"
)

// EventSource and EventDetailType label events put on the bus.
const (
	EventSource     = "dispatchwait"
	EventDetailType = "WorkflowRunCompleted"
)

// EventBridgeAPI is the subset of the EventBridge client used by EventBridgeSink.
type EventBridgeAPI interface {
	PutEvents(ctx context.Context, input *eventbridge.PutEventsInput, opts ...func(*eventbridge.Options)) (*eventbridge.PutEventsOutput, error)
}

// EventBridgeSink puts a WorkflowRunCompleted event on an event bus.
type EventBridgeSink struct {
	client EventBridgeAPI
	bus    string
}

// EventBridgeSinkOption configures an EventBridgeSink.
type EventBridgeSinkOption func(*EventBridgeSink)

// WithEventBridgeClient sets a custom EventBridge client (useful for testing).
func WithEventBridgeClient(c EventBridgeAPI) EventBridgeSinkOption {
	return func(s *EventBridgeSink) { s.client = c }
}

// NewEventBridgeSink creates a sink for bus.
func NewEventBridgeSink(ctx context.Context, bus string, opts ...EventBridgeSinkOption) (*EventBridgeSink, error) {
	if bus == "" {
		return nil, fmt.Errorf("event bus name required")
	}
	s := &EventBridgeSink{bus: bus}
	for _, o := range opts {
		o(s)
	}
	if s.client == nil {
		cfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, fmt.Errorf("loading AWS config: %w", err)
		}
		s.client = eventbridge.NewFromConfig(cfg)
	}
	return s, nil
}

// Name returns the sink identifier.
func (s *EventBridgeSink) Name() string { return "eventbridge" }

// Send puts the notification as the event detail.
func (s *EventBridgeSink) Send(ctx context.Context, n Notification) error {
	detail, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshaling event detail: %w", err)
	}

	out, err := s.client.PutEvents(ctx, &eventbridge.PutEventsInput{
		Entries: []ebtypes.PutEventsRequestEntry{{
			EventBusName: aws.String(s.bus),
			Source:       aws.String(EventSource),
			DetailType:   aws.String(EventDetailType),
			Detail:       aws.String(string(detail)),
			Time:         aws.Time(n.Timestamp),
		}},
	})
	if err != nil {
		return fmt.Errorf("putting event: %w", err)
	}
	if out.FailedEntryCount > 0 {
		return fmt.Errorf("event bus rejected %d entries", out.FailedEntryCount)
	}
	return nil
}
