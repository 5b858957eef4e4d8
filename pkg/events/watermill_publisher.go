package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
)

const watermillPublisherLogPrefix = "events:watermill_publisher"

// WatermillPublisher publishes change events as JSON watermill messages on the
// topic for their kind.
type WatermillPublisher struct {
	pub message.Publisher
}

// NewWatermillPublisher wraps a watermill publisher (usually a gochannel.GoChannel).
func NewWatermillPublisher(pub message.Publisher) *WatermillPublisher {
	return &WatermillPublisher{pub: pub}
}

// PublishChanged marshals event and publishes it.
func (p *WatermillPublisher) PublishChanged(ctx context.Context, event *ChangeEvent) error {
	b, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("%s - failed to encode event: %w", watermillPublisherLogPrefix, err)
	}
	msg := message.NewMessage(watermill.NewUUID(), b)
	msg.Metadata.Set("kind", string(event.Kind))
	msg.Metadata.Set("name", event.Name)
	msg.SetContext(ctx)
	if err := p.pub.Publish(event.Kind.Topic(), msg); err != nil {
		return fmt.Errorf("%s - failed to publish to %s: %w", watermillPublisherLogPrefix, event.Kind.Topic(), err)
	}
	return nil
}

// DecodeMessage unmarshals a change event received from a watermill subscriber.
func DecodeMessage(msg *message.Message) (*ChangeEvent, error) {
	var ev ChangeEvent
	if err := json.Unmarshal(msg.Payload, &ev); err != nil {
		return nil, fmt.Errorf("%s - failed to decode message %s: %w", watermillPublisherLogPrefix, msg.UUID, err)
	}
	return &ev, nil
}
