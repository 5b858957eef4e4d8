package events

import (
	"context"
	"errors"
)

// EventPublisher is the interface for publishing observer change events.
type EventPublisher interface {
	PublishChanged(ctx context.Context, event *ChangeEvent) error
}

// NoOpPublisher is an EventPublisher that does nothing (for in-process usage without events).
type NoOpPublisher struct{}

// PublishChanged is a no-op.
func (p *NoOpPublisher) PublishChanged(_ context.Context, _ *ChangeEvent) error {
	return nil
}

// CallbackPublisher is an EventPublisher that calls a callback function (for testing).
type CallbackPublisher struct {
	callback func(ctx context.Context, event *ChangeEvent) error
}

// NewCallbackPublisher creates a new CallbackPublisher.
func NewCallbackPublisher(cb func(ctx context.Context, event *ChangeEvent) error) *CallbackPublisher {
	return &CallbackPublisher{callback: cb}
}

// PublishChanged calls the callback.
func (p *CallbackPublisher) PublishChanged(ctx context.Context, event *ChangeEvent) error {
	return p.callback(ctx, event)
}

// MultiPublisher publishes every event to each of its publishers in order.
// A failing publisher does not stop the others; errors are joined.
type MultiPublisher []EventPublisher

// PublishChanged forwards event to every publisher.
func (m MultiPublisher) PublishChanged(ctx context.Context, event *ChangeEvent) error {
	var errs []error
	for _, p := range m {
		if p == nil {
			continue
		}
		if err := p.PublishChanged(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
