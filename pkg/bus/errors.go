package bus

import (
	"errors"
	"fmt"
)

var (
	// ErrNotConnected is returned by Send while the transport is down.
	ErrNotConnected = errors.New("not connected to runtime")
	// ErrNoTransport is returned by Send when the bus was built without a transport.
	ErrNoTransport = errors.New("no transport configured")
	// ErrQueueFull is returned by Enqueue when the inbound queue is at capacity.
	ErrQueueFull = errors.New("inbound queue full")
	// ErrClosed is returned by operations on a closed bus.
	ErrClosed = errors.New("bus closed")
	// ErrMissingArg is returned by DecodeArg when the argument index is out of range.
	ErrMissingArg = errors.New("missing argument")
)

// HandlerError wraps a failure raised by one subscriber's handler.
type HandlerError struct {
	Subscription Subscription
	Err          error
}

func (e *HandlerError) Error() string {
	return fmt.Sprintf("handler %s for %s.%s: %v",
		e.Subscription.SubscriberID, e.Subscription.Target, e.Subscription.Method, e.Err)
}

func (e *HandlerError) Unwrap() error {
	return e.Err
}
