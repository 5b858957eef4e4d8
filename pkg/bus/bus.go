package bus

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/morezero/service-mirror/pkg/connection"
)

const (
	logPrefix        = "bus:bus"
	defaultQueueSize = 1024
)

// Transport forwards outbound messages to the runtime.
type Transport interface {
	Publish(ctx context.Context, msg Message) error
	Close() error
}

// Liveness reports whether the transport is currently connected.
type Liveness interface {
	IsConnected() bool
}

type route struct {
	target string
	method string
}

type entry struct {
	sub     Subscription
	handler Handler
	active  atomic.Bool
}

// Bus owns the subscription table and the inbound message queue.
type Bus struct {
	mu           sync.Mutex
	routes       map[route]map[string]*entry
	bySubscriber map[string]map[route]struct{}
	closed       bool

	transport Transport
	liveness  Liveness
	sender    string

	inbound   chan Message
	done      chan struct{}
	closeOnce sync.Once

	dispatched    atomic.Uint64
	handlerErrors atomic.Uint64
}

// NewBusParams holds parameters for NewBus.
type NewBusParams struct {
	// Transport carries outbound messages; nil makes Send fail with ErrNoTransport.
	Transport Transport
	// Liveness gates Send; nil means always connected.
	Liveness Liveness
	// Sender is stamped on outbound messages.
	Sender string
	// QueueSize bounds the inbound queue (default 1024).
	QueueSize int
}

// NewBus creates a new Bus.
func NewBus(params NewBusParams) *Bus {
	size := params.QueueSize
	if size <= 0 {
		size = defaultQueueSize
	}
	return &Bus{
		routes:       make(map[route]map[string]*entry),
		bySubscriber: make(map[string]map[route]struct{}),
		transport:    params.Transport,
		liveness:     params.Liveness,
		sender:       params.Sender,
		inbound:      make(chan Message, size),
		done:         make(chan struct{}),
	}
}

// NewSubscriberID returns a unique subscriber id with a readable prefix.
func NewSubscriberID(prefix string) string {
	if prefix == "" {
		return uuid.NewString()
	}
	return prefix + "-" + uuid.NewString()
}

// Subscribe registers h for messages addressed to target.method under subscriberID.
// It returns false, keeping the existing handler, when the tuple is already subscribed.
func (b *Bus) Subscribe(subscriberID, target, method string, h Handler) bool {
	if h == nil {
		return false
	}
	r := route{target: target, method: method}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return false
	}

	subs, ok := b.routes[r]
	if !ok {
		subs = make(map[string]*entry)
		b.routes[r] = subs
	}
	if _, exists := subs[subscriberID]; exists {
		return false
	}

	e := &entry{
		sub:     Subscription{SubscriberID: subscriberID, Target: target, Method: method},
		handler: h,
	}
	e.active.Store(true)
	subs[subscriberID] = e

	owned, ok := b.bySubscriber[subscriberID]
	if !ok {
		owned = make(map[route]struct{})
		b.bySubscriber[subscriberID] = owned
	}
	owned[r] = struct{}{}

	slog.Debug(fmt.Sprintf("%s - subscribed %s to %s.%s", logPrefix, subscriberID, target, method))
	return true
}

// Unsubscribe removes one interest registration. It is a no-op returning false when absent.
func (b *Bus) Unsubscribe(subscriberID, target, method string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.removeLocked(subscriberID, route{target: target, method: method})
}

// UnsubscribeAll removes every registration held by subscriberID and returns how many were removed.
func (b *Bus) UnsubscribeAll(subscriberID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	owned := b.bySubscriber[subscriberID]
	n := 0
	for r := range owned {
		if b.removeLocked(subscriberID, r) {
			n++
		}
	}
	return n
}

func (b *Bus) removeLocked(subscriberID string, r route) bool {
	subs, ok := b.routes[r]
	if !ok {
		return false
	}
	e, ok := subs[subscriberID]
	if !ok {
		return false
	}
	// In-flight dispatch snapshots check this flag before invoking.
	e.active.Store(false)
	delete(subs, subscriberID)
	if len(subs) == 0 {
		delete(b.routes, r)
	}
	if owned, ok := b.bySubscriber[subscriberID]; ok {
		delete(owned, r)
		if len(owned) == 0 {
			delete(b.bySubscriber, subscriberID)
		}
	}
	slog.Debug(fmt.Sprintf("%s - unsubscribed %s from %s.%s", logPrefix, subscriberID, r.target, r.method))
	return true
}

// Subscriptions returns the active subscriptions sorted by target, method and subscriber.
func (b *Bus) Subscriptions() []Subscription {
	b.mu.Lock()
	out := make([]Subscription, 0, len(b.routes))
	for _, subs := range b.routes {
		for _, e := range subs {
			out = append(out, e.sub)
		}
	}
	b.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Target != out[j].Target {
			return out[i].Target < out[j].Target
		}
		if out[i].Method != out[j].Method {
			return out[i].Method < out[j].Method
		}
		return out[i].SubscriberID < out[j].SubscriberID
	})
	return out
}

// Count returns the number of active subscriptions.
func (b *Bus) Count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, subs := range b.routes {
		n += len(subs)
	}
	return n
}

// Dispatch synchronously invokes every handler subscribed to msg's target and
// method, once each, in unspecified order. A failing handler is logged and does
// not stop delivery to the others. It returns the number of handlers invoked.
func (b *Bus) Dispatch(msg Message) int {
	r := route{target: msg.Name, method: msg.Method}

	b.mu.Lock()
	subs := b.routes[r]
	entries := make([]*entry, 0, len(subs))
	for _, e := range subs {
		entries = append(entries, e)
	}
	b.mu.Unlock()

	b.dispatched.Add(1)
	if len(entries) == 0 {
		slog.Debug(fmt.Sprintf("%s - no subscribers for %s.%s", logPrefix, msg.Name, msg.Method))
		return 0
	}

	invoked := 0
	for _, e := range entries {
		if !e.active.Load() {
			continue
		}
		invoked++
		if err := invoke(e, msg.clone()); err != nil {
			b.handlerErrors.Add(1)
			slog.Error(fmt.Sprintf("%s - %v", logPrefix, err))
		}
	}
	return invoked
}

func invoke(e *entry, msg Message) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &HandlerError{Subscription: e.sub, Err: fmt.Errorf("panic: %v", r)}
		}
	}()
	if herr := e.handler(msg); herr != nil {
		return &HandlerError{Subscription: e.sub, Err: herr}
	}
	return nil
}

// Enqueue hands an inbound message to the dispatch loop without blocking.
func (b *Bus) Enqueue(msg Message) error {
	if b.isClosed() {
		return ErrClosed
	}
	select {
	case b.inbound <- msg:
		return nil
	default:
		return fmt.Errorf("%s - %s.%s dropped: %w", logPrefix, msg.Name, msg.Method, ErrQueueFull)
	}
}

// Run dispatches queued inbound messages one at a time in arrival order until
// ctx is canceled or the bus is closed.
func (b *Bus) Run(ctx context.Context) error {
	slog.Info(fmt.Sprintf("%s - dispatch loop started", logPrefix))
	defer slog.Info(fmt.Sprintf("%s - dispatch loop stopped", logPrefix))
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-b.done:
			return nil
		case msg := <-b.inbound:
			b.Dispatch(msg)
		}
	}
}

// Send publishes target.method(args...) to the runtime. It does not check that
// target exists; a missing target shows up only as an absent reply.
func (b *Bus) Send(ctx context.Context, target, method string, args ...any) error {
	if b.isClosed() {
		return ErrClosed
	}
	if b.liveness != nil && !b.liveness.IsConnected() {
		return fmt.Errorf("%s - send %s.%s: %w", logPrefix, target, method,
			&connection.TransportError{Err: ErrNotConnected})
	}
	if b.transport == nil {
		return fmt.Errorf("%s - send %s.%s: %w", logPrefix, target, method, ErrNoTransport)
	}

	msg := Message{
		Name:   target,
		Method: method,
		Data:   args,
		Sender: b.sender,
		MsgID:  uuid.NewString(),
	}
	if err := b.transport.Publish(ctx, msg); err != nil {
		return fmt.Errorf("%s - send %s.%s: %w", logPrefix, target, method, err)
	}
	slog.Debug(fmt.Sprintf("%s - sent %s.%s", logPrefix, target, method))
	return nil
}

// Stats reports how many messages were dispatched and how many handler invocations failed.
func (b *Bus) Stats() (dispatched, handlerErrors uint64) {
	return b.dispatched.Load(), b.handlerErrors.Load()
}

// Close removes every subscription, stops Run and releases the transport.
func (b *Bus) Close() error {
	var err error
	b.closeOnce.Do(func() {
		b.mu.Lock()
		b.closed = true
		for _, subs := range b.routes {
			for _, e := range subs {
				e.active.Store(false)
			}
		}
		b.routes = make(map[route]map[string]*entry)
		b.bySubscriber = make(map[string]map[route]struct{})
		b.mu.Unlock()

		close(b.done)
		if b.transport != nil {
			err = b.transport.Close()
		}
		slog.Info(fmt.Sprintf("%s - closed", logPrefix))
	})
	return err
}

func (b *Bus) isClosed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}
