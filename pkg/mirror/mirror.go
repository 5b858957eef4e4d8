package mirror

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/morezero/service-mirror/pkg/bus"
)

const logPrefix = "mirror:mirror"

// MethodState is the full-snapshot method every mirror listens on.
const MethodState = "onState"

// Change describes one update. State is a copy of the complete state after the
// update; Field names the patched field and is empty for full snapshots.
type Change struct {
	Name     string
	Field    string
	Full     bool
	Revision uint64
	State    State
}

// Listener is invoked after every applied update.
type Listener func(Change)

// Subscriber is the part of the message bus a mirror needs.
type Subscriber interface {
	Subscribe(subscriberID, target, method string, h bus.Handler) bool
	UnsubscribeAll(subscriberID string) int
}

// Mirror owns the State of one service. Only its Apply methods mutate it.
type Mirror struct {
	name         string
	serviceType  string
	subscriberID string
	routes       []FieldRoute

	mu        sync.Mutex
	state     State
	revision  uint64
	updated   time.Time
	listeners []Listener
	attached  Subscriber
}

// New creates a detached mirror with an empty state.
func New(name, serviceType string, routes []FieldRoute) *Mirror {
	return &Mirror{
		name:         name,
		serviceType:  serviceType,
		subscriberID: bus.NewSubscriberID("mirror." + name),
		routes:       append([]FieldRoute(nil), routes...),
		state:        State{},
	}
}

// Name returns the mirrored service name.
func (m *Mirror) Name() string { return m.name }

// Type returns the service type reported at registration.
func (m *Mirror) Type() string { return m.serviceType }

// SubscriberID returns the id this mirror uses on the bus.
func (m *Mirror) SubscriberID() string { return m.subscriberID }

// Routes returns the field routes this mirror listens on.
func (m *Mirror) Routes() []FieldRoute {
	return append([]FieldRoute(nil), m.routes...)
}

// State returns a copy of the current state.
func (m *Mirror) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.Clone()
}

// Get returns one field of the current state.
func (m *Mirror) Get(key string) (any, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.state.Get(key)
	return cloneValue(v), ok
}

// Revision returns the number of updates applied so far.
func (m *Mirror) Revision() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.revision
}

// UpdatedAt returns when the last update was applied (zero if never).
func (m *Mirror) UpdatedAt() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updated
}

// OnChange registers a listener for applied updates.
func (m *Mirror) OnChange(fn Listener) {
	if fn == nil {
		return
	}
	m.mu.Lock()
	m.listeners = append(m.listeners, fn)
	m.mu.Unlock()
}

// ApplyFullState replaces the state wholesale with a copy of s.
func (m *Mirror) ApplyFullState(s State) {
	m.mu.Lock()
	m.state = s.Clone()
	change := m.commitLocked("", true)
	listeners := append([]Listener(nil), m.listeners...)
	m.mu.Unlock()

	m.notify(listeners, change)
}

// ApplyFieldEvent sets one field, leaving all others unchanged.
func (m *Mirror) ApplyFieldEvent(key string, value any) {
	m.mu.Lock()
	m.state[key] = cloneValue(value)
	change := m.commitLocked(key, false)
	listeners := append([]Listener(nil), m.listeners...)
	m.mu.Unlock()

	m.notify(listeners, change)
}

func (m *Mirror) commitLocked(field string, full bool) Change {
	m.revision++
	m.updated = time.Now().UTC()
	return Change{
		Name:     m.name,
		Field:    field,
		Full:     full,
		Revision: m.revision,
		State:    m.state.Clone(),
	}
}

func (m *Mirror) notify(listeners []Listener, change Change) {
	for _, fn := range listeners {
		func() {
			defer func() {
				if r := recover(); r != nil {
					slog.Error(fmt.Sprintf("%s - %s listener panic: %v", logPrefix, m.name, r))
				}
			}()
			fn(change)
		}()
	}
}

// Attach subscribes the mirror to its snapshot method and field routes on b.
func (m *Mirror) Attach(b Subscriber) {
	m.mu.Lock()
	if m.attached != nil {
		m.mu.Unlock()
		return
	}
	m.attached = b
	m.mu.Unlock()

	b.Subscribe(m.subscriberID, m.name, MethodState, m.handleState)
	for _, r := range m.routes {
		b.Subscribe(m.subscriberID, m.name, r.Method, m.fieldHandler(r))
	}
	slog.Debug(fmt.Sprintf("%s - %s attached with %d field routes", logPrefix, m.name, len(m.routes)))
}

// Detach releases every subscription this mirror holds.
func (m *Mirror) Detach() {
	m.mu.Lock()
	b := m.attached
	m.attached = nil
	m.mu.Unlock()

	if b == nil {
		return
	}
	n := b.UnsubscribeAll(m.subscriberID)
	slog.Debug(fmt.Sprintf("%s - %s detached, released %d subscriptions", logPrefix, m.name, n))
}

// Attached reports whether the mirror currently holds bus subscriptions.
func (m *Mirror) Attached() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.attached != nil
}

func (m *Mirror) handleState(msg bus.Message) error {
	arg, ok := msg.Arg(0)
	if !ok || arg == nil {
		m.ApplyFullState(State{})
		return nil
	}
	var s State
	if err := bus.DecodeArg(msg, 0, &s); err != nil {
		return fmt.Errorf("%s - %s snapshot: %w", logPrefix, m.name, err)
	}
	m.ApplyFullState(s)
	return nil
}

func (m *Mirror) fieldHandler(r FieldRoute) bus.Handler {
	return func(msg bus.Message) error {
		value, err := r.Extract(msg)
		if err != nil {
			return fmt.Errorf("%s - %s %s: %w", logPrefix, m.name, r.Method, err)
		}
		m.ApplyFieldEvent(r.Field, value)
		return nil
	}
}
