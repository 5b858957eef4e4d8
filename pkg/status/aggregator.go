package status

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/morezero/service-mirror/pkg/bus"
)

const logPrefix = "status:aggregator"

// Event is one status report.
type Event struct {
	Level  Level     `json:"level"`
	Key    string    `json:"key"`
	Detail string    `json:"detail"`
	Name   string    `json:"name,omitempty"`
	At     time.Time `json:"at"`
}

// Listener is invoked after every successful ingestion.
type Listener func(ev Event)

// Aggregator keeps cumulative counts and the most recent event per level.
// Counts never reset.
type Aggregator struct {
	mu        sync.Mutex
	counts    map[Level]int
	latest    map[Level]Event
	listeners []Listener
	rejected  int
}

// NewAggregator creates an empty Aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{
		counts: make(map[Level]int, len(Levels)),
		latest: make(map[Level]Event, len(Levels)),
	}
}

// Ingest records ev and notifies listeners. Events with an unknown level fail
// with ErrInvalidLevel and leave all counts unchanged.
func (a *Aggregator) Ingest(ev Event) error {
	if !ev.Level.Valid() {
		a.mu.Lock()
		a.rejected++
		a.mu.Unlock()
		return fmt.Errorf("%s - %w: %d", logPrefix, ErrInvalidLevel, int(ev.Level))
	}
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}

	a.mu.Lock()
	a.counts[ev.Level]++
	a.latest[ev.Level] = ev
	listeners := append([]Listener(nil), a.listeners...)
	a.mu.Unlock()

	for _, fn := range listeners {
		a.notify(fn, ev)
	}
	return nil
}

func (a *Aggregator) notify(fn Listener, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error(fmt.Sprintf("%s - listener panic: %v", logPrefix, r))
		}
	}()
	fn(ev)
}

// Counts returns the cumulative count for every level, including zeros.
func (a *Aggregator) Counts() map[Level]int {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make(map[Level]int, len(Levels))
	for _, l := range Levels {
		out[l] = a.counts[l]
	}
	return out
}

// Latest returns the most recent event at level, if any.
func (a *Aggregator) Latest(level Level) (Event, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	ev, ok := a.latest[level]
	return ev, ok
}

// Rejected returns how many events failed level validation.
func (a *Aggregator) Rejected() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.rejected
}

// IngestRaw parses a wire level and ingests the event. An unknown level fails
// with ErrInvalidLevel before anything is recorded.
func (a *Aggregator) IngestRaw(level, key, detail string) error {
	l, err := ParseLevel(level)
	if err != nil {
		a.mu.Lock()
		a.rejected++
		a.mu.Unlock()
		return fmt.Errorf("%s - %w", logPrefix, err)
	}
	return a.Ingest(Event{Level: l, Key: key, Detail: detail})
}

// OnUpdate registers a listener.
func (a *Aggregator) OnUpdate(fn Listener) {
	if fn == nil {
		return
	}
	a.mu.Lock()
	a.listeners = append(a.listeners, fn)
	a.mu.Unlock()
}

// Summary is the status bar view: counts plus latest event per level.
type Summary struct {
	Counts map[string]int    `json:"counts"`
	Latest map[string]*Event `json:"latest"`
}

// Summary returns a snapshot suitable for serialization.
func (a *Aggregator) Summary() Summary {
	a.mu.Lock()
	defer a.mu.Unlock()
	s := Summary{
		Counts: make(map[string]int, len(Levels)),
		Latest: make(map[string]*Event, len(Levels)),
	}
	for _, l := range Levels {
		s.Counts[l.String()] = a.counts[l]
		if ev, ok := a.latest[l]; ok {
			ev := ev
			s.Latest[l.String()] = &ev
		} else {
			s.Latest[l.String()] = nil
		}
	}
	return s
}

// MethodStatus is the method the runtime publishes status events on.
const MethodStatus = "onStatus"

type wireEvent struct {
	Level  string `json:"level"`
	Key    string `json:"key"`
	Detail string `json:"detail"`
	Name   string `json:"name"`
}

// Subscriber is the part of the message bus the aggregator needs.
type Subscriber interface {
	Subscribe(subscriberID, target, method string, h bus.Handler) bool
}

// subscriberID is fixed so that attaching twice to the same bus does not
// count events twice.
const subscriberID = "status.aggregator"

// Attach subscribes the aggregator to status messages from each target.
func (a *Aggregator) Attach(b Subscriber, targets ...string) {
	id := subscriberID
	for _, target := range targets {
		b.Subscribe(id, target, MethodStatus, a.handleStatus)
	}
}

func (a *Aggregator) handleStatus(msg bus.Message) error {
	var w wireEvent
	if err := bus.DecodeArg(msg, 0, &w); err != nil {
		return fmt.Errorf("%s - decode status from %s: %w", logPrefix, msg.Name, err)
	}
	level, err := ParseLevel(w.Level)
	if err != nil {
		a.mu.Lock()
		a.rejected++
		a.mu.Unlock()
		return fmt.Errorf("%s - status %q from %s: %w", logPrefix, w.Key, msg.Name, err)
	}
	name := w.Name
	if name == "" {
		name = msg.Name
	}
	return a.Ingest(Event{Level: level, Key: w.Key, Detail: w.Detail, Name: name})
}
