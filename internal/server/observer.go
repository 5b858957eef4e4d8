package server

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/morezero/service-mirror/pkg/db"
	"github.com/morezero/service-mirror/pkg/events"
	"github.com/morezero/service-mirror/pkg/mirror"
	"github.com/morezero/service-mirror/pkg/registry"
	"github.com/morezero/service-mirror/pkg/status"
)

const observerLogPrefix = "server:observer"

// recorder is the part of db.Journal the observer bridges write to.
type recorder interface {
	RecordStatus(params db.InsertStatusEventParams) bool
	RecordLifecycle(params db.InsertLifecycleParams) bool
}

// observer turns registry, mirror and status changes into change events and
// journal records. Its callbacks run on the dispatch goroutine and never block
// on I/O beyond the publishers' own buffering.
type observer struct {
	publisher events.EventPublisher
	journal   recorder
}

func newObserver(pub events.EventPublisher, journal recorder) *observer {
	if pub == nil {
		pub = &events.NoOpPublisher{}
	}
	return &observer{publisher: pub, journal: journal}
}

// watchRegistry publishes registrations and releases and follows the state of
// every mirror the registry creates.
func (o *observer) watchRegistry(reg *registry.Registry) {
	reg.OnRegistered(func(name string, m *mirror.Mirror) {
		m.OnChange(o.stateChanged(m.Type()))

		ev := &events.ChangeEvent{
			Kind:      events.KindRegistered,
			Name:      name,
			Type:      m.Type(),
			Revision:  m.Revision(),
			State:     m.State(),
			Timestamp: events.Now(),
		}
		o.publish(ev)

		if o.journal != nil {
			params := db.InsertLifecycleParams{
				Name:        name,
				Kind:        db.LifecycleRegistered,
				ServiceType: m.Type(),
				OccurredAt:  time.Now().UTC(),
			}
			if info, err := reg.Info(name); err == nil {
				params.Version = info.Version
			}
			o.journal.RecordLifecycle(params)
		}
	})

	reg.OnReleased(func(name string) {
		o.publish(&events.ChangeEvent{Kind: events.KindReleased, Name: name, Timestamp: events.Now()})
		if o.journal != nil {
			o.journal.RecordLifecycle(db.InsertLifecycleParams{
				Name:       name,
				Kind:       db.LifecycleReleased,
				OccurredAt: time.Now().UTC(),
			})
		}
	})
}

func (o *observer) stateChanged(serviceType string) mirror.Listener {
	return func(c mirror.Change) {
		o.publish(&events.ChangeEvent{
			Kind:      events.KindState,
			Name:      c.Name,
			Type:      serviceType,
			Field:     c.Field,
			Full:      c.Full,
			Revision:  c.Revision,
			State:     c.State,
			Timestamp: events.Now(),
		})
	}
}

// watchStatus publishes and journals every accepted status event.
func (o *observer) watchStatus(agg *status.Aggregator) {
	agg.OnUpdate(func(ev status.Event) {
		o.publish(&events.ChangeEvent{
			Kind:      events.KindStatus,
			Name:      ev.Name,
			Level:     ev.Level.String(),
			Key:       ev.Key,
			Detail:    ev.Detail,
			Timestamp: ev.At.Format(time.RFC3339Nano),
		})
		if o.journal != nil {
			o.journal.RecordStatus(db.InsertStatusEventParams{
				Level:      ev.Level.String(),
				Key:        ev.Key,
				Detail:     ev.Detail,
				Source:     ev.Name,
				OccurredAt: ev.At,
			})
		}
	})
}

func (o *observer) publish(ev *events.ChangeEvent) {
	if err := o.publisher.PublishChanged(context.Background(), ev); err != nil {
		slog.Warn(fmt.Sprintf("%s - %s event for %q not published: %v", observerLogPrefix, ev.Kind, ev.Name, err))
	}
}
