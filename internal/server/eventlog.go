package server

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/morezero/service-mirror/pkg/events"
)

const (
	eventLogLogPrefix      = "server:eventlog"
	defaultEventLogEntries = 200
)

// eventLog keeps the most recent change events seen on the in-process topics.
type eventLog struct {
	mu     sync.Mutex
	size   int
	events []events.ChangeEvent
}

func newEventLog(size int) *eventLog {
	if size <= 0 {
		size = defaultEventLogEntries
	}
	return &eventLog{size: size}
}

func (l *eventLog) add(ev events.ChangeEvent) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
	if over := len(l.events) - l.size; over > 0 {
		l.events = append(l.events[:0:0], l.events[over:]...)
	}
}

// Recent returns up to limit events, newest last. limit <= 0 returns all.
func (l *eventLog) Recent(limit int) []events.ChangeEvent {
	l.mu.Lock()
	defer l.mu.Unlock()
	start := 0
	if limit > 0 && len(l.events) > limit {
		start = len(l.events) - limit
	}
	return append([]events.ChangeEvent(nil), l.events[start:]...)
}

// subscribe subscribes to every change topic and returns the loop that
// records messages until ctx is done. Subscribing up front means no event
// published after subscribe returns is missed.
func (l *eventLog) subscribe(ctx context.Context, sub message.Subscriber) (func() error, error) {
	topics := []string{events.TopicRegistry, events.TopicState, events.TopicStatus}
	channels := make([]<-chan *message.Message, 0, len(topics))
	for _, topic := range topics {
		msgs, err := sub.Subscribe(ctx, topic)
		if err != nil {
			return nil, fmt.Errorf("%s - failed to subscribe to %s: %w", eventLogLogPrefix, topic, err)
		}
		channels = append(channels, msgs)
	}

	run := func() error {
		var wg sync.WaitGroup
		for _, msgs := range channels {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for msg := range msgs {
					ev, err := events.DecodeMessage(msg)
					if err != nil {
						slog.Warn(fmt.Sprintf("%s - %v", eventLogLogPrefix, err))
					} else {
						l.add(*ev)
					}
					msg.Ack()
				}
			}()
		}
		slog.Info(fmt.Sprintf("%s - Recording change events from %d topics", eventLogLogPrefix, len(topics)))
		wg.Wait()
		return nil
	}
	return run, nil
}
