package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/morezero/service-mirror/pkg/bus"
)

const (
	startupLogPrefix    = "bootstrap:startup"
	startupSubscriberID = "bootstrap.startup"
)

// StartupBus is the part of the message bus startup requests need.
type StartupBus interface {
	Subscribe(subscriberID, target, method string, h bus.Handler) bool
	Send(ctx context.Context, target, method string, args ...any) error
}

// Reply is the latest message received on a startup callback.
type Reply struct {
	Target string    `json:"target"`
	Method string    `json:"method"`
	Data   []any     `json:"data"`
	At     time.Time `json:"at"`
}

// Replies keeps the latest reply per target and callback method.
type Replies struct {
	mu   sync.Mutex
	last map[string]Reply
}

// NewReplies creates an empty reply cache.
func NewReplies() *Replies {
	return &Replies{last: make(map[string]Reply)}
}

// Handle records msg. It is a bus.Handler.
func (r *Replies) Handle(msg bus.Message) error {
	r.mu.Lock()
	r.last[msg.Name+"."+msg.Method] = Reply{Target: msg.Name, Method: msg.Method, Data: msg.Data, At: time.Now().UTC()}
	r.mu.Unlock()
	return nil
}

// Get returns the latest reply on target.method.
func (r *Replies) Get(target, method string) (Reply, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	reply, ok := r.last[target+"."+method]
	return reply, ok
}

// All returns every recorded reply ordered by target and method.
func (r *Replies) All() []Reply {
	r.mu.Lock()
	out := make([]Reply, 0, len(r.last))
	for _, reply := range r.last {
		out = append(out, reply)
	}
	r.mu.Unlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].Target != out[j].Target {
			return out[i].Target < out[j].Target
		}
		return out[i].Method < out[j].Method
	})
	return out
}

// RunStartup subscribes the callbacks of the profile's startup requests and
// sends the requests. Subscriptions are idempotent, so it is safe to call again
// after a reconnect. Send failures are joined and returned.
func RunStartup(ctx context.Context, b StartupBus, p *Profile, replies *Replies) error {
	var errs []error
	for _, req := range p.Startup {
		target := req.Target
		if target == "" {
			target = p.Runtime()
		}
		if req.Subscribe && replies != nil {
			callback := bus.CallbackMethod(req.Method)
			if b.Subscribe(startupSubscriberID, target, callback, replies.Handle) {
				slog.Debug(fmt.Sprintf("%s - subscribed %s.%s", startupLogPrefix, target, callback))
			}
		}
		if err := b.Send(ctx, target, req.Method, req.Args...); err != nil {
			slog.Warn(fmt.Sprintf("%s - startup request %s.%s failed: %v", startupLogPrefix, target, req.Method, err))
			errs = append(errs, err)
			continue
		}
		slog.Info(fmt.Sprintf("%s - sent startup request %s.%s", startupLogPrefix, target, req.Method))
	}
	return errors.Join(errs...)
}
