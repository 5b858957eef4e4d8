package registry

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/morezero/service-mirror/pkg/bus"
	"github.com/morezero/service-mirror/pkg/mirror"
	"github.com/morezero/service-mirror/pkg/naming"
)

const (
	logPrefix          = "registry:registry"
	defaultRuntimeName = "runtime"

	// MethodRegistered and MethodReleased are published by the runtime.
	MethodRegistered = "onRegistered"
	MethodReleased   = "onReleased"
	// MethodStart asks the runtime to create a service.
	MethodStart = "start"
)

// Config holds registry configuration.
type Config struct {
	// RuntimeName is the service that announces registrations and releases.
	RuntimeName string
}

// DefaultConfig returns the default registry configuration.
func DefaultConfig() Config {
	return Config{RuntimeName: defaultRuntimeName}
}

// Bus is the part of the message bus the registry and its mirrors use.
type Bus interface {
	mirror.Subscriber
	Send(ctx context.Context, target, method string, args ...any) error
}

// Pinger checks an optional backing store.
type Pinger interface {
	Ping(ctx context.Context) error
}

// RegisteredListener is called after a service is registered.
type RegisteredListener func(name string, m *mirror.Mirror)

// ReleasedListener is called after a service is released.
type ReleasedListener func(name string)

type entry struct {
	mirror       *mirror.Mirror
	ref          naming.ServiceRef
	version      string
	registeredAt time.Time
}

// Registry is the name-keyed index of live services.
type Registry struct {
	mu      sync.Mutex
	entries map[string]*entry
	order   []string
	closed  bool

	onRegistered []RegisteredListener
	onReleased   []ReleasedListener

	bus      Bus
	factory  *mirror.Factory
	liveness bus.Liveness
	pinger   Pinger
	config   Config
}

// NewRegistryParams holds parameters for NewRegistry.
type NewRegistryParams struct {
	// Bus attaches mirrors and sends runtime requests; nil keeps mirrors detached.
	Bus     Bus
	Factory *mirror.Factory
	// Liveness and Pinger feed Health; both optional.
	Liveness bus.Liveness
	Pinger   Pinger
	Config   Config
}

// NewRegistry creates a new Registry instance.
func NewRegistry(params NewRegistryParams) *Registry {
	cfg := params.Config
	if cfg.RuntimeName == "" {
		cfg.RuntimeName = defaultRuntimeName
	}

	factory := params.Factory
	if factory == nil {
		factory = mirror.DefaultFactory()
	}

	return &Registry{
		entries:  make(map[string]*entry),
		bus:      params.Bus,
		factory:  factory,
		liveness: params.Liveness,
		pinger:   params.Pinger,
		config:   cfg,
	}
}

// OnRegistered adds a listener for registrations.
func (r *Registry) OnRegistered(fn RegisteredListener) {
	if fn == nil {
		return
	}
	r.mu.Lock()
	r.onRegistered = append(r.onRegistered, fn)
	r.mu.Unlock()
}

// OnReleased adds a listener for releases.
func (r *Registry) OnReleased(fn ReleasedListener) {
	if fn == nil {
		return
	}
	r.mu.Lock()
	r.onReleased = append(r.onReleased, fn)
	r.mu.Unlock()
}

// Register creates a fresh mirror for ev.Name, attaches it, applies the
// initial state and notifies listeners. A live registration under the same
// name is released first; its mirror is never reused.
func (r *Registry) Register(ev RegistrationEvent) (*mirror.Mirror, error) {
	name := ev.Name
	if strings.TrimSpace(name) == "" {
		return nil, &RegistryError{Code: CodeInvalidArgument, Message: "empty service name"}
	}
	ref := naming.Describe(name)

	m := r.factory.New(name, ev.Type)

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, &RegistryError{Code: CodeUnavailable, Message: "registry closed"}
	}
	old := r.removeLocked(name)
	if old != nil {
		old.mirror.Detach()
	}
	if r.bus != nil {
		m.Attach(r.bus)
	}
	if ev.State != nil {
		m.ApplyFullState(ev.State)
	}
	r.entries[name] = &entry{mirror: m, ref: ref, version: ev.Version, registeredAt: time.Now().UTC()}
	r.order = append(r.order, name)
	registered := append([]RegisteredListener(nil), r.onRegistered...)
	released := append([]ReleasedListener(nil), r.onReleased...)
	r.mu.Unlock()

	if old != nil {
		slog.Info(fmt.Sprintf("%s - replaced registration for %s", logPrefix, name))
		for _, fn := range released {
			r.safeCall(func() { fn(name) })
		}
	}

	slog.Info(fmt.Sprintf("%s - registered %s type=%s version=%s", logPrefix, name, ev.Type, ev.Version))
	for _, fn := range registered {
		r.safeCall(func() { fn(name, m) })
	}
	return m, nil
}

// Release detaches and forgets the named service. It returns false when the
// name is not registered.
func (r *Registry) Release(name string) bool {
	r.mu.Lock()
	old := r.removeLocked(name)
	if old != nil {
		old.mirror.Detach()
	}
	released := append([]ReleasedListener(nil), r.onReleased...)
	r.mu.Unlock()

	if old == nil {
		slog.Debug(fmt.Sprintf("%s - release of unknown service %s ignored", logPrefix, name))
		return false
	}

	slog.Info(fmt.Sprintf("%s - released %s", logPrefix, name))
	for _, fn := range released {
		r.safeCall(func() { fn(name) })
	}
	return true
}

func (r *Registry) removeLocked(name string) *entry {
	e, ok := r.entries[name]
	if !ok {
		return nil
	}
	delete(r.entries, name)
	for i, n := range r.order {
		if n == name {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return e
}

func (r *Registry) safeCall(fn func()) {
	defer func() {
		if rec := recover(); rec != nil {
			slog.Error(fmt.Sprintf("%s - listener panic: %v", logPrefix, rec))
		}
	}()
	fn()
}

// ListRegistered returns live service names in registration order.
func (r *Registry) ListRegistered() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.order...)
}

// Get returns the mirror for name.
func (r *Registry) Get(name string) (*mirror.Mirror, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[name]
	if !ok {
		return nil, false
	}
	return e.mirror, true
}

// Info describes a registered service.
func (r *Registry) Info(name string) (*ServiceInfo, error) {
	r.mu.Lock()
	e, ok := r.entries[name]
	r.mu.Unlock()
	if !ok {
		return nil, &RegistryError{Code: CodeNotFound, Message: fmt.Sprintf("Service not found: %s", name)}
	}
	info := e.info()
	return &info, nil
}

// Detail returns the service description with a copy of its mirrored state.
func (r *Registry) Detail(name string) (*ServiceDetail, error) {
	r.mu.Lock()
	e, ok := r.entries[name]
	r.mu.Unlock()
	if !ok {
		return nil, &RegistryError{Code: CodeNotFound, Message: fmt.Sprintf("Service not found: %s", name)}
	}
	return &ServiceDetail{ServiceInfo: e.info(), State: e.mirror.State()}, nil
}

// List describes every registered service in registration order.
func (r *Registry) List() []ServiceInfo {
	r.mu.Lock()
	entries := make([]*entry, 0, len(r.order))
	for _, name := range r.order {
		entries = append(entries, r.entries[name])
	}
	r.mu.Unlock()

	out := make([]ServiceInfo, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.info())
	}
	return out
}

func (e *entry) info() ServiceInfo {
	return ServiceInfo{
		Name:         e.ref.Name,
		ShortName:    e.ref.Short,
		Host:         e.ref.Host,
		Type:         e.mirror.Type(),
		Version:      e.version,
		RegisteredAt: e.registeredAt,
		Revision:     e.mirror.Revision(),
		Subscribed:   e.mirror.Attached(),
	}
}

// Start asks the runtime to create a service. The registration arrives later
// through onRegistered.
func (r *Registry) Start(ctx context.Context, name, serviceType string) error {
	if !naming.Validate(name) {
		return &RegistryError{Code: CodeInvalidArgument, Message: fmt.Sprintf("invalid service name: %q", name)}
	}
	if serviceType == "" {
		return &RegistryError{Code: CodeInvalidArgument, Message: "service type is required"}
	}
	if r.bus == nil {
		return &RegistryError{Code: CodeUnavailable, Message: "no bus configured"}
	}
	return r.bus.Send(ctx, r.config.RuntimeName, MethodStart, name, serviceType)
}

// Close releases every live service in registration order.
func (r *Registry) Close() {
	r.mu.Lock()
	r.closed = true
	names := append([]string(nil), r.order...)
	r.mu.Unlock()

	for _, name := range names {
		r.Release(name)
	}
}
