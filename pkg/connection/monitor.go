// Package connection tracks liveness of the transport to the runtime.
package connection

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

const logPrefix = "connection:monitor"

// ErrTransport marks errors reported by the transport layer.
var ErrTransport = errors.New("transport error")

// TransportError wraps a connectivity failure reported by the transport.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	if e.Err == nil {
		return ErrTransport.Error()
	}
	return fmt.Sprintf("%s: %v", ErrTransport.Error(), e.Err)
}

func (e *TransportError) Unwrap() []error {
	return []error{ErrTransport, e.Err}
}

// Listener is called with the new connectivity state after every flip.
type Listener func(connected bool)

// Monitor holds the current connectivity state and notifies listeners when it flips.
// It never attempts to reconnect; that belongs to the transport.
type Monitor struct {
	mu        sync.Mutex
	connected bool
	lastErr   error
	listeners []Listener
}

// NewMonitor creates a Monitor in the given initial state.
func NewMonitor(connected bool) *Monitor {
	return &Monitor{connected: connected}
}

// IsConnected returns the point-in-time connectivity state.
func (m *Monitor) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

// LastError returns the most recent transport error, if any.
func (m *Monitor) LastError() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastErr
}

// OnConnectionChange registers a listener for connectivity flips.
func (m *Monitor) OnConnectionChange(fn Listener) {
	if fn == nil {
		return
	}
	m.mu.Lock()
	m.listeners = append(m.listeners, fn)
	m.mu.Unlock()
}

// SetConnected records the transport state and notifies listeners on a flip.
func (m *Monitor) SetConnected(connected bool) {
	m.mu.Lock()
	if m.connected == connected {
		m.mu.Unlock()
		return
	}
	m.connected = connected
	if connected {
		m.lastErr = nil
	}
	listeners := append([]Listener(nil), m.listeners...)
	m.mu.Unlock()

	slog.Info(fmt.Sprintf("%s - connected=%t", logPrefix, connected))
	for _, fn := range listeners {
		m.notify(fn, connected)
	}
}

// ReportError treats a transport error as a transition to disconnected.
func (m *Monitor) ReportError(err error) {
	m.mu.Lock()
	m.lastErr = &TransportError{Err: err}
	m.mu.Unlock()

	slog.Warn(fmt.Sprintf("%s - transport error: %v", logPrefix, err))
	m.SetConnected(false)
}

func (m *Monitor) notify(fn Listener, connected bool) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error(fmt.Sprintf("%s - listener panic: %v", logPrefix, r))
		}
	}()
	fn(connected)
}
