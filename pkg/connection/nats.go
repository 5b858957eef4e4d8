package connection

import (
	comms "github.com/nats-io/nats.go"
)

// NATSOptions returns connection options that drive m from a COMMS connection's
// lifecycle callbacks. Asynchronous subscription errors (slow consumer etc.) are
// not connectivity changes and are left to the caller.
func (m *Monitor) NATSOptions() []comms.Option {
	return []comms.Option{
		comms.ConnectHandler(func(_ *comms.Conn) {
			m.SetConnected(true)
		}),
		comms.DisconnectErrHandler(func(_ *comms.Conn, err error) {
			if err != nil {
				m.ReportError(err)
				return
			}
			m.SetConnected(false)
		}),
		comms.ReconnectHandler(func(_ *comms.Conn) {
			m.SetConnected(true)
		}),
		comms.ClosedHandler(func(_ *comms.Conn) {
			m.SetConnected(false)
		}),
	}
}
