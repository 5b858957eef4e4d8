package commsutil

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	comms "github.com/nats-io/nats.go"

	"github.com/morezero/service-mirror/pkg/bus"
)

const transportLogPrefix = "commsutil:transport"

// NATSTransport publishes bus messages to the runtime over COMMS.
// It does not own the connection.
type NATSTransport struct {
	nc     *comms.Conn
	codec  Codec
	prefix string
}

// NewNATSTransportParams holds parameters for NewNATSTransport.
type NewNATSTransportParams struct {
	Conn           *comms.Conn
	Codec          Codec
	OutboundPrefix string
}

// NewNATSTransport creates a NATSTransport.
func NewNATSTransport(params NewNATSTransportParams) *NATSTransport {
	codec := params.Codec
	if codec == "" {
		codec = CodecJSON
	}
	prefix := params.OutboundPrefix
	if prefix == "" {
		prefix = SubjectOutbound
	}
	return &NATSTransport{nc: params.Conn, codec: codec, prefix: prefix}
}

// Publish encodes msg and publishes it on the outbound subject for its target.
func (t *NATSTransport) Publish(ctx context.Context, msg bus.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := t.codec.Encode(msg)
	if err != nil {
		return fmt.Errorf("%s - failed to encode %s.%s: %w", transportLogPrefix, msg.Name, msg.Method, err)
	}
	subject := BuildOutboundSubject(t.prefix, msg.Name, msg.Method)
	if err := t.nc.Publish(subject, data); err != nil {
		return fmt.Errorf("%s - failed to publish to %s: %w", transportLogPrefix, subject, err)
	}
	slog.Debug(fmt.Sprintf("%s - sent %s.%s on %s", transportLogPrefix, msg.Name, msg.Method, subject))
	return nil
}

// Close flushes pending publishes. The connection stays open.
func (t *NATSTransport) Close() error {
	if t.nc == nil || t.nc.IsClosed() {
		return nil
	}
	if err := t.nc.FlushTimeout(2 * time.Second); err != nil {
		return fmt.Errorf("%s - flush failed: %w", transportLogPrefix, err)
	}
	return nil
}

// InboundSink receives decoded runtime messages, typically bus.Enqueue.
type InboundSink func(msg bus.Message) error

// SubscribeInbound subscribes to the runtime's inbound subject and hands every
// decodable envelope to sink. Undecodable payloads are logged and dropped.
func SubscribeInbound(nc *comms.Conn, subject string, codec Codec, sink InboundSink) (*comms.Subscription, error) {
	if subject == "" {
		subject = SubjectInbound
	}
	if codec == "" {
		codec = CodecJSON
	}
	sub, err := nc.Subscribe(subject, func(m *comms.Msg) {
		var msg bus.Message
		if err := codec.Decode(m.Data, &msg); err != nil {
			slog.Warn(fmt.Sprintf("%s - dropping undecodable message on %s: %v", transportLogPrefix, m.Subject, err))
			return
		}
		if msg.Name == "" || msg.Method == "" {
			slog.Warn(fmt.Sprintf("%s - dropping message without name/method on %s", transportLogPrefix, m.Subject))
			return
		}
		if err := sink(msg); err != nil {
			slog.Warn(fmt.Sprintf("%s - inbound %s.%s not queued: %v", transportLogPrefix, msg.Name, msg.Method, err))
		}
	})
	if err != nil {
		return nil, fmt.Errorf("%s - failed to subscribe to %s: %w", transportLogPrefix, subject, err)
	}
	slog.Info(fmt.Sprintf("%s - Listening for runtime messages on %s", transportLogPrefix, subject))
	return sub, nil
}
