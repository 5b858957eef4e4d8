package events

import (
	"context"
	"fmt"
	"log/slog"

	comms "github.com/nats-io/nats.go"

	"github.com/morezero/service-mirror/pkg/commsutil"
)

const commsPublisherLogPrefix = "events:comms_publisher"

// CommsPublisherOpts configures CommsPublisher. Nil or zero values use defaults.
type CommsPublisherOpts struct {
	// SubjectPrefix overrides the change event subject prefix (e.g. from CHANGE_EVENT_PREFIX).
	SubjectPrefix string
	Codec         commsutil.Codec
}

// CommsPublisher publishes change events to COMMS subjects.
type CommsPublisher struct {
	nc            *comms.Conn
	subjectPrefix string
	codec         commsutil.Codec
}

// NewCommsPublisher creates a new CommsPublisher. Pass nil for opts to use defaults.
func NewCommsPublisher(nc *comms.Conn, opts *CommsPublisherOpts) *CommsPublisher {
	p := &CommsPublisher{nc: nc, subjectPrefix: commsutil.SubjectChangeEvent, codec: commsutil.CodecJSON}
	if opts != nil {
		if opts.SubjectPrefix != "" {
			p.subjectPrefix = opts.SubjectPrefix
		}
		if opts.Codec != "" {
			p.codec = opts.Codec
		}
	}
	return p
}

// PublishChanged publishes a ChangeEvent on the subject for its kind.
func (p *CommsPublisher) PublishChanged(_ context.Context, event *ChangeEvent) error {
	data, err := p.codec.Encode(event)
	if err != nil {
		return fmt.Errorf("%s - failed to encode event: %w", commsPublisherLogPrefix, err)
	}

	subject := commsutil.BuildChangeSubject(p.subjectPrefix, string(event.Kind))
	if err := p.nc.Publish(subject, data); err != nil {
		slog.Error(fmt.Sprintf("%s - failed to publish to %s: %v", commsPublisherLogPrefix, subject, err))
		return err
	}

	slog.Debug(fmt.Sprintf("%s - Published %s event for %s", commsPublisherLogPrefix, event.Kind, event.Name))
	return nil
}
