// Package events defines observer change events and the publishers that fan
// them out of the process.
package events

import "time"

// Kind classifies a change event.
type Kind string

const (
	KindRegistered Kind = "registered"
	KindReleased   Kind = "released"
	KindState      Kind = "state"
	KindStatus     Kind = "status"
)

// Watermill topics observers subscribe to.
const (
	TopicRegistry = "mirror.registry"
	TopicState    = "mirror.state"
	TopicStatus   = "mirror.status"
)

// Topic returns the in-process topic events of kind k are published on.
func (k Kind) Topic() string {
	switch k {
	case KindState:
		return TopicState
	case KindStatus:
		return TopicStatus
	default:
		return TopicRegistry
	}
}

// ChangeEvent is emitted when a registered service, a mirrored state or the
// status summary changes.
type ChangeEvent struct {
	Kind      Kind           `json:"kind"`
	Name      string         `json:"name,omitempty"`
	Type      string         `json:"type,omitempty"`
	Field     string         `json:"field,omitempty"`
	Full      bool           `json:"full,omitempty"`
	Revision  uint64         `json:"revision,omitempty"`
	State     map[string]any `json:"state,omitempty"`
	Level     string         `json:"level,omitempty"`
	Key       string         `json:"key,omitempty"`
	Detail    string         `json:"detail,omitempty"`
	Timestamp string         `json:"timestamp"`
}

// Now formats the current time the way ChangeEvent.Timestamp expects.
func Now() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}
