package db

import "time"

// StatusEventRow represents a row in the status_events table.
type StatusEventRow struct {
	ID         string    `json:"id"`
	Level      string    `json:"level"`
	Key        string    `json:"key"`
	Detail     string    `json:"detail"`
	Source     string    `json:"source"`
	OccurredAt time.Time `json:"occurred_at"`
	RecordedAt time.Time `json:"recorded_at"`
}

// LifecycleRow represents a row in the service_lifecycle table.
type LifecycleRow struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Kind        string    `json:"kind"`
	ServiceType string    `json:"service_type"`
	Version     string    `json:"version"`
	OccurredAt  time.Time `json:"occurred_at"`
}

// Lifecycle kinds.
const (
	LifecycleRegistered = "registered"
	LifecycleReleased   = "released"
)

// InsertStatusEventParams holds parameters for InsertStatusEvent.
type InsertStatusEventParams struct {
	Level      string
	Key        string
	Detail     string
	Source     string
	OccurredAt time.Time
}

// ListStatusEventsParams holds parameters for ListStatusEvents.
type ListStatusEventsParams struct {
	// Level filters by severity; empty lists all levels.
	Level string
	Limit int
}

// InsertLifecycleParams holds parameters for InsertLifecycle.
type InsertLifecycleParams struct {
	Name        string
	Kind        string
	ServiceType string
	Version     string
	OccurredAt  time.Time
}

// ListLifecycleParams holds parameters for ListLifecycle.
type ListLifecycleParams struct {
	// Name filters by service; empty lists all services.
	Name  string
	Limit int
}
