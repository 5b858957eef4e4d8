package registry

import (
	"context"
	"time"
)

// Health checks the transport and, when configured, the journal database.
func (r *Registry) Health(ctx context.Context) *HealthOutput {
	transportOk := r.liveness == nil || r.liveness.IsConnected()

	var dbOk *bool
	if r.pinger != nil {
		ok := r.pinger.Ping(ctx) == nil
		dbOk = &ok
	}

	status := "healthy"
	switch {
	case !transportOk:
		status = "unhealthy"
	case dbOk != nil && !*dbOk:
		status = "degraded"
	}

	return &HealthOutput{
		Status: status,
		Checks: HealthChecks{
			Transport: transportOk,
			Database:  dbOk,
		},
		Services:  len(r.ListRegistered()),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}
