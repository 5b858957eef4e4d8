// Package registry tracks which runtime services are live and owns one state
// mirror per registered service.
package registry

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/morezero/service-mirror/pkg/mirror"
)

// RegistrationEvent announces a service. State is the initial snapshot; nil
// means the runtime sent none.
type RegistrationEvent struct {
	Name    string       `json:"name"`
	Type    string       `json:"type,omitempty"`
	Version string       `json:"version,omitempty"`
	State   mirror.State `json:"state,omitempty"`
}

// ReleaseEvent announces that a service is gone.
type ReleaseEvent struct {
	Name string `json:"name"`
}

// wireRegistration is the object form of an onRegistered argument. The runtime
// sends either type or a fully qualified typeKey.
type wireRegistration struct {
	Name    string          `json:"name"`
	Type    string          `json:"type"`
	TypeKey string          `json:"typeKey"`
	Version string          `json:"version"`
	State   json.RawMessage `json:"state"`
}

func (w wireRegistration) serviceType() string {
	if w.Type != "" {
		return w.Type
	}
	if i := strings.LastIndex(w.TypeKey, "."); i != -1 {
		return w.TypeKey[i+1:]
	}
	return w.TypeKey
}

// ServiceInfo describes a registered service.
type ServiceInfo struct {
	Name         string    `json:"name"`
	ShortName    string    `json:"shortName"`
	Host         string    `json:"host,omitempty"`
	Type         string    `json:"type,omitempty"`
	Version      string    `json:"version,omitempty"`
	RegisteredAt time.Time `json:"registeredAt"`
	Revision     uint64    `json:"revision"`
	Subscribed   bool      `json:"subscribed"`
}

// ServiceDetail is ServiceInfo plus the mirrored state.
type ServiceDetail struct {
	ServiceInfo
	State mirror.State `json:"state"`
}

// HealthOutput holds the result of the health check.
type HealthOutput struct {
	Status    string       `json:"status"`
	Checks    HealthChecks `json:"checks"`
	Services  int          `json:"services"`
	Timestamp string       `json:"timestamp"`
}

// HealthChecks holds individual health check results. Database is omitted
// when no journal is configured.
type HealthChecks struct {
	Transport bool  `json:"transport"`
	Database  *bool `json:"database,omitempty"`
}

// RegistryError is a structured error from the registry.
type RegistryError struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

func (e *RegistryError) Error() string {
	return e.Code + ": " + e.Message
}

// NewRegistryError creates a new RegistryError.
func NewRegistryError(code, message string) *RegistryError {
	return &RegistryError{Code: code, Message: message}
}

// Error codes.
const (
	CodeInvalidArgument = "INVALID_ARGUMENT"
	CodeNotFound        = "NOT_FOUND"
	CodeUnavailable     = "UNAVAILABLE"
)
