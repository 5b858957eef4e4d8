package dispatcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/morezero/service-mirror/pkg/connection"
	"github.com/morezero/service-mirror/pkg/registry"
	"github.com/morezero/service-mirror/pkg/status"
)

const logPrefix = "dispatcher:dispatch"

// Query methods.
const (
	MethodList       = "list"
	MethodListByType = "listByType"
	MethodDescribe   = "describe"
	MethodStart      = "start"
	MethodStatus     = "status"
	MethodHealth     = "health"
)

// Registry is the part of registry.Registry queries read.
type Registry interface {
	List() []registry.ServiceInfo
	ListByType(serviceType, constraint string) ([]string, error)
	Info(name string) (*registry.ServiceInfo, error)
	Detail(name string) (*registry.ServiceDetail, error)
	Start(ctx context.Context, name, serviceType string) error
	Health(ctx context.Context) *registry.HealthOutput
}

// StatusSource provides the status bar summary.
type StatusSource interface {
	Summary() status.Summary
}

// Dispatcher routes COMMS queries to the registry and status aggregator.
type Dispatcher struct {
	registry Registry
	status   StatusSource
}

// NewDispatcherParams holds parameters for NewDispatcher.
type NewDispatcherParams struct {
	Registry Registry
	// Status is optional; without it the status method reports UNAVAILABLE.
	Status StatusSource
}

// NewDispatcher creates a new Dispatcher.
func NewDispatcher(params NewDispatcherParams) *Dispatcher {
	return &Dispatcher{registry: params.Registry, status: params.Status}
}

// Dispatch routes a request to the appropriate handler and returns a response.
func (d *Dispatcher) Dispatch(ctx context.Context, req *QueryRequest) *QueryResponse {
	slog.Debug(fmt.Sprintf("%s - method=%s id=%s", logPrefix, req.Method, req.ID))

	switch req.Method {
	case MethodList:
		return d.handleList(req)
	case MethodListByType:
		return d.handleListByType(req)
	case MethodDescribe:
		return d.handleDescribe(req)
	case MethodStart:
		return d.handleStart(ctx, req)
	case MethodStatus:
		return d.handleStatus(req)
	case MethodHealth:
		return d.handleHealth(ctx, req)
	default:
		return errorResponse(req.ID, "METHOD_NOT_FOUND", fmt.Sprintf("Unknown method: %s", req.Method), false)
	}
}

// RequestTimeout returns the caller's deadline when it is shorter than max.
func RequestTimeout(req *QueryRequest, max time.Duration) time.Duration {
	if req.Ctx == nil {
		return max
	}
	ms := req.Ctx.DeadlineMs
	if ms <= 0 {
		ms = req.Ctx.TimeoutMs
	}
	if ms > 0 && time.Duration(ms)*time.Millisecond < max {
		return time.Duration(ms) * time.Millisecond
	}
	return max
}

func (d *Dispatcher) handleList(req *QueryRequest) *QueryResponse {
	var input FilterParams
	if err := decodeParams(req, &input); err != nil {
		return errorResponse(req.ID, registry.CodeInvalidArgument, "Failed to parse list params", false)
	}
	if input.Type == "" && input.Version == "" {
		return &QueryResponse{ID: req.ID, Ok: true, Result: d.registry.List()}
	}

	names, err := d.registry.ListByType(input.Type, input.Version)
	if err != nil {
		return registryErrorToResponse(req.ID, err)
	}
	services := make([]registry.ServiceInfo, 0, len(names))
	for _, name := range names {
		if info, err := d.registry.Info(name); err == nil {
			services = append(services, *info)
		}
	}
	return &QueryResponse{ID: req.ID, Ok: true, Result: services}
}

func (d *Dispatcher) handleListByType(req *QueryRequest) *QueryResponse {
	var input FilterParams
	if err := decodeParams(req, &input); err != nil {
		return errorResponse(req.ID, registry.CodeInvalidArgument, "Failed to parse listByType params", false)
	}
	names, err := d.registry.ListByType(input.Type, input.Version)
	if err != nil {
		return registryErrorToResponse(req.ID, err)
	}
	return &QueryResponse{ID: req.ID, Ok: true, Result: names}
}

func (d *Dispatcher) handleDescribe(req *QueryRequest) *QueryResponse {
	var input ServiceParams
	if err := decodeParams(req, &input); err != nil || input.Name == "" {
		return errorResponse(req.ID, registry.CodeInvalidArgument, "describe requires params.name", false)
	}
	result, err := d.registry.Detail(input.Name)
	if err != nil {
		return registryErrorToResponse(req.ID, err)
	}
	return &QueryResponse{ID: req.ID, Ok: true, Result: result}
}

func (d *Dispatcher) handleStart(ctx context.Context, req *QueryRequest) *QueryResponse {
	var input StartParams
	if err := decodeParams(req, &input); err != nil {
		return errorResponse(req.ID, registry.CodeInvalidArgument, "Failed to parse start params", false)
	}
	if err := d.registry.Start(ctx, input.Name, input.Type); err != nil {
		return registryErrorToResponse(req.ID, err)
	}
	return &QueryResponse{ID: req.ID, Ok: true, Result: map[string]string{"status": "requested", "name": input.Name}}
}

func (d *Dispatcher) handleStatus(req *QueryRequest) *QueryResponse {
	if d.status == nil {
		return errorResponse(req.ID, registry.CodeUnavailable, "status aggregation is not configured", false)
	}
	return &QueryResponse{ID: req.ID, Ok: true, Result: d.status.Summary()}
}

func (d *Dispatcher) handleHealth(ctx context.Context, req *QueryRequest) *QueryResponse {
	return &QueryResponse{ID: req.ID, Ok: true, Result: d.registry.Health(ctx)}
}

// --- helpers ---

// decodeParams unmarshals params; absent params leave v unchanged.
func decodeParams(req *QueryRequest, v interface{}) error {
	if len(req.Params) == 0 || string(req.Params) == "null" {
		return nil
	}
	return json.Unmarshal(req.Params, v)
}

func errorResponse(id, code, message string, retryable bool) *QueryResponse {
	return &QueryResponse{
		ID: id,
		Ok: false,
		Error: &ErrorDetail{
			Code:      code,
			Message:   message,
			Retryable: retryable,
		},
	}
}

func registryErrorToResponse(id string, err error) *QueryResponse {
	var regErr *registry.RegistryError
	if errors.As(err, &regErr) {
		return &QueryResponse{
			ID: id,
			Ok: false,
			Error: &ErrorDetail{
				Code:      regErr.Code,
				Message:   regErr.Message,
				Details:   regErr.Details,
				Retryable: regErr.Code == registry.CodeUnavailable,
			},
		}
	}
	if errors.Is(err, connection.ErrTransport) {
		return errorResponse(id, registry.CodeUnavailable, err.Error(), true)
	}
	return errorResponse(id, "INTERNAL_ERROR", err.Error(), true)
}
