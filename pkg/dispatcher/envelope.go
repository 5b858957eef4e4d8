// Package dispatcher answers registry and status queries received over COMMS.
package dispatcher

import "encoding/json"

// QueryRequest is the JSON envelope for incoming COMMS queries.
type QueryRequest struct {
	ID     string             `json:"id"`
	Method string             `json:"method"`
	Params json.RawMessage    `json:"params,omitempty"`
	Ctx    *InvocationContext `json:"ctx,omitempty"`
}

// QueryResponse is the JSON envelope for COMMS query responses.
type QueryResponse struct {
	ID     string       `json:"id"`
	Ok     bool         `json:"ok"`
	Result interface{}  `json:"result,omitempty"`
	Error  *ErrorDetail `json:"error,omitempty"`
}

// ErrorDetail holds structured error information.
type ErrorDetail struct {
	Code      string      `json:"code"`
	Message   string      `json:"message"`
	Details   interface{} `json:"details,omitempty"`
	Retryable bool        `json:"retryable"`
}

// InvocationContext holds context from the caller.
type InvocationContext struct {
	RequestID  string `json:"requestId,omitempty"`
	DeadlineMs int    `json:"deadlineMs,omitempty"`
	TimeoutMs  int    `json:"timeoutMs,omitempty"`
}

// ServiceParams selects one service.
type ServiceParams struct {
	Name string `json:"name"`
}

// FilterParams filters services by type and semver constraint.
type FilterParams struct {
	Type    string `json:"type,omitempty"`
	Version string `json:"version,omitempty"`
}

// StartParams asks the runtime to create a service.
type StartParams struct {
	Name string `json:"name"`
	Type string `json:"type"`
}
