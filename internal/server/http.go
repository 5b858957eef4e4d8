package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/morezero/service-mirror/pkg/bus"
	"github.com/morezero/service-mirror/pkg/connection"
	"github.com/morezero/service-mirror/pkg/db"
	"github.com/morezero/service-mirror/pkg/registry"
)

const httpLogPrefix = "server:http"

// statusJournal is the part of db.Repository the HTTP layer reads.
type statusJournal interface {
	ListStatusEvents(ctx context.Context, params db.ListStatusEventsParams) ([]db.StatusEventRow, error)
	ListLifecycle(ctx context.Context, params db.ListLifecycleParams) ([]db.LifecycleRow, error)
}

type startRequest struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// routes builds the observer HTTP API.
func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /ready", s.handleReady)
	mux.HandleFunc("GET /services", s.handleListServices)
	mux.HandleFunc("POST /services", s.handleStartService)
	mux.HandleFunc("GET /services/{name}", s.handleServiceDetail)
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.HandleFunc("GET /replies", s.handleReplies)
	mux.HandleFunc("GET /events", s.handleEvents)
	mux.HandleFunc("GET /journal/status", s.handleJournalStatus)
	mux.HandleFunc("GET /journal/lifecycle", s.handleJournalLifecycle)
	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.HealthCheckTimeout)
	defer cancel()
	h := s.reg.Health(ctx)
	code := http.StatusOK
	if h.Status == "unhealthy" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, h)
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	if s.monitor == nil || !s.monitor.IsConnected() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not_ready"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// handleListServices lists registered services. ?type= and ?version= filter
// by service type and semver constraint.
func (s *Server) handleListServices(w http.ResponseWriter, r *http.Request) {
	serviceType := r.URL.Query().Get("type")
	constraint := r.URL.Query().Get("version")
	if serviceType == "" && constraint == "" {
		writeJSON(w, http.StatusOK, map[string]any{"services": s.reg.List()})
		return
	}

	names, err := s.reg.ListByType(serviceType, constraint)
	if err != nil {
		writeError(w, err)
		return
	}
	services := make([]registry.ServiceInfo, 0, len(names))
	for _, name := range names {
		info, err := s.reg.Info(name)
		if err != nil {
			// released between ListByType and Info
			continue
		}
		services = append(services, *info)
	}
	writeJSON(w, http.StatusOK, map[string]any{"services": services})
}

func (s *Server) handleServiceDetail(w http.ResponseWriter, r *http.Request) {
	detail, err := s.reg.Detail(r.PathValue("name"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

// handleStartService asks the runtime to create a service. The registration
// arrives asynchronously, so success is 202.
func (s *Server) handleStartService(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, registry.NewRegistryError(registry.CodeInvalidArgument, "invalid JSON body"))
		return
	}
	if err := s.reg.Start(r.Context(), req.Name, req.Type); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "requested", "name": req.Name})
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.status.Summary())
}

func (s *Server) handleReplies(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"replies": s.replies.All()})
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	limit, err := queryLimit(r)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": s.events.Recent(limit)})
}

func (s *Server) handleJournalStatus(w http.ResponseWriter, r *http.Request) {
	if s.journalRepo == nil {
		writeError(w, registry.NewRegistryError(registry.CodeUnavailable, "status journal is not configured"))
		return
	}
	limit, err := queryLimit(r)
	if err != nil {
		writeError(w, err)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.HealthCheckTimeout)
	defer cancel()
	rows, err := s.journalRepo.ListStatusEvents(ctx, db.ListStatusEventsParams{
		Level: r.URL.Query().Get("level"),
		Limit: limit,
	})
	if err != nil {
		slog.Error(fmt.Sprintf("%s - list status events: %v", httpLogPrefix, err))
		writeError(w, registry.NewRegistryError(registry.CodeUnavailable, "status journal query failed"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": rows})
}

func (s *Server) handleJournalLifecycle(w http.ResponseWriter, r *http.Request) {
	if s.journalRepo == nil {
		writeError(w, registry.NewRegistryError(registry.CodeUnavailable, "status journal is not configured"))
		return
	}
	limit, err := queryLimit(r)
	if err != nil {
		writeError(w, err)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.HealthCheckTimeout)
	defer cancel()
	rows, err := s.journalRepo.ListLifecycle(ctx, db.ListLifecycleParams{
		Name:  r.URL.Query().Get("name"),
		Limit: limit,
	})
	if err != nil {
		slog.Error(fmt.Sprintf("%s - list lifecycle: %v", httpLogPrefix, err))
		writeError(w, registry.NewRegistryError(registry.CodeUnavailable, "status journal query failed"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"lifecycle": rows})
}

func queryLimit(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, registry.NewRegistryError(registry.CodeInvalidArgument, fmt.Sprintf("invalid limit: %q", raw))
	}
	return n, nil
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error(fmt.Sprintf("%s - response encode: %v", httpLogPrefix, err))
	}
}

// writeError maps registry error codes and transport failures to HTTP statuses.
func writeError(w http.ResponseWriter, err error) {
	var transportErr *connection.TransportError
	if errors.As(err, &transportErr) || errors.Is(err, bus.ErrNoTransport) || errors.Is(err, bus.ErrClosed) {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"error": registry.NewRegistryError(registry.CodeUnavailable, err.Error()),
		})
		return
	}
	var regErr *registry.RegistryError
	if !errors.As(err, &regErr) {
		slog.Error(fmt.Sprintf("%s - %v", httpLogPrefix, err))
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"error": registry.NewRegistryError("INTERNAL", err.Error()),
		})
		return
	}
	code := http.StatusInternalServerError
	switch regErr.Code {
	case registry.CodeInvalidArgument:
		code = http.StatusBadRequest
	case registry.CodeNotFound:
		code = http.StatusNotFound
	case registry.CodeUnavailable:
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]any{"error": regErr})
}
