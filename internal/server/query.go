package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	comms "github.com/nats-io/nats.go"

	"github.com/morezero/service-mirror/pkg/dispatcher"
)

const queryLogPrefix = "server:query"

// subscribeQueries answers registry and status queries on the query subject.
func (s *Server) subscribeQueries(ctx context.Context) error {
	disp := dispatcher.NewDispatcher(dispatcher.NewDispatcherParams{Registry: s.reg, Status: s.status})

	sub, err := s.nc.Subscribe(s.cfg.QuerySubject, func(msg *comms.Msg) {
		resp := s.answerQuery(ctx, disp, msg.Data)
		data, err := json.Marshal(resp)
		if err != nil {
			slog.Error(fmt.Sprintf("%s - failed to encode response: %v", queryLogPrefix, err))
			return
		}
		if err := msg.Respond(data); err != nil {
			slog.Warn(fmt.Sprintf("%s - respond failed: %v", queryLogPrefix, err))
		}
	})
	if err != nil {
		return fmt.Errorf("%s - failed to subscribe to %s: %w", queryLogPrefix, s.cfg.QuerySubject, err)
	}
	s.queries = sub
	slog.Info(fmt.Sprintf("%s - Answering queries on %s", queryLogPrefix, s.cfg.QuerySubject))
	return nil
}

func (s *Server) answerQuery(ctx context.Context, disp *dispatcher.Dispatcher, data []byte) *dispatcher.QueryResponse {
	var req dispatcher.QueryRequest
	if err := json.Unmarshal(data, &req); err != nil {
		slog.Error(fmt.Sprintf("%s - failed to decode request: %v", queryLogPrefix, err))
		return &dispatcher.QueryResponse{
			Ok: false,
			Error: &dispatcher.ErrorDetail{
				Code:    "INVALID_REQUEST",
				Message: "Failed to decode request",
			},
		}
	}

	// Per-request context with timeout; honors a shorter client deadline
	reqCtx, cancel := context.WithTimeout(ctx, dispatcher.RequestTimeout(&req, s.cfg.RequestTimeout))
	defer cancel()
	return disp.Dispatch(reqCtx, &req)
}
