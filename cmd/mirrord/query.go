package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/morezero/service-mirror/pkg/commsutil"
	"github.com/morezero/service-mirror/pkg/dispatcher"
)

func newQueryCmd() *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "query <method> [json-params]",
		Short: "Query a running mirrord over COMMS",
		Long: `Send a query to a running mirrord and print the response.

Methods: list, listByType, describe, start, status, health.`,
		Example: `  mirrord query list '{"type":"Servo"}'
  mirrord query describe '{"name":"servo1"}'
  mirrord query status`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			req, err := buildQuery(args, timeout)
			if err != nil {
				return err
			}
			data, err := json.Marshal(req)
			if err != nil {
				return err
			}

			nc, err := commsutil.Connect(cfg.COMMSURL, cfg.COMMSName+"-query")
			if err != nil {
				return err
			}
			defer nc.Close()

			reply, err := nc.Request(cfg.QuerySubject, data, timeout)
			if err != nil {
				return fmt.Errorf("query %s on %s: %w", req.Method, cfg.QuerySubject, err)
			}
			var resp dispatcher.QueryResponse
			if err := json.Unmarshal(reply.Data, &resp); err != nil {
				return fmt.Errorf("decode response: %w", err)
			}
			if err := writeJSON(cmd.OutOrStdout(), resp); err != nil {
				return err
			}
			if !resp.Ok && resp.Error != nil {
				return fmt.Errorf("%s: %s", resp.Error.Code, resp.Error.Message)
			}
			return nil
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Second, "How long to wait for the response")
	return cmd
}

// buildQuery turns CLI arguments into a query envelope.
func buildQuery(args []string, timeout time.Duration) (*dispatcher.QueryRequest, error) {
	req := &dispatcher.QueryRequest{
		ID:     uuid.NewString(),
		Method: args[0],
		Ctx:    &dispatcher.InvocationContext{TimeoutMs: int(timeout.Milliseconds())},
	}
	if len(args) > 1 {
		if !json.Valid([]byte(args[1])) {
			return nil, fmt.Errorf("params must be valid JSON: %s", args[1])
		}
		req.Params = json.RawMessage(args[1])
	}
	return req, nil
}
