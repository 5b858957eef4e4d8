package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/morezero/service-mirror/pkg/bus"
	"github.com/morezero/service-mirror/pkg/commsutil"
)

func newSendCmd() *cobra.Command {
	var wait time.Duration
	cmd := &cobra.Command{
		Use:   "send <target> <method> [json-args...]",
		Short: "Send one message to a runtime service",
		Long: `Send target.method(args...) to the runtime. Each argument is decoded as
JSON when it parses and sent as a string otherwise.

With --wait the command listens for the reply on the callback method
(getX and publishX reply on onX) and prints it.`,
		Example: `  mirrord send runtime listAllServos --wait 2s
  mirrord send servo1 moveTo 90
  mirrord send runtime start '"servo2"' '"Servo"'`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			codec, err := commsutil.ParseCodec(cfg.Codec)
			if err != nil {
				return err
			}
			target, method := args[0], args[1]

			nc, err := commsutil.Connect(cfg.COMMSURL, cfg.COMMSName+"-send")
			if err != nil {
				return err
			}
			defer nc.Close()

			replies := make(chan bus.Message, 1)
			if wait > 0 {
				callback := bus.CallbackMethod(method)
				subject := commsutil.BuildInboundSubject(cfg.InboundSubject, target, callback)
				sub, err := commsutil.SubscribeInbound(nc, subject, codec, func(msg bus.Message) error {
					select {
					case replies <- msg:
					default:
					}
					return nil
				})
				if err != nil {
					return err
				}
				defer sub.Unsubscribe()
			}

			b := bus.NewBus(bus.NewBusParams{
				Transport: commsutil.NewNATSTransport(commsutil.NewNATSTransportParams{
					Conn:           nc,
					Codec:          codec,
					OutboundPrefix: cfg.OutboundPrefix,
				}),
				Sender: cfg.COMMSName,
			})
			defer b.Close()

			if err := b.Send(cmd.Context(), target, method, parseArgs(args[2:])...); err != nil {
				return err
			}
			if wait <= 0 {
				return nil
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), wait)
			defer cancel()
			select {
			case msg := <-replies:
				out, err := json.MarshalIndent(msg, "", "  ")
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), string(out))
				return nil
			case <-ctx.Done():
				return fmt.Errorf("no %s.%s reply within %s", target, bus.CallbackMethod(method), wait)
			}
		},
	}
	cmd.Flags().DurationVar(&wait, "wait", 0, "Wait this long for the callback reply and print it")
	return cmd
}

// parseArgs decodes each argument as JSON, falling back to the raw string.
func parseArgs(raw []string) []any {
	out := make([]any, 0, len(raw))
	for _, s := range raw {
		var v any
		if err := json.Unmarshal([]byte(s), &v); err != nil {
			out = append(out, s)
			continue
		}
		out = append(out, v)
	}
	return out
}
