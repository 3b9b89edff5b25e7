package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/therealutkarshpriyadarshi/dagsched/internal/state"
)

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Follow status change events published on Redis",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signalContext(cmd.Context())
		defer stop()

		return withApp(ctx, func(ctx context.Context, a *app) error {
			if a.redis == nil {
				return errors.New("events requires redis.addr")
			}
			err := state.NewRedisPublisher(a.redis).Subscribe(ctx, func(event state.TransitionEvent) error {
				out, err := json.Marshal(event)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), string(out))
				return nil
			})
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	},
}
