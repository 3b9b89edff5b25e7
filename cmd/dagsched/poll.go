package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/therealutkarshpriyadarshi/dagsched/internal/daginfo"
	"github.com/therealutkarshpriyadarshi/dagsched/pkg/models"
)

var pollCmd = &cobra.Command{
	Use:   "poll",
	Short: "Run one poll, print its result and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
			poller, err := a.newPoller()
			if err != nil {
				return err
			}
			result, err := poller.PollOnce(ctx)
			if err != nil {
				return err
			}
			out, _ := json.MarshalIndent(result, "", "  ")
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		})
	},
}

var dumpDue bool

var dumpCmd = &cobra.Command{
	Use:   "dump",
	Short: "Print every DAG info record, or only the due ones with --due",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
			var (
				rows []*models.DagInfo
				err  error
			)
			now := models.TruncateTime(time.Now())
			if dumpDue {
				rows, err = a.svc.SelectNeedStartDag(ctx, now)
			} else {
				rows, err = a.svc.SelectAllDagInfo(ctx)
			}
			if err != nil {
				return err
			}
			for _, r := range rows {
				due := ""
				if daginfo.IsDue(r, now) {
					due = " due"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s%s\n", r, due)
			}
			return nil
		})
	},
}

func init() {
	dumpCmd.Flags().BoolVar(&dumpDue, "due", false, "only print records a poll would start now")
}

// withApp loads the configuration, builds the dependencies and runs fn
func withApp(ctx context.Context, fn func(ctx context.Context, a *app) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}
