package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/smallbiznis/stagepass/internal/clock"
	"github.com/smallbiznis/stagepass/internal/config"
	payoutdomain "github.com/smallbiznis/stagepass/internal/payout/domain"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
)

func payoutCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "payout",
		Short: "Payout settlement operations",
	}
	cmd.AddCommand(payoutRunCmd())
	return cmd
}

func payoutRunCmd() *cobra.Command {
	var date string
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one settlement pass",
		Long: `Settle every event that ended on the platform-local day lying the
configured payout delay before the run date. Re-running a day is safe:
settled events are skipped and failed payouts are retried.

Examples:
  stagepass payout run
  stagepass payout run --date 2026-04-01`,
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				svc payoutdomain.Service
				clk clock.Clock
				cfg config.Config
			)
			app := fx.New(
				infraModules(),
				domainModules(),
				fx.Populate(&svc, &clk, &cfg),
				fx.NopLogger,
			)
			if err := app.Err(); err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			if err := app.Start(ctx); err != nil {
				return err
			}
			defer func() {
				stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer stopCancel()
				_ = app.Stop(stopCtx)
			}()

			now := clk.Now()
			if trimmed := strings.TrimSpace(date); trimmed != "" {
				parsed, err := time.ParseInLocation("2006-01-02", trimmed, cfg.Location())
				if err != nil {
					return fmt.Errorf("invalid --date %q: %w", date, err)
				}
				now = parsed
			}

			report, runErr := svc.RunSettlement(ctx, now)
			out, err := json.MarshalIndent(report, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return runErr
		},
	}

	cmd.Flags().StringVar(&date, "date", "", "run date as YYYY-MM-DD in the platform time zone (default today)")
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Minute, "overall time budget for the run")
	return cmd
}
