package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/prperemyshlev/wearable-sync/internal/domain"
	"github.com/prperemyshlev/wearable-sync/internal/service"
	"github.com/spf13/cobra"
)

func newRootCmd(open opener, out io.Writer) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "syncctl",
		Short: "Operate the wearable sync engine",
		Long: `syncctl drives the wearable sync engine from the command line.

It uses the same configuration and storage as the server, so syncs started
here take the same per-device locks and publish the same events.`,
		SilenceUsage: true,
	}
	rootCmd.SetOut(out)

	rootCmd.AddCommand(
		newSyncCmd(open),
		newSyncAllCmd(open),
		newRefreshCmd(open),
		newAggregateCmd(open),
		newBreakersCmd(open),
	)

	return rootCmd
}

// withRuntime opens the engine for the duration of one command
func withRuntime(cmd *cobra.Command, open opener, fn func(ctx context.Context, rt *runtime) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	rt, err := open(ctx)
	if err != nil {
		return err
	}
	defer func() {
		_ = rt.close(context.WithoutCancel(ctx))
	}()

	return fn(ctx, rt)
}

func newSyncCmd(open opener) *cobra.Command {
	var start, end string
	var types []string

	cmd := &cobra.Command{
		Use:   "sync <device-id>",
		Short: "Sync one device",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := parseSyncOptions(start, end, types)
			if err != nil {
				return err
			}

			return withRuntime(cmd, open, func(ctx context.Context, rt *runtime) error {
				result, err := service.SyncLocked(ctx, rt.locker, rt.sync, args[0], opts)
				if err != nil {
					return err
				}
				if err := printJSON(cmd, result); err != nil {
					return err
				}
				if !result.Success {
					return fmt.Errorf("sync failed: %s", result.ErrorMessage)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&start, "start", "", "window start (YYYY-MM-DD or RFC3339)")
	cmd.Flags().StringVar(&end, "end", "", "window end (YYYY-MM-DD or RFC3339)")
	cmd.Flags().StringSliceVar(&types, "types", nil, "metric types to keep")

	return cmd
}

func newSyncAllCmd(open opener) *cobra.Command {
	var concurrency int

	cmd := &cobra.Command{
		Use:   "sync-all",
		Short: "Sync every active device",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, open, func(ctx context.Context, rt *runtime) error {
				limit := concurrency
				if limit <= 0 {
					limit = rt.batchConcurrency
				}

				results, err := rt.batch.SyncActiveDevices(ctx, limit)
				if err != nil {
					return err
				}
				return printJSON(cmd, results)
			})
		},
	}

	cmd.Flags().IntVar(&concurrency, "concurrency", 0, "parallel syncs (defaults to SYNC_BATCH_CONCURRENCY)")

	return cmd
}

func newRefreshCmd(open opener) *cobra.Command {
	return &cobra.Command{
		Use:   "refresh <device-id>",
		Short: "Refresh a device's vendor token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, open, func(ctx context.Context, rt *runtime) error {
				device, err := rt.sync.RefreshDeviceToken(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd, map[string]any{
					"device_id":        device.ID,
					"token_expires_at": device.TokenExpiresAt,
				})
			})
		},
	}
}

func newAggregateCmd(open opener) *cobra.Command {
	var date, metricType string

	cmd := &cobra.Command{
		Use:   "aggregate <device-id>",
		Short: "Print the daily aggregate of one metric type",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			day, err := time.Parse(time.DateOnly, date)
			if err != nil {
				return fmt.Errorf("invalid --date %q: expected YYYY-MM-DD", date)
			}

			return withRuntime(cmd, open, func(ctx context.Context, rt *runtime) error {
				daily, err := rt.sync.AggregateMetrics(ctx, args[0], day, domain.MetricType(metricType))
				if err != nil {
					return err
				}
				return printJSON(cmd, daily)
			})
		},
	}

	cmd.Flags().StringVar(&date, "date", time.Now().UTC().Format(time.DateOnly), "UTC day (YYYY-MM-DD)")
	cmd.Flags().StringVar(&metricType, "type", "", "metric type")
	_ = cmd.MarkFlagRequired("type")

	return cmd
}

func newBreakersCmd(open opener) *cobra.Command {
	return &cobra.Command{
		Use:   "breakers",
		Short: "Show vendor circuit breaker states",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, open, func(_ context.Context, rt *runtime) error {
				return printJSON(cmd, rt.sync.CircuitBreakerStates())
			})
		},
	}
}

func parseSyncOptions(start, end string, types []string) (domain.SyncOptions, error) {
	var opts domain.SyncOptions

	if start != "" {
		t, err := parseTime(start)
		if err != nil {
			return opts, fmt.Errorf("invalid --start: %w", err)
		}
		opts.StartDate = &t
	}
	if end != "" {
		t, err := parseTime(end)
		if err != nil {
			return opts, fmt.Errorf("invalid --end: %w", err)
		}
		opts.EndDate = &t
	}
	if opts.StartDate != nil && opts.EndDate != nil && opts.EndDate.Before(*opts.StartDate) {
		return opts, fmt.Errorf("--end must not be before --start")
	}

	for _, raw := range types {
		t := domain.MetricType(raw)
		if !t.IsValid() {
			return opts, fmt.Errorf("invalid metric type: %s", raw)
		}
		opts.MetricTypes = append(opts.MetricTypes, t)
	}

	return opts, nil
}

func parseTime(v string) (time.Time, error) {
	if t, err := time.Parse(time.DateOnly, v); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, v)
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
