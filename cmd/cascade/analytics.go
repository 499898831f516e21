package main

import (
	"encoding/json"

	"github.com/Veraticus/spice-cascade/internal/cli"
	"github.com/Veraticus/spice-cascade/internal/metrics"
	"github.com/spf13/cobra"
)

func analyticsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "analytics",
		Short: "Show classification metrics",
		Long: `Summarize recorded classifications over a trailing window: method
distribution, weekly confidence, accuracy by confidence bucket, the most
used categories and subjects, and the rule count.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			days, _ := cmd.Flags().GetInt("days")
			asJSON, _ := cmd.Flags().GetBool("json")

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			store, err := initStorage(ctx, cfg)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			analytics, err := metrics.NewRecorder(store).Analytics(ctx, cfg.Tenant, days)
			if err != nil {
				return err
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(analytics)
			}
			cli.RenderAnalytics(cmd.OutOrStdout(), analytics)
			return nil
		},
	}

	cmd.Flags().Int("days", metrics.DefaultWindowDays, "Window size in days")
	cmd.Flags().Bool("json", false, "Output as JSON")

	return cmd
}
