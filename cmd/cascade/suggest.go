package main

import (
	"encoding/json"
	"time"

	"github.com/Veraticus/spice-cascade/internal/cli"
	"github.com/Veraticus/spice-cascade/internal/pattern"
	"github.com/spf13/cobra"
)

func suggestRulesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "suggest-rules",
		Short: "Propose rules from correction history",
		Long: `Mine recorded corrections for description patterns that recur and
almost always end up in the same place, and that no enabled rule covers.

Examples:
  cascade suggest-rules
  cascade suggest-rules --days 90 --min-occurrences 5 --min-consistency 0.9`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			days, _ := cmd.Flags().GetInt("days")
			minOcc, _ := cmd.Flags().GetInt("min-occurrences")
			minCons, _ := cmd.Flags().GetFloat64("min-consistency")
			asJSON, _ := cmd.Flags().GetBool("json")

			a, err := initApp(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			report, err := a.engine.SuggestRules(ctx, a.tenant(), pattern.SuggestOptions{
				Lookback:       time.Duration(days) * 24 * time.Hour,
				MinOccurrences: minOcc,
				MinConsistency: minCons,
			})
			if err != nil {
				return err
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(report)
			}
			cli.RenderRuleSuggestions(cmd.OutOrStdout(), report)
			return nil
		},
	}

	cmd.Flags().Int("days", 0, "Only consider corrections from the last N days (0 = all)")
	cmd.Flags().Int("min-occurrences", pattern.DefaultMinOccurrences, "Minimum corrections per pattern")
	cmd.Flags().Float64("min-consistency", pattern.DefaultMinConsistency, "Minimum share agreeing on one target")
	cmd.Flags().Bool("json", false, "Output as JSON")

	return cmd
}
