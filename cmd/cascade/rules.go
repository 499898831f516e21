package main

import (
	"fmt"
	"strconv"

	"github.com/Veraticus/spice-cascade/internal/cli"
	"github.com/Veraticus/spice-cascade/internal/common"
	"github.com/Veraticus/spice-cascade/internal/model"
	"github.com/Veraticus/spice-cascade/internal/storage"
	"github.com/spf13/cobra"
)

func rulesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Manage classification rules",
		Long:  `List, add, enable, disable and delete the operator rules evaluated first by the cascade.`,
	}

	cmd.AddCommand(listRulesCmd())
	cmd.AddCommand(addRuleCmd())
	cmd.AddCommand(toggleRuleCmd("enable", true))
	cmd.AddCommand(toggleRuleCmd("disable", false))
	cmd.AddCommand(deleteRuleCmd())

	return cmd
}

// withStore runs fn against a migrated store for the configured tenant.
func withStore(cmd *cobra.Command, fn func(store *storage.SQLiteStorage, tenant string) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := initStorage(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()
	return fn(store, cfg.Tenant)
}

func listRulesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all rules, highest priority first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			return withStore(cmd, func(store *storage.SQLiteStorage, tenant string) error {
				rules, err := store.ListRules(ctx, tenant)
				if err != nil {
					return fmt.Errorf("failed to list rules: %w", err)
				}
				labels := make(map[int64]string, len(rules))
				for _, r := range rules {
					resolved, err := store.ResolveTriple(ctx, tenant, r.Target)
					if err != nil {
						labels[r.ID] = cli.ErrorStyle.Render("(missing target)")
						continue
					}
					labels[r.ID] = resolved.Label()
				}
				cli.RenderRules(cmd.OutOrStdout(), rules, labels)
				return nil
			})
		},
	}
}

func addRuleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Add a rule",
		Long: `Add a rule. A transaction matches when any description pattern matches
(case-insensitive regular expressions), its payment type is listed (if any
are given) and its absolute amount is within range (if given).

Example:
  cascade rules add "F24 taxes" --pattern 'F24' --payment-type F24 \
    --category Tasse --subject F24 --confidence 98 --priority 100`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			flags := cmd.Flags()
			patterns, _ := flags.GetStringArray("pattern")
			paymentTypes, _ := flags.GetStringArray("payment-type")
			category, _ := flags.GetString("category")
			subject, _ := flags.GetString("subject")
			detail, _ := flags.GetString("detail")
			priority, _ := flags.GetInt("priority")
			confidence, _ := flags.GetInt("confidence")
			reasoning, _ := flags.GetString("reasoning")

			if len(patterns) == 0 && len(paymentTypes) == 0 {
				return common.NewUserError("a rule needs at least one --pattern or --payment-type", common.ErrInvalidInput)
			}

			return withStore(cmd, func(store *storage.SQLiteStorage, tenant string) error {
				target, err := store.EnsureTriple(ctx, tenant, category, subject, detail)
				if err != nil {
					return fmt.Errorf("failed to resolve target: %w", err)
				}
				rule := &model.ClassificationRule{
					Tenant:              tenant,
					Name:                args[0],
					Reasoning:           reasoning,
					DescriptionPatterns: patterns,
					PaymentTypes:        paymentTypes,
					Target:              target,
					Priority:            priority,
					Confidence:          confidence,
					Enabled:             true,
				}
				if flags.Changed("min-amount") {
					v, _ := flags.GetFloat64("min-amount")
					rule.AmountMin = &v
				}
				if flags.Changed("max-amount") {
					v, _ := flags.GetFloat64("max-amount")
					rule.AmountMax = &v
				}
				if err := store.CreateRule(ctx, rule); err != nil {
					return fmt.Errorf("failed to create rule: %w", err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf("Created rule %d: %s", rule.ID, rule.Name)))
				return nil
			})
		},
	}

	cmd.Flags().StringArray("pattern", nil, "Description regular expression (repeatable)")
	cmd.Flags().StringArray("payment-type", nil, "Payment type, e.g. SDD or F24 (repeatable)")
	cmd.Flags().Float64("min-amount", 0, "Minimum absolute amount")
	cmd.Flags().Float64("max-amount", 0, "Maximum absolute amount")
	cmd.Flags().String("category", "", "Target category (required)")
	cmd.Flags().String("subject", "", "Target subject (required)")
	cmd.Flags().String("detail", "", "Target detail")
	cmd.Flags().Int("priority", 0, "Higher priorities are evaluated first")
	cmd.Flags().Int("confidence", 95, "Confidence reported for matches (0-100)")
	cmd.Flags().String("reasoning", "", "Explanation attached to matches")
	_ = cmd.MarkFlagRequired("category")
	_ = cmd.MarkFlagRequired("subject")

	return cmd
}

func toggleRuleCmd(use string, enabled bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <id>",
		Short: fmt.Sprintf("%s a rule", use),
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withStore(cmd, func(store *storage.SQLiteStorage, tenant string) error {
				if err := store.SetRuleEnabled(cmd.Context(), tenant, id, enabled); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf("Rule %d %sd", id, use)))
				return nil
			})
		},
	}
}

func deleteRuleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a rule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withStore(cmd, func(store *storage.SQLiteStorage, tenant string) error {
				if err := store.DeleteRule(cmd.Context(), tenant, id); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf("Rule %d deleted", id)))
				return nil
			})
		},
	}
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, common.NewUserError(fmt.Sprintf("invalid id %q", s), common.ErrInvalidInput)
	}
	return id, nil
}
