package main

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/Veraticus/spice-cascade/internal/cli"
	"github.com/Veraticus/spice-cascade/internal/common"
	"github.com/spf13/cobra"
)

func classifyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "classify",
		Short: "Classify pending transactions",
		Long: `Run the classification cascade over pending transactions.

Confident results are confirmed and indexed for future semantic matches.
Everything else is moved to review with ranked suggestions; use
'cascade feedback' to settle those.

Examples:
  cascade classify                # Classify up to 500 pending transactions
  cascade classify --limit 50     # Classify a smaller slice
  cascade classify --dry-run      # Show results without saving anything
  cascade classify --enqueue      # Index through the background worker`,
		RunE: runClassify,
	}

	cmd.Flags().Int("limit", 500, "Maximum number of pending transactions to classify")
	cmd.Flags().Bool("dry-run", false, "Preview without saving changes")
	cmd.Flags().Bool("enqueue", false, "Index confirmed transactions through the job queue")
	cmd.Flags().BoolP("verbose", "v", false, "Print every result, not just the summary")

	return cmd
}

func runClassify(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	limit, _ := cmd.Flags().GetInt("limit")
	dryRun, _ := cmd.Flags().GetBool("dry-run")
	enqueue, _ := cmd.Flags().GetBool("enqueue")
	verbose, _ := cmd.Flags().GetBool("verbose")

	interrupts.SetHint("Unfinished transactions stay pending; run 'cascade classify' again to continue")

	a, err := initApp(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	pending, err := a.store.ListPendingTransactions(ctx, a.tenant(), limit)
	if err != nil {
		return fmt.Errorf("failed to load pending transactions: %w", err)
	}
	if len(pending) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), cli.FormatInfo("No pending transactions."))
		return nil
	}

	slog.Info("Starting classification", "tenant", a.tenant(), "pending", len(pending), "dry_run", dryRun)

	results, summary := a.engine.ClassifyBatch(ctx, pending)

	out := cmd.OutOrStdout()
	var confirmed []string
	for i, r := range results {
		txn := pending[i]
		if verbose || dryRun || r.NeedsReview {
			cli.RenderResult(out, txn, r)
		}
		if dryRun || !r.Success || ctx.Err() != nil {
			continue
		}

		if r.NeedsReview || r.Classification == nil {
			if err := a.store.MarkForReview(ctx, a.tenant(), txn.ID); err != nil {
				common.LogError(ctx, err, "Failed to mark transaction for review", common.Fields{"transaction_id": txn.ID})
			}
			continue
		}
		if err := a.store.ConfirmClassification(ctx, a.tenant(), txn.ID, r.Classification.Triple); err != nil {
			common.LogError(ctx, err, "Failed to confirm classification", common.Fields{"transaction_id": txn.ID})
			continue
		}
		confirmed = append(confirmed, txn.ID)
	}

	a.index(ctx, confirmed, enqueue)

	fmt.Fprintln(out)
	cli.RenderBatchSummary(out, summary.Total, summary.AutoClassified, summary.NeedsReview, summary.Failed, summary.ProcessingTime)

	return finishClassify(out, interrupts.WasInterrupted(), len(confirmed), len(pending), ctx.Err())
}

// finishClassify turns a user interrupt into a notice instead of an error:
// whatever was saved stays saved and the rest remains pending.
func finishClassify(out io.Writer, interrupted bool, saved, total int, ctxErr error) error {
	if interrupted {
		fmt.Fprintln(out, cli.FormatWarning(fmt.Sprintf(
			"Interrupted: %d of %d transactions confirmed, the rest stay pending", saved, total)))
		return nil
	}
	return ctxErr
}
