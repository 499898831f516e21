package main

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/Veraticus/spice-cascade/internal/cli"
	"github.com/Veraticus/spice-cascade/internal/common"
	"github.com/Veraticus/spice-cascade/internal/model"
	"github.com/spf13/cobra"
)

func feedbackCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "feedback <transaction-id>",
		Short: "Settle a transaction and teach the engine",
		Long: `Record the correct classification of a transaction.

The cascade is re-run to capture what the engine would have suggested.
If the suggestion differs from the given target the correction is stored,
feeding historical matching, entity matching and rule suggestions. The
transaction is then confirmed and indexed for semantic search.

Missing taxonomy levels are created.

Examples:
  cascade feedback 4f1c9a --category Utenze --subject Telefono --detail TIM
  cascade feedback 4f1c9a --category Casa --subject Spesa --enqueue`,
		Args: cobra.ExactArgs(1),
		RunE: runFeedback,
	}

	cmd.Flags().String("category", "", "Category name (required)")
	cmd.Flags().String("subject", "", "Subject name (required)")
	cmd.Flags().String("detail", "", "Detail name")
	cmd.Flags().Bool("enqueue", false, "Index through the job queue")
	_ = cmd.MarkFlagRequired("category")
	_ = cmd.MarkFlagRequired("subject")

	return cmd
}

func runFeedback(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	category, _ := cmd.Flags().GetString("category")
	subject, _ := cmd.Flags().GetString("subject")
	detail, _ := cmd.Flags().GetString("detail")
	enqueue, _ := cmd.Flags().GetBool("enqueue")

	a, err := initApp(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	stored, err := a.store.GetClassifiedTransaction(ctx, a.tenant(), args[0])
	if errors.Is(err, common.ErrNotFound) {
		return common.NewUserError("no such transaction "+args[0], err)
	}
	if err != nil {
		return err
	}
	txn := stored.Transaction

	target, err := a.store.EnsureTriple(ctx, a.tenant(), category, subject, detail)
	if err != nil {
		return fmt.Errorf("failed to resolve target: %w", err)
	}

	result := a.preview(ctx, txn)
	fb := &model.Feedback{
		Tenant:              a.tenant(),
		Date:                txn.Date,
		OriginalDescription: txn.Description,
		Amount:              txn.Amount,
		Method:              result.Method,
		OriginalConfidence:  result.Confidence,
		CorrectedTriple:     target,
	}
	switch {
	case result.Classification != nil:
		fb.SuggestedTriple = &result.Classification.Triple
	case len(result.Suggestions) > 0:
		fb.SuggestedTriple = &result.Suggestions[0].Target.Triple
		fb.OriginalConfidence = result.Suggestions[0].Confidence
	}

	saved, err := a.store.SaveFeedback(ctx, fb)
	if err != nil {
		return fmt.Errorf("failed to save feedback: %w", err)
	}
	if err := a.store.ConfirmClassification(ctx, a.tenant(), txn.ID, target); err != nil {
		return fmt.Errorf("failed to confirm classification: %w", err)
	}
	slog.Info("Transaction settled",
		"transaction_id", txn.ID,
		"suggested_method", result.Method,
		"correction_stored", saved)

	a.index(ctx, []string{txn.ID}, enqueue)

	out := cmd.OutOrStdout()
	if saved {
		fmt.Fprintln(out, cli.FormatSuccess("Correction recorded"))
	} else {
		fmt.Fprintln(out, cli.FormatInfo("Suggestion confirmed"))
	}
	return nil
}
