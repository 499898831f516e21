package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/Veraticus/spice-cascade/internal/cli"
	"github.com/Veraticus/spice-cascade/internal/indexing"
	"github.com/Veraticus/spice-cascade/internal/jobs"
	"github.com/Veraticus/spice-cascade/internal/model"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

func indexCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "index <transaction-id>...",
		Short: "Index completed transactions for semantic search",
		Long: fmt.Sprintf(`Embed completed transactions and upsert them into the vector index.

At most %d ids are accepted per call. Ids that do not exist or are not
completed are skipped.`, indexing.MaxBatchSize),
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			enqueue, _ := cmd.Flags().GetBool("enqueue")

			a, err := initApp(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			if enqueue {
				a.index(ctx, args, true)
				fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf("Queued %d transactions", len(args))))
				return nil
			}
			if err := a.requireIndexer(); err != nil {
				return err
			}

			if len(args) == 1 {
				if err := a.indexer.IndexTransaction(ctx, a.tenant(), args[0]); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess("Indexed "+args[0]))
				return nil
			}

			res, err := a.indexer.IndexBatch(ctx, a.tenant(), args)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf(
				"Indexed %d, skipped %d in %s", res.Indexed, res.Skipped, res.Latency.Round(time.Millisecond))))
			return nil
		},
	}

	cmd.Flags().Bool("enqueue", false, "Queue the work for the background worker")

	return cmd
}

func reindexCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reindex",
		Short: "Rebuild the vector index from confirmed transactions",
		Long: `Drop the vector collection and re-embed completed transactions in
batches. Semantic search returns nothing while the rebuild runs.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			limit, _ := cmd.Flags().GetInt("limit")
			batchSize, _ := cmd.Flags().GetInt("batch-size")
			enqueue, _ := cmd.Flags().GetBool("enqueue")
			asJSON, _ := cmd.Flags().GetBool("json")

			a, err := initApp(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			if enqueue {
				q, err := jobs.NewQueue(a.cfg.Queue.RedisURL, a.cfg.Queue.Name)
				if err != nil {
					return err
				}
				defer func() { _ = q.Close() }()
				if err := q.EnqueueReindex(ctx, a.tenant(), limit); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess("Reindex queued"))
				return nil
			}
			if err := a.requireIndexer(); err != nil {
				return err
			}

			total, err := a.store.CountTransactions(ctx, a.tenant())
			if err != nil {
				return err
			}
			expected := total[model.StatusCompleted]
			if limit > 0 {
				expected = min(expected, limit)
			}

			bar := progressbar.NewOptions(expected,
				progressbar.OptionSetWriter(cmd.ErrOrStderr()),
				progressbar.OptionSetDescription("Reindexing"),
				progressbar.OptionShowCount(),
				progressbar.OptionClearOnFinish())

			progress, err := a.reindexer.ReindexAll(ctx, a.tenant(), indexing.ReindexOptions{
				Limit:     limit,
				BatchSize: batchSize,
				OnBatch: func(p indexing.ReindexProgress) {
					_ = bar.Set(p.Processed)
				},
			})
			_ = bar.Finish()

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				if encErr := enc.Encode(progress); encErr != nil {
					return encErr
				}
				return err
			}
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf(
				"Reindexed %d transactions in %d batches (%d skipped)", progress.Indexed, progress.Batches, progress.Skipped)))
			for _, e := range progress.Errors {
				fmt.Fprintln(cmd.OutOrStdout(), cli.FormatWarning(e))
			}
			return nil
		},
	}

	cmd.Flags().Int("limit", indexing.DefaultReindexLimit, "Maximum number of transactions to index")
	cmd.Flags().Int("batch-size", indexing.DefaultReindexBatchSize, "Transactions per batch")
	cmd.Flags().Bool("enqueue", false, "Queue the rebuild for the background worker")
	cmd.Flags().Bool("json", false, "Print the final progress as JSON")

	return cmd
}
