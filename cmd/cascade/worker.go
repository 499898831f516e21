package main

import (
	"fmt"
	"log/slog"

	"github.com/Veraticus/spice-cascade/internal/jobs"
	"github.com/spf13/cobra"
)

func workerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Run the background indexing worker",
		Long: `Consume index and reindex tasks from the redis-backed queue until
interrupted. Tasks are produced by 'classify --enqueue', 'feedback --enqueue',
'index --enqueue' and 'reindex --enqueue'.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			a, err := initApp(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()
			if err := a.requireIndexer(); err != nil {
				return err
			}

			srv, err := jobs.NewServer(jobs.WorkerConfig{
				RedisURL:    a.cfg.Queue.RedisURL,
				Queue:       a.cfg.Queue.Name,
				Concurrency: a.cfg.Queue.Concurrency,
			})
			if err != nil {
				return err
			}

			handlers := jobs.NewHandlers(a.indexer, a.reindexer)
			if err := srv.Start(handlers.Mux()); err != nil {
				return fmt.Errorf("failed to start worker: %w", err)
			}
			slog.Info("Worker started", "queue", a.cfg.Queue.Name, "concurrency", a.cfg.Queue.Concurrency)

			<-ctx.Done()
			slog.Info("Shutting down worker")
			srv.Shutdown()
			return nil
		},
	}
}
