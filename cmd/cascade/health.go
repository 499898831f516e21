package main

import (
	"encoding/json"

	"github.com/Veraticus/spice-cascade/internal/cli"
	"github.com/spf13/cobra"
)

func healthCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "health",
		Short: "Check the embedding and vector-index services",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			asJSON, _ := cmd.Flags().GetBool("json")

			a, err := initApp(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			h := a.engine.HealthCheck(ctx)

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(h)
			}

			dbStatus := "ok"
			if err := a.store.Ping(ctx); err != nil {
				dbStatus = "unavailable"
				h.Errors = append(h.Errors, "database: "+err.Error())
			}
			cli.RenderHealth(cmd.OutOrStdout(),
				[]cli.ServiceHealth{
					{Name: "database", Status: dbStatus},
					{Name: "embedding", Status: h.EmbeddingService},
					{Name: "vector_index", Status: h.VectorIndexService},
				},
				map[string]bool{
					"semantic_search": h.Capabilities.SemanticSearch,
					"indexing":        h.Capabilities.Indexing,
				},
				h.Errors)
			return nil
		},
	}

	cmd.Flags().Bool("json", false, "Output as JSON")

	return cmd
}
