package main

import (
	"fmt"

	"github.com/Veraticus/spice-cascade/internal/cli"
	"github.com/Veraticus/spice-cascade/internal/storage"
	"github.com/spf13/cobra"
)

func taxonomyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "taxonomy",
		Short: "Manage categories, subjects and details",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List the taxonomy",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withStore(cmd, func(store *storage.SQLiteStorage, tenant string) error {
				entries, err := store.ListTaxonomy(cmd.Context(), tenant)
				if err != nil {
					return fmt.Errorf("failed to list taxonomy: %w", err)
				}
				cli.RenderTaxonomy(cmd.OutOrStdout(), entries)
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "add <category> <subject> [detail]",
		Short: "Add a taxonomy path, creating missing levels",
		Args:  cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			detail := ""
			if len(args) == 3 {
				detail = args[2]
			}
			return withStore(cmd, func(store *storage.SQLiteStorage, tenant string) error {
				triple, err := store.EnsureTriple(cmd.Context(), tenant, args[0], args[1], detail)
				if err != nil {
					return err
				}
				resolved, err := store.ResolveTriple(cmd.Context(), tenant, triple)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess("Added "+resolved.Label()))
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "delete-subject <id>",
		Short: "Delete a subject and its details",
		Long: `Delete a subject and its details. Rules and feedback pointing at it are
kept but no longer resolve, so the cascade ignores them.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withStore(cmd, func(store *storage.SQLiteStorage, tenant string) error {
				if err := store.DeleteSubject(cmd.Context(), tenant, id); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf("Subject %d deleted", id)))
				return nil
			})
		},
	})

	return cmd
}
