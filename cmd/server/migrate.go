package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			status, _ := cmd.Flags().GetBool("status")

			_, logger, db, err := bootstrap()
			if err != nil {
				return err
			}
			defer db.Close()
			ctx := cmd.Context()

			if !status {
				if err := db.RunMigrations(ctx); err != nil {
					return err
				}
				logger.Info("Migrations applied")
			}

			applied, err := db.AppliedMigrations(ctx)
			if err != nil {
				return err
			}
			pending, err := db.PendingMigrations(ctx)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%-16s  %-36s  %-20s\n", "Version", "Name", "Applied")
			for _, m := range applied {
				fmt.Fprintf(out, "%-16s  %-36s  %-20s\n", m.Version, m.Name, m.AppliedAt.Format("2006-01-02 15:04:05"))
			}
			for _, version := range pending {
				fmt.Fprintf(out, "%-16s  %-36s  %-20s\n", version, "", "pending")
			}
			return nil
		},
	}

	cmd.Flags().Bool("status", false, "Only show migration status")
	return cmd
}
