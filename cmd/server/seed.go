package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"estatehub/server/internal/seed"
)

func seedCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load agencies, accounts and listings from a YAML file",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, _ := cmd.Flags().GetString("file")

			f, err := seed.Load(path)
			if err != nil {
				return err
			}

			_, logger, db, err := bootstrap()
			if err != nil {
				return err
			}
			defer db.Close()
			ctx := cmd.Context()

			if err := db.RunMigrations(ctx); err != nil {
				return err
			}
			sum, err := seed.Apply(ctx, db, f, logger)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "agencies=%d developers=%d users=%d properties=%d\n",
				sum.Agencies, sum.Developers, sum.Users, sum.Properties)
			return nil
		},
	}

	cmd.Flags().String("file", "seed.yaml", "Path to the seed file")
	return cmd
}
