package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"estatehub/server/internal/importer"
	"estatehub/server/internal/processor"
)

func importCmd() *cobra.Command {
	var (
		file     string
		url      string
		agencyID uint
	)
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import an agency listing feed from a file or URL",
		RunE: func(cmd *cobra.Command, args []string) error {
			if (file == "") == (url == "") {
				return errors.New("exactly one of --file or --url is required")
			}
			if agencyID == 0 {
				return errors.New("--agency is required")
			}

			cfg, logger, db, err := bootstrap()
			if err != nil {
				return err
			}
			defer db.Close()
			ctx := cmd.Context()

			if _, err := db.GetAgency(ctx, agencyID); err != nil {
				return err
			}

			store := processor.NewBatchProcessor(db, nil, cfg.Import, logger)
			imp := importer.New(nil, store, cfg.Import.MaxBatchSize, logger)

			var res *importer.Result
			if url != "" {
				res, err = imp.Fetch(ctx, url, agencyID)
			} else {
				f, openErr := os.Open(file)
				if openErr != nil {
					return fmt.Errorf("failed to open feed: %w", openErr)
				}
				defer f.Close()
				res, err = imp.Run(ctx, f, agencyID)
			}
			if res != nil {
				fmt.Fprintf(cmd.OutOrStdout(), "parsed=%d skipped=%d stored=%d\n", res.Parsed, res.Skipped, res.Stored)
				for _, s := range res.Errors {
					fmt.Fprintf(cmd.OutOrStdout(), "  card %d (%s): %s\n", s.Index, s.Ref, s.Reason)
				}
			}
			return err
		},
	}

	cmd.Flags().StringVar(&file, "file", "", "Path to an HTML listing feed")
	cmd.Flags().StringVar(&url, "url", "", "URL of an HTML listing feed")
	cmd.Flags().UintVar(&agencyID, "agency", 0, "Agency that owns the imported listings")
	return cmd
}
