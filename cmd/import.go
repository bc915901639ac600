package main

import (
	"errors"
	"path/filepath"

	"content_spider/internal/db"
	"content_spider/internal/export"
	"content_spider/internal/logger"

	"github.com/spf13/cobra"
)

func importCommand() *cobra.Command {
	var input string

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Load an exported JSON file into the configured database",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := setup()
			if err != nil {
				return err
			}
			defer log.Sync()

			if input == "" {
				input = filepath.Join(cfg.DataDir(), export.RecordsJSONFile)
			}
			records, err := export.ReadJSONFile(input)
			if err != nil {
				return err
			}

			sink, err := db.Open(cmd.Context(), cfg.DB, log)
			if err != nil {
				return err
			}
			if sink == nil {
				return errors.New("import needs db.driver to be set")
			}
			defer sink.Close()

			imported, skipped := 0, 0
			for i := range records {
				rec := &records[i]
				inserted, err := sink.Save(cmd.Context(), rec)
				switch {
				case err != nil:
					log.Error("import failed", logger.String("slug", rec.Slug), logger.Error(err))
					skipped++
				case !inserted:
					log.Info("slug already exists", logger.String("slug", rec.Slug))
					skipped++
				default:
					imported++
				}
			}

			log.Info("import finished", logger.Int("imported", imported), logger.Int("skipped", skipped))
			return nil
		},
	}
	cmd.Flags().StringVar(&input, "input", "", "records JSON file (default <output_dir>/data/scraped_content.json)")
	return cmd
}
