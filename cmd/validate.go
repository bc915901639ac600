package main

import (
	"path/filepath"

	"content_spider/internal/export"
	"content_spider/internal/logger"
	"content_spider/internal/validator"

	"github.com/spf13/cobra"
)

func validateCommand() *cobra.Command {
	var input string

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Re-run the quality gate over an exported JSON file",
		RunE: func(_ *cobra.Command, _ []string) error {
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

			accepted, quarantined := validator.New(cfg.Validation).ValidateBatch(records)
			for _, v := range quarantined {
				log.Info("record rejected",
					logger.String("title", v.Record.Title),
					logger.Strings("reasons", v.Errors))
			}

			out := filepath.Join(filepath.Dir(input), export.ValidatedJSONFile)
			if err := export.WriteJSONFile(out, accepted); err != nil {
				return err
			}

			log.Info("validation finished",
				logger.Int("total", len(records)),
				logger.Int("accepted", len(accepted)),
				logger.Int("rejected", len(quarantined)),
				logger.String("output", out))
			return nil
		},
	}
	cmd.Flags().StringVar(&input, "input", "", "records JSON file (default <output_dir>/data/scraped_content.json)")
	return cmd
}
