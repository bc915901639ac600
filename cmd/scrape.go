package main

import (
	"path/filepath"

	"content_spider/internal/app"
	"content_spider/internal/export"
	"content_spider/internal/logger"
	"content_spider/internal/metrics"

	"github.com/spf13/cobra"
)

const metricsFile = "metrics.prom"

func scrapeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "scrape",
		Short: "Run the pipeline over every configured site and write the batch artifacts",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := setup()
			if err != nil {
				return err
			}
			defer log.Sync()

			m := metrics.New()
			spider, err := app.NewFromConfig(cmd.Context(), cfg, m, log)
			if err != nil {
				return err
			}
			defer spider.Close()

			res, err := spider.Run(cmd.Context())
			if err != nil {
				return err
			}

			dataDir := cfg.DataDir()
			if err := export.WriteArtifacts(dataDir, res); err != nil {
				return err
			}
			if err := m.WriteTextfile(filepath.Join(dataDir, metricsFile)); err != nil {
				log.Warn("metrics not written", logger.Error(err))
			}

			log.Info("artifacts written",
				logger.String("dir", dataDir),
				logger.Int("accepted", len(res.Accepted)),
				logger.Int("quarantined", len(res.Quarantined)))
			return nil
		},
	}
}
