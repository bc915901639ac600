package app

import (
	"context"
	"fmt"

	"content_spider/internal/config"
	"content_spider/internal/db"
	"content_spider/internal/fetcher"
	"content_spider/internal/frontier"
	"content_spider/internal/imagestore"
	"content_spider/internal/logger"
	"content_spider/internal/metrics"
)

// NewFromConfig wires the production collaborators described by cfg.
// Close releases the sink.
func NewFromConfig(ctx context.Context, cfg *config.SpiderConfig, m *metrics.Metrics, log logger.Logger) (*SpiderApp, error) {
	f, err := fetcher.New(cfg.Logic, log)
	if err != nil {
		return nil, err
	}

	limiter := frontier.NewHostLimiter(cfg.Logic.Delay())

	images, err := imagestore.New(cfg.Storage.OutputDir, imagestore.Options{
		Timeout:   cfg.Logic.ImageTimeout(),
		UserAgent: cfg.Logic.UserAgent,
		Wait:      limiter.Wait,
	}, log)
	if err != nil {
		return nil, err
	}

	sink, err := db.Open(ctx, cfg.DB, log)
	if err != nil {
		return nil, fmt.Errorf("open sink: %w", err)
	}

	return NewSpiderApp(cfg, Deps{
		Fetcher: f,
		Images:  images,
		Sink:    sink,
		Metrics: m,
		Logger:  log,
		Limiter: limiter,
	})
}

func (a *SpiderApp) Close() error {
	if a.sink == nil {
		return nil
	}
	return a.sink.Close()
}
