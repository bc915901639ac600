// Package fetcher retrieves documents. Every implementation returns the same
// FetchResult so extraction does not care which transport produced the body.
package fetcher

import (
	"context"
	"fmt"
	"time"

	"content_spider/internal/config"
	"content_spider/internal/logger"
	"content_spider/internal/models"
)

type Fetcher interface {
	Fetch(ctx context.Context, url string) (*models.FetchResult, error)
}

type Options struct {
	UserAgent string
	Timeout   time.Duration
}

// New builds the fetcher selected by cfg.Fetcher wrapped in the retry policy.
func New(cfg config.LogicConfig, log logger.Logger) (Fetcher, error) {
	opts := Options{UserAgent: cfg.UserAgent, Timeout: cfg.Timeout()}

	var inner Fetcher
	switch cfg.Fetcher {
	case config.FetcherHTTP:
		inner = NewHTTPFetcher(opts)
	case config.FetcherColly:
		inner = NewCollyFetcher(opts)
	default:
		return nil, fmt.Errorf("unknown fetcher %q", cfg.Fetcher)
	}

	return NewRetryingFetcher(inner, cfg.MaxRetries, log), nil
}
