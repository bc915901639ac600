package fetcher

import (
	"context"
	"time"

	"content_spider/internal/logger"
	"content_spider/internal/models"

	"github.com/cenkalti/backoff/v4"
)

// RetryingFetcher retries transient failures with exponential backoff.
// Permanent failures (4xx, captcha, bad URL) return immediately.
type RetryingFetcher struct {
	inner      Fetcher
	maxRetries int
	log        logger.Logger

	initialInterval time.Duration
	maxInterval     time.Duration
}

func NewRetryingFetcher(inner Fetcher, maxRetries int, log logger.Logger) *RetryingFetcher {
	return &RetryingFetcher{
		inner:           inner,
		maxRetries:      maxRetries,
		log:             log,
		initialInterval: 500 * time.Millisecond,
		maxInterval:     10 * time.Second,
	}
}

func (f *RetryingFetcher) Fetch(ctx context.Context, url string) (*models.FetchResult, error) {
	var result *models.FetchResult

	op := func() error {
		res, err := f.inner.Fetch(ctx, url)
		if err != nil {
			if IsTransient(err) {
				return err
			}
			return backoff.Permanent(err)
		}
		result = res
		return nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = f.initialInterval
	policy.MaxInterval = f.maxInterval
	policy.MaxElapsedTime = 0

	notify := func(err error, wait time.Duration) {
		f.log.Warn("transient fetch failure, retrying",
			logger.String("url", url),
			logger.Duration("wait", wait),
			logger.Error(err))
	}

	b := backoff.WithContext(backoff.WithMaxRetries(policy, uint64(f.maxRetries)), ctx)
	if err := backoff.RetryNotify(op, b, notify); err != nil {
		return nil, err
	}
	return result, nil
}
