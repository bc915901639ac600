package fetcher

import (
	"context"
	"errors"
	"time"
	"unicode/utf8"

	"content_spider/internal/models"

	"github.com/gocolly/colly"
)

// CollyFetcher fetches through a colly collector. The base collector holds
// the shared transport; each request runs on a clone so callbacks of
// concurrent fetches never see each other's responses.
type CollyFetcher struct {
	base *colly.Collector
}

func NewCollyFetcher(opts Options) *CollyFetcher {
	c := colly.NewCollector(
		colly.UserAgent(opts.UserAgent),
		colly.AllowURLRevisit(),
	)
	c.ParseHTTPErrorResponse = true
	c.SetRequestTimeout(opts.Timeout)
	return &CollyFetcher{base: c}
}

var errNoResponse = errors.New("collector returned no response")

type collyOutcome struct {
	result *models.FetchResult
	err    error
}

func (f *CollyFetcher) Fetch(ctx context.Context, urlStr string) (*models.FetchResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, classify(urlStr, err)
	}

	c := f.base.Clone()
	var resp *colly.Response
	c.OnResponse(func(r *colly.Response) {
		resp = r
	})

	done := make(chan collyOutcome, 1)
	go func() {
		if err := c.Visit(urlStr); err != nil {
			done <- collyOutcome{err: classify(urlStr, err)}
			return
		}
		if resp == nil {
			done <- collyOutcome{err: &FetchError{Kind: KindNetwork, URL: urlStr, Err: errNoResponse}}
			return
		}
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			done <- collyOutcome{err: statusError(urlStr, resp.StatusCode)}
			return
		}

		body, encoding := resp.Body, "utf-8"
		if !utf8.Valid(body) {
			contentType := ""
			if resp.Headers != nil {
				contentType = resp.Headers.Get("Content-Type")
			}
			body, encoding = toUTF8(body, contentType)
		}
		if looksLikeCaptcha(body) {
			done <- collyOutcome{err: &FetchError{Kind: KindContent, URL: urlStr, StatusCode: resp.StatusCode, Err: errCaptcha}}
			return
		}

		final := urlStr
		if resp.Request != nil && resp.Request.URL != nil {
			final = resp.Request.URL.String()
		}
		done <- collyOutcome{result: &models.FetchResult{
			URL:           final,
			StatusCode:    resp.StatusCode,
			FinalEncoding: encoding,
			Body:          body,
			FetchedAt:     time.Now(),
		}}
	}()

	select {
	case out := <-done:
		return out.result, out.err
	case <-ctx.Done():
		return nil, classify(urlStr, ctx.Err())
	}
}
