package fetcher

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"time"

	"content_spider/internal/models"

	"golang.org/x/net/html/charset"
)

const (
	MaxHops         = 15
	maxDocumentSize = 10 << 20
)

var errCaptcha = errors.New("captcha detected")

var captchaMarkers = [][]byte{
	[]byte("captcha"),
	[]byte("security check"),
	[]byte("تایید کنید که ربات نیستید"),
}

type HTTPFetcher struct {
	client    *http.Client
	userAgent string
}

func NewHTTPFetcher(opts Options) *HTTPFetcher {
	jar, _ := cookiejar.New(nil)
	return &HTTPFetcher{
		client: &http.Client{
			Jar:     jar,
			Timeout: opts.Timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= MaxHops {
					return fmt.Errorf("stopped after %d redirects", MaxHops)
				}
				return nil
			},
		},
		userAgent: opts.UserAgent,
	}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, urlStr string) (*models.FetchResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, urlStr, nil)
	if err != nil {
		return nil, &FetchError{Kind: KindNetwork, URL: urlStr, Err: err}
	}

	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "fa-IR,fa;q=0.9,en-US;q=0.8,en;q=0.7")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, classify(urlStr, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, statusError(urlStr, resp.StatusCode)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentSize))
	if err != nil {
		return nil, classify(urlStr, err)
	}

	body, encoding := toUTF8(raw, resp.Header.Get("Content-Type"))

	if looksLikeCaptcha(body) {
		return nil, &FetchError{Kind: KindContent, URL: urlStr, StatusCode: resp.StatusCode, Err: errCaptcha}
	}

	return &models.FetchResult{
		URL:           resp.Request.URL.String(),
		StatusCode:    resp.StatusCode,
		FinalEncoding: encoding,
		Body:          body,
		FetchedAt:     time.Now(),
	}, nil
}

func looksLikeCaptcha(body []byte) bool {
	lower := bytes.ToLower(body)
	for _, marker := range captchaMarkers {
		if bytes.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// toUTF8 transcodes raw using the charset from the header, a BOM or a meta
// tag. Undecodable input is returned unchanged.
func toUTF8(raw []byte, contentType string) ([]byte, string) {
	enc, name, _ := charset.DetermineEncoding(raw, contentType)
	if name == "utf-8" {
		return raw, name
	}
	decoded, err := enc.NewDecoder().Bytes(raw)
	if err != nil {
		return raw, "utf-8"
	}
	return decoded, name
}
