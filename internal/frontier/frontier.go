// Package frontier discovers candidate article URLs per site, hands each
// one out at most once per process and paces requests per host.
package frontier

import (
	"bytes"
	"context"
	"strings"

	"content_spider/internal/config"
	"content_spider/internal/fetcher"
	"content_spider/internal/logger"
	"content_spider/internal/models"
	"content_spider/internal/utils"

	"github.com/PuerkitoBio/goquery"
)

type Options struct {
	MaxURLsPerSite int
	// Robots is optional; nil disables robots.txt checks.
	Robots *Robots
}

type Frontier struct {
	fetcher fetcher.Fetcher
	seen    *SeenSet
	limiter *HostLimiter
	robots  *Robots
	maxURLs int
	log     logger.Logger
}

func New(f fetcher.Fetcher, seen *SeenSet, limiter *HostLimiter, opts Options, log logger.Logger) *Frontier {
	maxURLs := opts.MaxURLsPerSite
	if maxURLs <= 0 {
		maxURLs = config.DefaultMaxURLsPerSite
	}
	return &Frontier{
		fetcher: f,
		seen:    seen,
		limiter: limiter,
		robots:  opts.Robots,
		maxURLs: maxURLs,
		log:     log,
	}
}

// Wait applies the per-host politeness delay before fetching rawURL.
func (fr *Frontier) Wait(ctx context.Context, rawURL string) error {
	return fr.limiter.Wait(ctx, rawURL)
}

// Claim marks a URL reached by redirect as seen. It reports false when the
// URL was already handed out by Discover or claimed before.
func (fr *Frontier) Claim(rawURL string) bool {
	return fr.seen.MarkIfNotSeen(utils.NormalizeURL(rawURL))
}

// Discover returns up to MaxURLsPerSite unseen article URLs linked from the
// site's seed paths with keyword-bearing anchor text. It never fails: an
// unreachable seed path is logged and skipped.
func (fr *Frontier) Discover(ctx context.Context, site *config.SiteConfig) []models.CandidateURL {
	log := fr.log.With(logger.String("site", site.Name))
	keywords := lowerAll(site.Keywords)

	var out []models.CandidateURL
	for _, path := range site.SeedPaths {
		if len(out) >= fr.maxURLs || ctx.Err() != nil {
			break
		}

		listingURL, err := utils.ResolveURL(site.BaseURL, path)
		if err != nil {
			log.Warn("bad seed path", logger.String("path", path), logger.Error(err))
			continue
		}

		if err := fr.limiter.Wait(ctx, listingURL); err != nil {
			break
		}

		res, err := fr.fetcher.Fetch(ctx, listingURL)
		if err != nil {
			log.Warn("seed path unreachable", logger.String("url", listingURL), logger.Error(err))
			continue
		}

		links, err := anchorLinks(res.Body, res.URL, keywords)
		if err != nil {
			log.Warn("listing page unparsable", logger.String("url", listingURL), logger.Error(err))
			continue
		}

		for _, link := range links {
			if len(out) >= fr.maxURLs {
				break
			}
			if fr.robots != nil && !fr.robots.Allowed(ctx, link) {
				log.Debug("blocked by robots.txt", logger.String("url", link))
				continue
			}
			if !fr.seen.MarkIfNotSeen(link) {
				continue
			}
			out = append(out, models.CandidateURL{URL: link, Site: site})
		}
	}

	log.Info("discovery finished", logger.Int("candidates", len(out)))
	return out
}

// anchorLinks returns absolute, fragment-free links whose visible text
// contains one of keywords, in document order and without duplicates.
func anchorLinks(body []byte, pageURL string, keywords []string) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	var links []string
	dup := make(map[string]bool)
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		href = strings.TrimSpace(href)
		if href == "" || strings.HasPrefix(href, "#") {
			return
		}
		if !containsAny(strings.ToLower(s.Text()), keywords) {
			return
		}

		abs, err := utils.ResolveURL(pageURL, href)
		if err != nil {
			return
		}
		abs = utils.NormalizeURL(abs)
		if dup[abs] {
			return
		}
		dup[abs] = true
		links = append(links, abs)
	})
	return links, nil
}

func containsAny(text string, keywords []string) bool {
	for _, kw := range keywords {
		if kw != "" && strings.Contains(text, kw) {
			return true
		}
	}
	return false
}

func lowerAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		out = append(out, strings.ToLower(strings.TrimSpace(s)))
	}
	return out
}
