package frontier

import (
	"context"
	"fmt"
	"net/url"
	"sync"

	"content_spider/internal/fetcher"
	"content_spider/internal/logger"

	"github.com/temoto/robotstxt"
	"golang.org/x/sync/singleflight"
)

// Robots answers robots.txt questions per host. A host whose robots.txt
// cannot be fetched or parsed allows everything.
type Robots struct {
	fetcher   fetcher.Fetcher
	userAgent string
	limiter   *HostLimiter
	log       logger.Logger

	fetches singleflight.Group

	mu     sync.Mutex
	groups map[string]*robotstxt.Group
}

// NewRobots returns a robots.txt cache. limiter paces the robots.txt
// requests together with page fetches and may be nil.
func NewRobots(f fetcher.Fetcher, userAgent string, limiter *HostLimiter, log logger.Logger) *Robots {
	return &Robots{
		fetcher:   f,
		userAgent: userAgent,
		limiter:   limiter,
		log:       log,
		groups:    make(map[string]*robotstxt.Group),
	}
}

func (r *Robots) Allowed(ctx context.Context, rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return false
	}

	group := r.group(ctx, u)
	if group == nil {
		return true
	}
	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	return group.Test(path)
}

func (r *Robots) cached(key string) (*robotstxt.Group, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	g, ok := r.groups[key]
	return g, ok
}

// group returns the rules for u's host, fetching robots.txt once per host.
// Concurrent callers for one host share the fetch; other hosts never wait
// on it.
func (r *Robots) group(ctx context.Context, u *url.URL) *robotstxt.Group {
	key := u.Scheme + "://" + u.Host
	if g, ok := r.cached(key); ok {
		return g
	}

	v, _, _ := r.fetches.Do(key, func() (any, error) {
		if g, ok := r.cached(key); ok {
			return g, nil
		}
		g, ok := r.fetch(ctx, key+"/robots.txt")
		if ok {
			r.mu.Lock()
			r.groups[key] = g
			r.mu.Unlock()
		}
		return g, nil
	})
	return v.(*robotstxt.Group)
}

// fetch reports false when the request never went out, so the host is asked
// again next time.
func (r *Robots) fetch(ctx context.Context, robotsURL string) (*robotstxt.Group, bool) {
	if err := r.limiter.Wait(ctx, robotsURL); err != nil {
		r.log.Debug("robots.txt wait aborted, allowing all", logger.String("url", robotsURL), logger.Error(err))
		return nil, false
	}

	res, err := r.fetcher.Fetch(ctx, robotsURL)
	if err != nil {
		r.log.Debug("robots.txt unavailable, allowing all", logger.String("url", robotsURL), logger.Error(err))
		return nil, true
	}
	data, err := robotstxt.FromStatusAndBytes(res.StatusCode, res.Body)
	if err != nil {
		r.log.Warn("robots.txt unparsable, allowing all", logger.String("url", robotsURL), logger.Error(fmt.Errorf("parse: %w", err)))
		return nil, true
	}
	return data.FindGroup(r.userAgent), true
}
