package frontier

import (
	"context"
	"sync"
	"time"

	"content_spider/internal/utils"

	"golang.org/x/time/rate"
)

// HostLimiter paces requests per host across every worker of a run.
type HostLimiter struct {
	interval time.Duration
	mu       sync.Mutex
	hosts    map[string]*rate.Limiter
}

// NewHostLimiter allows one request per interval to each host. A zero
// interval disables pacing.
func NewHostLimiter(interval time.Duration) *HostLimiter {
	return &HostLimiter{
		interval: interval,
		hosts:    make(map[string]*rate.Limiter),
	}
}

func (l *HostLimiter) limiter(host string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	lim, ok := l.hosts[host]
	if !ok {
		lim = rate.NewLimiter(rate.Every(l.interval), 1)
		l.hosts[host] = lim
	}
	return lim
}

// Wait blocks until a request to rawURL's host is allowed or ctx ends. A nil
// limiter never blocks.
func (l *HostLimiter) Wait(ctx context.Context, rawURL string) error {
	if l == nil || l.interval <= 0 {
		return ctx.Err()
	}
	return l.limiter(utils.Host(rawURL)).Wait(ctx)
}
