package app

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
	"time"

	"content_spider/internal/config"
	"content_spider/internal/db"
	"content_spider/internal/extractor"
	"content_spider/internal/fetcher"
	"content_spider/internal/frontier"
	"content_spider/internal/logger"
	"content_spider/internal/metrics"
	"content_spider/internal/models"
	"content_spider/internal/slug"
	"content_spider/internal/utils"
	"content_spider/internal/validator"

	"github.com/google/uuid"
)

var ErrNoSites = errors.New("no sites configured")

// ImageStore downloads images and reports how many it fetched.
type ImageStore interface {
	extractor.ImageFetcher
	Downloads() int
}

// Deps are the collaborators of a run. Fetcher and Logger are required; the
// rest are optional.
type Deps struct {
	Fetcher fetcher.Fetcher
	Images  ImageStore
	Sink    db.Sink
	Metrics *metrics.Metrics
	Logger  logger.Logger
	// Seen is shared across runs of one process; a fresh set is used when nil.
	Seen *frontier.SeenSet
	// Limiter paces every request of the run, images included. One is
	// built from logic.delay_ms when nil.
	Limiter *frontier.HostLimiter
}

type SpiderApp struct {
	config    *config.SpiderConfig
	frontier  *frontier.Frontier
	fetcher   fetcher.Fetcher
	builder   *extractor.Builder
	images    ImageStore
	validator *validator.Validator
	sink      db.Sink
	metrics   *metrics.Metrics
	log       logger.Logger
	now       func() time.Time
}

func NewSpiderApp(cfg *config.SpiderConfig, deps Deps) (*SpiderApp, error) {
	if deps.Fetcher == nil {
		return nil, errors.New("app: fetcher is required")
	}
	log := deps.Logger
	if log == nil {
		log = logger.NewNop()
	}
	seen := deps.Seen
	if seen == nil {
		seen = frontier.NewSeenSet()
	}

	limiter := deps.Limiter
	if limiter == nil {
		limiter = frontier.NewHostLimiter(cfg.Logic.Delay())
	}

	opts := frontier.Options{MaxURLsPerSite: cfg.Logic.MaxURLsPerSite}
	if cfg.Logic.RespectRobots {
		opts.Robots = frontier.NewRobots(deps.Fetcher, cfg.Logic.UserAgent, limiter, log)
	}

	var images extractor.ImageFetcher
	if deps.Images != nil {
		images = deps.Images
	}

	return &SpiderApp{
		config:    cfg,
		frontier:  frontier.New(deps.Fetcher, seen, limiter, opts, log),
		fetcher:   deps.Fetcher,
		builder:   extractor.NewBuilder(images, cfg.Logic.MaxImagesPerRecord, log),
		images:    deps.Images,
		validator: validator.New(cfg.Validation),
		sink:      deps.Sink,
		metrics:   deps.Metrics,
		log:       log,
		now:       func() time.Time { return time.Now().UTC() },
	}, nil
}

// runState collects worker output. Everything is guarded by mu.
type runState struct {
	mu      sync.Mutex
	stats   models.Stats
	records []models.ContentRecord
}

func (s *runState) update(fn func(*runState)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s)
}

// Run discovers, fetches and validates every configured site and returns
// the batch. Cancelling ctx stops dispatch; pages already being processed
// finish, and the partial batch is returned without error.
func (a *SpiderApp) Run(ctx context.Context) (*models.BatchResult, error) {
	if len(a.config.Sites) == 0 {
		return nil, ErrNoSites
	}

	res := &models.BatchResult{RunID: uuid.NewString(), StartedAt: a.now()}
	log := a.log.With(logger.String("run_id", res.RunID))
	log.Info("run started",
		logger.Int("sites", len(a.config.Sites)),
		logger.Int("workers", a.config.Logic.MaxConcurrentWorkers),
		logger.Duration("delay", a.config.Logic.Delay()))

	workers := a.config.Logic.MaxConcurrentWorkers
	if workers <= 0 {
		workers = config.DefaultMaxConcurrentWorkers
	}

	state := &runState{}
	candidates := make(chan models.CandidateURL, workers)

	go a.produce(ctx, candidates, state)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			wlog := log.With(logger.Int("worker", workerID))
			for c := range candidates {
				if ctx.Err() != nil {
					continue
				}
				a.process(ctx, c, state, wlog)
			}
		}(i)
	}
	wg.Wait()

	records := state.records
	slices.SortFunc(records, func(x, y models.ContentRecord) int {
		return strings.Compare(x.ID, y.ID)
	})
	res.Accepted, res.Quarantined = a.validator.ValidateBatch(records)

	for _, v := range res.Quarantined {
		log.Info("record quarantined", logger.String("url", v.Record.URL), logger.Strings("reasons", v.Errors))
	}
	a.save(context.WithoutCancel(ctx), res.Accepted, log)

	res.Stats = state.stats
	res.Stats.Accepted = len(res.Accepted)
	res.Stats.Quarantined = len(res.Quarantined)
	if a.images != nil {
		res.Stats.ImagesDownloaded = a.images.Downloads()
	}
	res.Stats.Cancelled = ctx.Err() != nil
	res.FinishedAt = a.now()

	if a.metrics != nil {
		a.metrics.Record(res)
	}

	log.Info("run finished",
		logger.Int("discovered", res.Stats.Discovered),
		logger.Int("fetched", res.Stats.Fetched),
		logger.Int("fetch_errors", res.Stats.FetchErrors),
		logger.Int("parse_errors", res.Stats.ParseErrors),
		logger.Int("duplicates", res.Stats.Duplicates),
		logger.Int("accepted", res.Stats.Accepted),
		logger.Int("quarantined", res.Stats.Quarantined),
		logger.Int("images_downloaded", res.Stats.ImagesDownloaded),
		logger.Bool("cancelled", res.Stats.Cancelled),
		logger.Duration("took", res.FinishedAt.Sub(res.StartedAt)))

	return res, nil
}

// produce walks the sites in order and feeds discovered URLs to the workers
// until the sites are exhausted or ctx is cancelled.
func (a *SpiderApp) produce(ctx context.Context, out chan<- models.CandidateURL, state *runState) {
	defer close(out)

	for i := range a.config.Sites {
		if ctx.Err() != nil {
			return
		}
		site := &a.config.Sites[i]
		found := a.frontier.Discover(ctx, site)
		state.update(func(s *runState) {
			s.stats.SitesProcessed++
			s.stats.Discovered += len(found)
		})

		for _, c := range found {
			if ctx.Err() != nil {
				return
			}
			select {
			case out <- c:
			case <-ctx.Done():
				return
			}
		}
	}
}

// process handles one candidate. Once the host delay has passed the page is
// fetched and built on a context detached from run cancellation, bounded
// only by the fetch and image timeouts.
func (a *SpiderApp) process(ctx context.Context, c models.CandidateURL, state *runState, log logger.Logger) {
	log = log.With(logger.String("url", c.URL), logger.String("site", c.Site.Name))

	if err := a.frontier.Wait(ctx, c.URL); err != nil {
		return
	}
	work := context.WithoutCancel(ctx)

	page, err := a.fetcher.Fetch(work, c.URL)
	if err != nil {
		var fe *fetcher.FetchError
		if errors.As(err, &fe) {
			log.Warn("fetch failed", logger.String("kind", string(fe.Kind)), logger.Int("status", fe.StatusCode), logger.Error(err))
		} else {
			log.Warn("fetch failed", logger.Error(err))
		}
		state.update(func(s *runState) { s.stats.FetchErrors++ })
		a.metrics.ObservePage(metrics.OutcomeFetchError)
		return
	}
	state.update(func(s *runState) { s.stats.Fetched++ })

	// The record is keyed by the URL the page was served from. A redirect
	// onto a URL already handed out or claimed by another worker yields the
	// same record, so it is dropped.
	if final := utils.NormalizeURL(page.URL); final != c.URL && !a.frontier.Claim(final) {
		log.Info("redirect target already fetched", logger.String("final_url", final))
		state.update(func(s *runState) { s.stats.Duplicates++ })
		a.metrics.ObservePage(metrics.OutcomeDuplicate)
		return
	}

	rec, err := a.builder.Build(work, page)
	switch {
	case err == nil:
	case errors.Is(err, slug.ErrEmptySlug):
		log.Warn("title yields no slug, record goes to validation", logger.String("title", rec.Title))
	default:
		log.Warn("page skipped", logger.Error(err))
		state.update(func(s *runState) { s.stats.ParseErrors++ })
		a.metrics.ObservePage(metrics.OutcomeParseError)
		return
	}

	a.metrics.ObservePage(metrics.OutcomeFetched)
	log.Debug("record built", logger.String("slug", rec.Slug), logger.Int("images", len(rec.Images)))
	state.update(func(s *runState) { s.records = append(s.records, *rec) })
}

func (a *SpiderApp) save(ctx context.Context, records []models.ContentRecord, log logger.Logger) {
	if a.sink == nil {
		return
	}
	for i := range records {
		rec := &records[i]
		inserted, err := a.sink.Save(ctx, rec)
		switch {
		case err != nil:
			log.Error("sink save failed", logger.String("slug", rec.Slug), logger.Error(err))
		case !inserted:
			log.Info("slug already stored", logger.String("slug", rec.Slug))
		}
	}
}
