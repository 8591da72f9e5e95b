package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/nao1215/allergenscan/internal/crawler"
	"github.com/nao1215/allergenscan/internal/fetch"
	"github.com/nao1215/allergenscan/internal/model"
	"github.com/nao1215/allergenscan/internal/robots"
)

// ErrInvalidSeed is returned when the seed is not an absolute http(s) URL.
var ErrInvalidSeed = errors.New("seed must be an absolute http(s) URL")

// Orchestrator crawls one site for allergen PDFs.
type Orchestrator struct {
	gate         *robots.Gate
	static       crawler.Scanner
	rendered     crawler.Scanner
	sitemap      SitemapSource
	subpages     SubpageSource
	batchOpts    []BatchOption
	sitemapDelay time.Duration
	suspicious   []string
	logger       *slog.Logger
}

// OrchestratorOption configures an Orchestrator.
type OrchestratorOption func(*Orchestrator)

// WithStaticScanner replaces the static page scanner.
func WithStaticScanner(s crawler.Scanner) OrchestratorOption {
	return func(o *Orchestrator) {
		o.static = s
	}
}

// WithRenderedScanner sets the scanner used for suspicious sitemap URLs.
// Without it those URLs are scanned statically.
func WithRenderedScanner(s crawler.Scanner) OrchestratorOption {
	return func(o *Orchestrator) {
		o.rendered = s
	}
}

// WithSitemapSource replaces the sitemap discoverer.
func WithSitemapSource(s SitemapSource) OrchestratorOption {
	return func(o *Orchestrator) {
		o.sitemap = s
	}
}

// WithSubpageSource replaces the subpage discoverer.
func WithSubpageSource(s SubpageSource) OrchestratorOption {
	return func(o *Orchestrator) {
		o.subpages = s
	}
}

// WithBatchOptions configures the subpage BatchScheduler.
func WithBatchOptions(opts ...BatchOption) OrchestratorOption {
	return func(o *Orchestrator) {
		o.batchOpts = append(o.batchOpts, opts...)
	}
}

// WithSitemapDelay sets the pause between sitemap scans.
func WithSitemapDelay(d time.Duration) OrchestratorOption {
	return func(o *Orchestrator) {
		if d >= 0 {
			o.sitemapDelay = d
		}
	}
}

// WithSuspiciousTokens sets the URL tokens that trigger a rendered scan.
func WithSuspiciousTokens(tokens []string) OrchestratorOption {
	return func(o *Orchestrator) {
		if len(tokens) > 0 {
			o.suspicious = tokens
		}
	}
}

// WithOrchestratorLogger sets the logger.
func WithOrchestratorLogger(logger *slog.Logger) OrchestratorOption {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// NewOrchestrator creates an Orchestrator with static scanning and
// discovery built on fetcher and gate. Rendering is off unless
// WithRenderedScanner is given.
func NewOrchestrator(fetcher *fetch.Fetcher, gate *robots.Gate, opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		gate:         gate,
		sitemapDelay: DefaultSitemapDelay,
		suspicious:   DefaultSuspiciousTokens,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.static == nil {
		o.static = crawler.NewPageScanner(fetcher, gate, crawler.WithScannerLogger(o.logger))
	}
	if o.sitemap == nil {
		o.sitemap = crawler.NewSitemapDiscoverer(fetcher, o.logger)
	}
	if o.subpages == nil {
		o.subpages = crawler.NewSubpageDiscoverer(fetcher, gate, o.logger)
	}
	return o
}

// newPipeline assembles the crawl steps.
func (o *Orchestrator) newPipeline() *Pipeline {
	batch := NewBatchScheduler(o.static, append([]BatchOption{WithBatchLogger(o.logger)}, o.batchOpts...)...)

	p := New(WithLogger(o.logger))
	p.AddSteps(
		NewRobotsStep(o.gate),
		NewSeedScanStep(o.static),
		NewSitemapStep(o.sitemap, o.static, o.rendered, o.sitemapDelay, o.suspicious, o.logger),
		NewSubpageStep(o.subpages, batch),
	)
	return p
}

// Run crawls seedURL. The returned run always holds the hits collected so
// far; err is non-nil when a step failed, panicked or was cancelled.
func (o *Orchestrator) Run(ctx context.Context, seedURL string) (result *model.CrawlRun, err error) {
	run := NewRun(seedURL)

	defer func() {
		if rec := recover(); rec != nil {
			err = model.NewScanError(model.KindOrchestration, seedURL, fmt.Errorf("panic: %v", rec))
			run.Fail(err)
		}
		if err != nil {
			if run.Err == nil {
				run.Fail(err)
			}
			o.logger.Error("crawl aborted, returning partial results",
				"seed", seedURL,
				"hits", run.HitCount(),
				"error", err,
			)
		}
		run.Finish()
		result = run.CrawlRun
	}()

	if !validSeed(seedURL) {
		return nil, model.NewScanError(model.KindOrchestration, seedURL, ErrInvalidSeed)
	}

	o.logger.Info("crawl started", "seed", seedURL)
	if execErr := o.newPipeline().Execute(ctx, run); execErr != nil {
		return nil, model.NewScanError(model.KindOrchestration, seedURL, execErr)
	}

	o.logger.Info("crawl finished",
		"seed", seedURL,
		"visited", run.Visited.Len(),
		"hits", run.HitCount(),
	)
	return nil, nil
}

// Crawl is Run folded to its hits: seed, then sitemap, then subpage.
func (o *Orchestrator) Crawl(ctx context.Context, seedURL string) []model.PdfHit {
	run, _ := o.Run(ctx, seedURL)
	return run.Hits()
}

// validSeed reports whether seedURL is an absolute http(s) URL.
func validSeed(seedURL string) bool {
	u, err := url.Parse(seedURL)
	if err != nil || u.Host == "" {
		return false
	}
	scheme := strings.ToLower(u.Scheme)
	return scheme == "http" || scheme == "https"
}
