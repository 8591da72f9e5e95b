package pipeline

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/nao1215/allergenscan/internal/crawler"
	"github.com/nao1215/allergenscan/internal/model"
	"github.com/nao1215/allergenscan/internal/robots"
)

// DefaultSuspiciousTokens mark sitemap URLs worth a headless render.
var DefaultSuspiciousTokens = []string{"allergen", "origin"}

// DefaultSitemapDelay is the pause between sequential sitemap scans.
const DefaultSitemapDelay = time.Second

// SitemapSource lists the URLs in a site's sitemap.
type SitemapSource interface {
	Discover(ctx context.Context, siteURL string) []string
}

// SubpageSource lists the same-site links of a seed page.
type SubpageSource interface {
	Discover(ctx context.Context, siteURL string, policy *robots.Policy) []string
}

// RobotsStep loads the robots policy for the seed origin.
type RobotsStep struct {
	gate *robots.Gate
}

// NewRobotsStep creates the init step.
func NewRobotsStep(gate *robots.Gate) *RobotsStep {
	return &RobotsStep{gate: gate}
}

// Name returns the step name.
func (s *RobotsStep) Name() string {
	return string(model.PhaseInit)
}

// Do stores the seed origin's policy on the run.
func (s *RobotsStep) Do(ctx context.Context, run *Run) error {
	run.Policy = s.gate.Get(ctx, run.SeedURL)
	return nil
}

// SeedScanStep scans the seed page.
type SeedScanStep struct {
	scanner crawler.Scanner
}

// NewSeedScanStep creates the seed_scan step.
func NewSeedScanStep(scanner crawler.Scanner) *SeedScanStep {
	return &SeedScanStep{scanner: scanner}
}

// Name returns the step name.
func (s *SeedScanStep) Name() string {
	return string(model.PhaseSeed)
}

// Do marks the seed visited and scans it.
func (s *SeedScanStep) Do(ctx context.Context, run *Run) error {
	run.Visited.Add(run.SeedURL)
	run.AddHits(model.PhaseSeed, s.scanner.Scan(ctx, run.SeedURL, run.Policy)...)
	return nil
}

// SitemapStep scans the URLs of the seed's sitemap one at a time.
type SitemapStep struct {
	source     SitemapSource
	static     crawler.Scanner
	rendered   crawler.Scanner
	delay      time.Duration
	suspicious []string
	logger     *slog.Logger
	sleep      func(ctx context.Context, d time.Duration) error
}

// NewSitemapStep creates the sitemap step. URLs containing one of the
// suspicious tokens are scanned with rendered, the rest with static.
func NewSitemapStep(source SitemapSource, static, rendered crawler.Scanner, delay time.Duration, suspicious []string, logger *slog.Logger) *SitemapStep {
	lowered := make([]string, 0, len(suspicious))
	for _, t := range suspicious {
		if t = strings.ToLower(strings.TrimSpace(t)); t != "" {
			lowered = append(lowered, t)
		}
	}
	if rendered == nil {
		rendered = static
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SitemapStep{
		source:     source,
		static:     static,
		rendered:   rendered,
		delay:      delay,
		suspicious: lowered,
		logger:     logger,
		sleep:      sleepContext,
	}
}

// Name returns the step name.
func (s *SitemapStep) Name() string {
	return string(model.PhaseSitemap)
}

// IsSuspicious reports whether rawURL should get a rendered scan.
func (s *SitemapStep) IsSuspicious(rawURL string) bool {
	lower := strings.ToLower(rawURL)
	for _, t := range s.suspicious {
		if strings.Contains(lower, t) {
			return true
		}
	}
	return false
}

// Do discovers sitemap URLs, claims the unvisited ones and scans them
// sequentially with a pause between scans.
func (s *SitemapStep) Do(ctx context.Context, run *Run) error {
	urls := run.Visited.Claim(s.source.Discover(ctx, run.SeedURL))
	s.logger.Debug("sitemap urls claimed", "count", len(urls))

	for i, u := range urls {
		if i > 0 {
			if err := s.sleep(ctx, s.delay); err != nil {
				return err
			}
		}

		scanner := s.static
		if s.IsSuspicious(u) {
			scanner = s.rendered
		}
		run.AddHits(model.PhaseSitemap, scanner.Scan(ctx, u, run.Policy)...)
	}
	return nil
}

// SubpageStep scans the seed's same-site links through a BatchScheduler.
type SubpageStep struct {
	source SubpageSource
	batch  *BatchScheduler
}

// NewSubpageStep creates the subpage step.
func NewSubpageStep(source SubpageSource, batch *BatchScheduler) *SubpageStep {
	return &SubpageStep{source: source, batch: batch}
}

// Name returns the step name.
func (s *SubpageStep) Name() string {
	return string(model.PhaseSubpage)
}

// Do discovers subpages, claims the unvisited ones and batch-scans them.
func (s *SubpageStep) Do(ctx context.Context, run *Run) error {
	urls := run.Visited.Claim(s.source.Discover(ctx, run.SeedURL, run.Policy))
	hits, err := s.batch.Run(ctx, urls, run.Policy)
	run.AddHits(model.PhaseSubpage, hits...)
	if err != nil {
		return err
	}
	return ctx.Err()
}
