package robots

import (
	"context"
	"log/slog"

	"golang.org/x/sync/singleflight"

	"github.com/nao1215/allergenscan/internal/fetch"
	"github.com/nao1215/allergenscan/internal/model"
)

// Gate answers allow/deny questions for crawl requests.
type Gate struct {
	fetcher   *fetch.Fetcher
	cache     *Cache
	userAgent string
	logger    *slog.Logger
	group     singleflight.Group
}

// Option configures a Gate.
type Option func(*Gate)

// WithUserAgent sets the agent name matched against robots groups.
// It defaults to the fetcher's User-Agent.
func WithUserAgent(ua string) Option {
	return func(g *Gate) {
		g.userAgent = ua
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(g *Gate) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// NewGate creates a Gate. A nil cache gets a fresh one.
func NewGate(fetcher *fetch.Fetcher, cache *Cache, opts ...Option) *Gate {
	if cache == nil {
		cache = NewCache()
	}
	g := &Gate{
		fetcher:   fetcher,
		cache:     cache,
		userAgent: fetcher.UserAgent(),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// UserAgent returns the agent name used for matching.
func (g *Gate) UserAgent() string {
	return g.userAgent
}

// Get returns the policy for the origin of siteURL. Failures are logged
// and yield nil, which allows everything.
func (g *Gate) Get(ctx context.Context, siteURL string) *Policy {
	p, err := g.TryGet(ctx, siteURL)
	if err != nil {
		g.logger.Warn("robots.txt unavailable, allowing all",
			"url", siteURL,
			"error", err,
		)
	}
	return p
}

// TryGet is Get with the failure returned as a *model.ScanError of kind
// KindPolicyFetch. Each origin is fetched at most once; concurrent calls
// for the same origin share the fetch.
func (g *Gate) TryGet(ctx context.Context, siteURL string) (*Policy, error) {
	origin, err := Origin(siteURL)
	if err != nil {
		return nil, model.NewScanError(model.KindPolicyFetch, siteURL, err)
	}

	if p, ok := g.cache.Load(origin); ok {
		return p, nil
	}

	v, err, _ := g.group.Do(origin, func() (any, error) {
		if p, ok := g.cache.Load(origin); ok {
			return p, nil
		}
		p, err := g.fetch(ctx, origin)
		g.cache.Store(origin, p)
		return p, err
	})
	p, _ := v.(*Policy)
	return p, err
}

// fetch downloads and parses <origin>/robots.txt.
func (g *Gate) fetch(ctx context.Context, origin string) (*Policy, error) {
	robotsURL := origin + "/robots.txt"

	resp, err := g.fetcher.Get(ctx, robotsURL, fetch.AcceptText)
	if err != nil {
		return nil, model.NewScanError(model.KindPolicyFetch, robotsURL, err)
	}

	p, err := Parse(origin, resp.Body)
	if err != nil {
		return nil, model.NewScanError(model.KindPolicyFetch, robotsURL, err)
	}

	g.logger.Debug("robots.txt loaded", "origin", origin)
	return p, nil
}

// IsAllowed reports whether the gate's agent may fetch rawURL under policy.
func (g *Gate) IsAllowed(policy *Policy, rawURL string) bool {
	return policy.Allows(rawURL, g.userAgent)
}
