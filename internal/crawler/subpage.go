package crawler

import (
	"context"
	"log/slog"
	"strings"

	"github.com/nao1215/allergenscan/internal/fetch"
	"github.com/nao1215/allergenscan/internal/model"
	"github.com/nao1215/allergenscan/internal/robots"
)

// SubpageDiscoverer lists the links on a seed page that live under the
// seed URL.
//
// "Under" is a literal string prefix test on the absolute URL, so
// https://example.test/shop matches https://example.test/shop-info and
// scheme or host casing differences do not match.
type SubpageDiscoverer struct {
	fetcher *fetch.Fetcher
	gate    *robots.Gate
	logger  *slog.Logger
}

// NewSubpageDiscoverer creates a SubpageDiscoverer.
func NewSubpageDiscoverer(fetcher *fetch.Fetcher, gate *robots.Gate, logger *slog.Logger) *SubpageDiscoverer {
	if logger == nil {
		logger = slog.Default()
	}
	return &SubpageDiscoverer{fetcher: fetcher, gate: gate, logger: logger}
}

// Discover returns the unique subpage URLs in discovery order. Failures
// yield an empty list.
func (d *SubpageDiscoverer) Discover(ctx context.Context, siteURL string, policy *robots.Policy) []string {
	urls, err := d.TryDiscover(ctx, siteURL, policy)
	if err != nil {
		d.logger.Warn("subpage discovery failed", "site", siteURL, "error", err)
		return []string{}
	}
	return urls
}

// TryDiscover is Discover with the failure returned as a *model.ScanError.
func (d *SubpageDiscoverer) TryDiscover(ctx context.Context, siteURL string, policy *robots.Policy) ([]string, error) {
	if !d.gate.IsAllowed(policy, siteURL) {
		d.logger.Debug("seed disallowed by robots.txt", "url", siteURL)
		return []string{}, nil
	}

	resp, err := d.fetcher.Get(ctx, siteURL, fetch.AcceptHTML)
	if err != nil {
		return nil, model.NewScanError(model.KindPageFetch, siteURL, err)
	}

	candidates, err := parseCandidates(resp.Body, resp.FinalURL)
	if err != nil {
		return nil, model.NewScanError(model.KindPageFetch, siteURL, err)
	}

	seen := make(map[string]struct{}, len(candidates))
	urls := make([]string, 0)
	for _, c := range candidates {
		if !strings.HasPrefix(c.URL, siteURL) {
			continue
		}
		if _, ok := seen[c.URL]; ok {
			continue
		}
		seen[c.URL] = struct{}{}
		urls = append(urls, c.URL)
	}

	d.logger.Debug("subpages discovered", "site", siteURL, "count", len(urls))
	return urls, nil
}
