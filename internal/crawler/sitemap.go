package crawler

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/antchfx/xmlquery"

	"github.com/nao1215/allergenscan/internal/fetch"
	"github.com/nao1215/allergenscan/internal/model"
)

// sitemapLocQuery selects <urlset><url><loc> regardless of namespace.
// <sitemapindex> documents have no <url> elements and yield nothing.
const sitemapLocQuery = `//*[local-name()='urlset']/*[local-name()='url']/*[local-name()='loc']`

// SitemapDiscoverer lists the page URLs in a site's sitemap.xml.
type SitemapDiscoverer struct {
	fetcher *fetch.Fetcher
	logger  *slog.Logger
}

// NewSitemapDiscoverer creates a SitemapDiscoverer.
func NewSitemapDiscoverer(fetcher *fetch.Fetcher, logger *slog.Logger) *SitemapDiscoverer {
	if logger == nil {
		logger = slog.Default()
	}
	return &SitemapDiscoverer{fetcher: fetcher, logger: logger}
}

// SitemapURL returns the sitemap location for siteURL.
func SitemapURL(siteURL string) string {
	return strings.TrimRight(siteURL, "/") + "/sitemap.xml"
}

// Discover returns the URLs in document order. A missing or unparseable
// sitemap yields an empty list.
func (d *SitemapDiscoverer) Discover(ctx context.Context, siteURL string) []string {
	urls, err := d.TryDiscover(ctx, siteURL)
	if err != nil {
		d.logger.Info("sitemap unavailable", "site", siteURL, "error", err)
		return []string{}
	}
	return urls
}

// TryDiscover is Discover with fetch and parse failures returned as a
// *model.ScanError. Individual malformed entries are dropped and logged.
func (d *SitemapDiscoverer) TryDiscover(ctx context.Context, siteURL string) ([]string, error) {
	sitemapURL := SitemapURL(siteURL)

	resp, err := d.fetcher.Get(ctx, sitemapURL, fetch.AcceptXML)
	if err != nil {
		return nil, model.NewScanError(model.KindPageFetch, sitemapURL, err)
	}

	urls, err := parseSitemap(resp.Body)
	if err != nil {
		return nil, model.NewScanError(model.KindMalformed, sitemapURL, err)
	}

	valid := make([]string, 0, len(urls))
	for _, u := range urls {
		if !isAbsoluteWebURL(u) {
			d.logger.Debug("dropping malformed sitemap entry", "sitemap", sitemapURL, "entry", u)
			continue
		}
		valid = append(valid, u)
	}

	d.logger.Debug("sitemap parsed", "sitemap", sitemapURL, "entries", len(valid))
	return valid, nil
}

// parseSitemap extracts every <loc> of a urlset, trimmed, in order.
func parseSitemap(body []byte) ([]string, error) {
	doc, err := xmlquery.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse sitemap: %w", err)
	}

	nodes, err := xmlquery.QueryAll(doc, sitemapLocQuery)
	if err != nil {
		return nil, fmt.Errorf("query sitemap: %w", err)
	}

	urls := make([]string, 0, len(nodes))
	for _, n := range nodes {
		if loc := strings.TrimSpace(n.InnerText()); loc != "" {
			urls = append(urls, loc)
		}
	}
	return urls, nil
}

// isAbsoluteWebURL reports whether raw parses as an absolute http(s) URL.
func isAbsoluteWebURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return isWebURL(u)
}
