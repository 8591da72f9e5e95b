package crawler

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"

	"github.com/nao1215/allergenscan/internal/fetch"
	"github.com/nao1215/allergenscan/internal/model"
	"github.com/nao1215/allergenscan/internal/robots"
)

// Scanner finds allergen PDF links on a single page.
// Implementations never fail: errors are logged and yield no hits.
type Scanner interface {
	Scan(ctx context.Context, pageURL string, policy *robots.Policy) []model.PdfHit
}

// PageScanner scans the static HTML of a page.
type PageScanner struct {
	fetcher    *fetch.Fetcher
	gate       *robots.Gate
	classifier *Classifier
	logger     *slog.Logger
}

// ScannerOption configures a PageScanner.
type ScannerOption func(*PageScanner)

// WithClassifier sets the classifier used for candidates.
func WithClassifier(c *Classifier) ScannerOption {
	return func(s *PageScanner) {
		if c != nil {
			s.classifier = c
		}
	}
}

// WithScannerLogger sets the logger.
func WithScannerLogger(logger *slog.Logger) ScannerOption {
	return func(s *PageScanner) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewPageScanner creates a PageScanner.
func NewPageScanner(fetcher *fetch.Fetcher, gate *robots.Gate, opts ...ScannerOption) *PageScanner {
	s := &PageScanner{
		fetcher:    fetcher,
		gate:       gate,
		classifier: NewClassifier(),
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Scan returns the allergen PDF links on pageURL. A page disallowed by
// policy is skipped without a request.
func (s *PageScanner) Scan(ctx context.Context, pageURL string, policy *robots.Policy) []model.PdfHit {
	hits, err := s.TryScan(ctx, pageURL, policy)
	if err != nil {
		s.logger.Warn("page scan failed", "url", pageURL, "error", err)
		return []model.PdfHit{}
	}
	return hits
}

// TryScan is Scan with the failure returned as a *model.ScanError.
// A robots-disallowed page returns no hits and no error.
func (s *PageScanner) TryScan(ctx context.Context, pageURL string, policy *robots.Policy) ([]model.PdfHit, error) {
	if !s.gate.IsAllowed(policy, pageURL) {
		s.logger.Debug("page disallowed by robots.txt", "url", pageURL)
		return []model.PdfHit{}, nil
	}

	resp, err := s.fetcher.Get(ctx, pageURL, fetch.AcceptHTML)
	if err != nil {
		return nil, model.NewScanError(model.KindPageFetch, pageURL, err)
	}
	if !resp.IsHTML() {
		s.logger.Debug("skipping non-HTML page", "url", pageURL, "content_type", resp.ContentType)
		return []model.PdfHit{}, nil
	}

	candidates, err := parseCandidates(resp.Body, resp.FinalURL)
	if err != nil {
		return nil, model.NewScanError(model.KindPageFetch, pageURL, err)
	}

	return s.classify(pageURL, candidates, policy), nil
}

// classify runs candidates through the classifier and drops hits whose
// own URL is disallowed, attributing the rest to pageURL.
func (s *PageScanner) classify(pageURL string, candidates []model.LinkCandidate, policy *robots.Policy) []model.PdfHit {
	hits := make([]model.PdfHit, 0)
	for _, h := range s.classifier.Classify(candidates) {
		if !s.gate.IsAllowed(policy, h.URL) {
			s.logger.Debug("pdf disallowed by robots.txt", "url", h.URL, "source", pageURL)
			continue
		}
		hits = append(hits, h.WithSource(pageURL))
	}

	s.logger.Debug("page scanned",
		"url", pageURL,
		"candidates", len(candidates),
		"hits", len(hits),
	)
	return hits
}

// parseCandidates extracts the anchors of an HTML body relative to pageURL.
func parseCandidates(body []byte, pageURL string) ([]model.LinkCandidate, error) {
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("parse page url: %w", err)
	}
	if !base.IsAbs() {
		return nil, errors.New("page url is not absolute")
	}
	candidates, err := extractAnchors(bytes.NewReader(body), base)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return candidates, nil
}
