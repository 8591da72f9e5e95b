package crawler

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"github.com/nao1215/allergenscan/internal/model"
	"github.com/nao1215/allergenscan/internal/robots"
)

// DefaultRenderTimeout bounds a single headless render, including browser
// start, navigation and waiting for the network to settle.
const DefaultRenderTimeout = 30 * time.Second

// linkAttributes are data attributes JavaScript-driven pages commonly use
// to carry a navigation target outside of href.
var linkAttributes = []string{
	"data-href",
	"data-url",
	"data-link",
	"data-src",
	"data-file",
	"data-pdf",
	"data-download",
}

// RenderResult is the DOM of a page after its scripts ran.
type RenderResult struct {
	// HTML is the outer HTML of the document element.
	HTML string

	// FinalURL is the location after client and server redirects.
	FinalURL string
}

// Renderer executes a page's scripts and returns the resulting DOM.
type Renderer interface {
	Render(ctx context.Context, pageURL string) (*RenderResult, error)
}

// RenderedPageScanner scans the rendered DOM of a page. Rendering is an
// enhancement: on any render failure the page is scanned statically.
type RenderedPageScanner struct {
	static   *PageScanner
	renderer Renderer
	logger   *slog.Logger
}

// NewRenderedPageScanner creates a RenderedPageScanner that falls back to
// static. It shares the static scanner's robots gate and classifier.
func NewRenderedPageScanner(static *PageScanner, renderer Renderer) *RenderedPageScanner {
	return &RenderedPageScanner{
		static:   static,
		renderer: renderer,
		logger:   static.logger,
	}
}

// Scan returns the allergen PDF links on the rendered page.
func (s *RenderedPageScanner) Scan(ctx context.Context, pageURL string, policy *robots.Policy) []model.PdfHit {
	hits, err := s.TryScan(ctx, pageURL, policy)
	if err != nil {
		s.logger.Warn("rendered scan failed", "url", pageURL, "error", err)
		return []model.PdfHit{}
	}
	return hits
}

// TryScan renders pageURL and classifies anchors and data-attribute links.
// A render failure is logged and replaced by the static scan's result.
func (s *RenderedPageScanner) TryScan(ctx context.Context, pageURL string, policy *robots.Policy) ([]model.PdfHit, error) {
	if !s.static.gate.IsAllowed(policy, pageURL) {
		s.logger.Debug("page disallowed by robots.txt", "url", pageURL)
		return []model.PdfHit{}, nil
	}

	candidates, err := s.render(ctx, pageURL)
	if err != nil {
		s.logger.Info("renderer failed, falling back to static scan",
			"url", pageURL,
			"error", err,
		)
		return s.static.TryScan(ctx, pageURL, policy)
	}

	return s.static.classify(pageURL, candidates, policy), nil
}

// render runs the renderer and extracts candidates from its DOM.
func (s *RenderedPageScanner) render(ctx context.Context, pageURL string) ([]model.LinkCandidate, error) {
	if s.renderer == nil {
		return nil, model.NewScanError(model.KindRender, pageURL, fmt.Errorf("no renderer configured"))
	}

	result, err := s.renderer.Render(ctx, pageURL)
	if err != nil {
		return nil, model.NewScanError(model.KindRender, pageURL, err)
	}

	base := result.FinalURL
	if base == "" {
		base = pageURL
	}
	candidates, err := extractRenderedLinks(result.HTML, base)
	if err != nil {
		return nil, model.NewScanError(model.KindRender, pageURL, err)
	}
	return candidates, nil
}

// extractRenderedLinks collects anchors and data-attribute links from a
// rendered document. A URL is reported once per distinct text, so a
// second anchor with a better label is not lost. A text-less element only
// adds its URL when nothing else names it.
func extractRenderedLinks(document, pageURL string) ([]model.LinkCandidate, error) {
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("parse page url: %w", err)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(document))
	if err != nil {
		return nil, fmt.Errorf("parse rendered html: %w", err)
	}

	if href, ok := doc.Find("base[href]").First().Attr("href"); ok {
		if resolved, ok := resolveLink(base, href); ok {
			if u, err := url.Parse(resolved); err == nil {
				base = u
			}
		}
	}

	type linkKey struct{ url, text string }
	candidates := make([]model.LinkCandidate, 0)
	seen := make(map[linkKey]struct{})
	urls := make(map[string]struct{})
	untitled := make(map[string]int) // URL -> index of its text-less candidate
	add := func(raw, text string) {
		resolved, ok := resolveLink(base, raw)
		if !ok {
			return
		}
		key := linkKey{url: resolved, text: text}
		if _, dup := seen[key]; dup {
			return
		}
		if text == "" {
			if _, known := urls[resolved]; known {
				return
			}
			untitled[resolved] = len(candidates)
		} else if i, ok := untitled[resolved]; ok {
			candidates[i].Text = text
			delete(untitled, resolved)
			delete(seen, linkKey{url: resolved})
			seen[key] = struct{}{}
			return
		}
		seen[key] = struct{}{}
		urls[resolved] = struct{}{}
		candidates = append(candidates, model.LinkCandidate{URL: resolved, Text: text})
	}

	selector := "a[href]"
	for _, attr := range linkAttributes {
		selector += ", [" + attr + "]"
	}

	doc.Find(selector).Each(func(_ int, sel *goquery.Selection) {
		text := selectionText(sel)
		if goquery.NodeName(sel) == "a" {
			href, _ := sel.Attr("href")
			add(href, text)
		}
		for _, attr := range linkAttributes {
			if v, ok := sel.Attr(attr); ok {
				add(v, text)
			}
		}
	})

	return candidates, nil
}

// selectionText returns the collapsed text of a selection, falling back to
// its title or aria-label for icon-only controls.
func selectionText(sel *goquery.Selection) string {
	text := strings.Join(strings.Fields(sel.Text()), " ")
	if text != "" {
		return text
	}
	for _, attr := range []string{"aria-label", "title"} {
		if v, ok := sel.Attr(attr); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

// ChromeRenderer renders pages in headless Chrome via chromedp. Each call
// launches an isolated browser that is torn down when the call returns.
type ChromeRenderer struct {
	timeout     time.Duration
	settleDelay time.Duration
	userAgent   string
	execPath    string
	logger      *slog.Logger
}

// RendererOption configures a ChromeRenderer.
type RendererOption func(*ChromeRenderer)

// WithRenderTimeout sets the overall render timeout.
func WithRenderTimeout(d time.Duration) RendererOption {
	return func(r *ChromeRenderer) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithSettleDelay sets how long the page must have no request in flight
// before the network is considered idle.
func WithSettleDelay(d time.Duration) RendererOption {
	return func(r *ChromeRenderer) {
		if d > 0 {
			r.settleDelay = d
		}
	}
}

// WithRendererUserAgent sets the browser User-Agent.
func WithRendererUserAgent(ua string) RendererOption {
	return func(r *ChromeRenderer) {
		r.userAgent = ua
	}
}

// WithExecPath sets the Chrome binary. By default chromedp searches PATH.
func WithExecPath(path string) RendererOption {
	return func(r *ChromeRenderer) {
		r.execPath = path
	}
}

// WithRendererLogger sets the logger.
func WithRendererLogger(logger *slog.Logger) RendererOption {
	return func(r *ChromeRenderer) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewChromeRenderer creates a ChromeRenderer.
func NewChromeRenderer(opts ...RendererOption) *ChromeRenderer {
	r := &ChromeRenderer{
		timeout:     DefaultRenderTimeout,
		settleDelay: 500 * time.Millisecond,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Render navigates to pageURL, waits for the document to load and the
// network to go quiet, and returns the outer HTML.
func (r *ChromeRenderer) Render(parent context.Context, pageURL string) (*RenderResult, error) {
	ctx, cancel := context.WithTimeout(parent, r.timeout)
	defer cancel()

	execOpts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	execOpts = append(execOpts,
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("no-sandbox", true),
	)
	if r.userAgent != "" {
		execOpts = append(execOpts, chromedp.UserAgent(r.userAgent))
	}
	if r.execPath != "" {
		execOpts = append(execOpts, chromedp.ExecPath(r.execPath))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, execOpts...)
	defer allocCancel()

	tabCtx, tabCancel := chromedp.NewContext(allocCtx)
	defer tabCancel()

	requests := newRequestTracker(time.Now)
	chromedp.ListenTarget(tabCtx, requests.handle)

	start := time.Now()
	var html, location string
	err := chromedp.Run(tabCtx,
		network.Enable(),
		chromedp.Navigate(pageURL),
		waitForDocumentReady(),
		waitForNetworkIdle(requests, r.settleDelay),
		chromedp.Location(&location),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err != nil {
		return nil, fmt.Errorf("chromedp run: %w", err)
	}

	r.logger.Debug("page rendered",
		"url", pageURL,
		"final_url", location,
		"html_bytes", len(html),
		"elapsed", time.Since(start),
	)
	return &RenderResult{HTML: html, FinalURL: location}, nil
}

// waitForDocumentReady polls document.readyState until it is complete.
func waitForDocumentReady() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		ticker := time.NewTicker(100 * time.Millisecond)
		defer ticker.Stop()
		for {
			var state string
			if err := chromedp.Evaluate(`document.readyState`, &state).Do(ctx); err != nil {
				return err
			}
			if state == "complete" {
				return nil
			}
			select {
			case <-ticker.C:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	})
}

// requestTracker follows the page's network requests through DevTools
// events and remembers when the in-flight set last changed.
type requestTracker struct {
	mu         sync.Mutex
	now        func() time.Time
	inFlight   map[network.RequestID]struct{}
	lastChange time.Time
}

func newRequestTracker(now func() time.Time) *requestTracker {
	return &requestTracker{
		now:        now,
		inFlight:   make(map[network.RequestID]struct{}),
		lastChange: now(),
	}
}

// handle is a chromedp target listener. It runs on the event loop and
// must not block.
func (t *requestTracker) handle(ev any) {
	switch e := ev.(type) {
	case *network.EventRequestWillBeSent:
		t.update(e.RequestID, true)
	case *network.EventLoadingFinished:
		t.update(e.RequestID, false)
	case *network.EventLoadingFailed:
		t.update(e.RequestID, false)
	}
}

func (t *requestTracker) update(id network.RequestID, started bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if started {
		// Redirects reuse the request ID.
		t.inFlight[id] = struct{}{}
	} else {
		if _, ok := t.inFlight[id]; !ok {
			return
		}
		delete(t.inFlight, id)
	}
	t.lastChange = t.now()
}

// idle reports whether no request has been in flight for settle.
func (t *requestTracker) idle(settle time.Duration) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.inFlight) == 0 && t.now().Sub(t.lastChange) >= settle
}

// waitForNetworkIdle waits until requests reports the network idle.
// Pages that keep polling never settle and are bounded by the render
// timeout.
func waitForNetworkIdle(requests *requestTracker, settle time.Duration) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		ticker := time.NewTicker(100 * time.Millisecond)
		defer ticker.Stop()
		for !requests.idle(settle) {
			select {
			case <-ticker.C:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		return nil
	})
}
