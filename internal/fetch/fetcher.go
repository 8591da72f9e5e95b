package fetch

import (
	"compress/flate"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/andybalholm/brotli"
)

// Accept header values for the kinds of documents the crawler asks for.
const (
	AcceptHTML   = "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8"
	AcceptXML    = "application/xml,text/xml;q=0.9,*/*;q=0.5"
	AcceptText   = "text/plain,*/*;q=0.5"
	AcceptPDF    = "application/pdf,*/*;q=0.5"
	AcceptJSON   = "application/json"
	acceptLang   = "ja,en;q=0.8"
	acceptEncode = "gzip, deflate, br"
)

// Default limits applied when no option overrides them.
const (
	DefaultTimeout     = 30 * time.Second
	DefaultMaxBodySize = 10 * 1024 * 1024 // 10MB
)

// Response is a fully read HTTP response.
type Response struct {
	// URL is the requested URL.
	URL string

	// FinalURL is the URL after redirects. Relative links on the page
	// resolve against this one.
	FinalURL string

	// StatusCode is the HTTP status code.
	StatusCode int

	// ContentType is the Content-Type header value.
	ContentType string

	// Body is the decoded response body.
	Body []byte
}

// Fetcher performs GET requests with a fixed identity and size limit.
type Fetcher struct {
	client      *http.Client
	userAgent   string
	headers     map[string]string
	maxBodySize int64
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithClient replaces the underlying HTTP client.
func WithClient(client *http.Client) Option {
	return func(f *Fetcher) {
		if client != nil {
			f.client = client
		}
	}
}

// WithTimeout sets the per-request timeout of the default client.
func WithTimeout(d time.Duration) Option {
	return func(f *Fetcher) {
		if d > 0 {
			f.client.Timeout = d
		}
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(f *Fetcher) {
		f.userAgent = ua
	}
}

// WithHeaders adds headers sent with every request.
func WithHeaders(headers map[string]string) Option {
	return func(f *Fetcher) {
		for k, v := range headers {
			f.headers[k] = v
		}
	}
}

// WithMaxBodySize sets the maximum decoded body size in bytes.
func WithMaxBodySize(size int64) Option {
	return func(f *Fetcher) {
		if size > 0 {
			f.maxBodySize = size
		}
	}
}

// New creates a Fetcher.
func New(opts ...Option) *Fetcher {
	f := &Fetcher{
		client:      &http.Client{Timeout: DefaultTimeout},
		headers:     make(map[string]string),
		maxBodySize: DefaultMaxBodySize,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// UserAgent returns the configured User-Agent.
func (f *Fetcher) UserAgent() string {
	return f.userAgent
}

// Get fetches rawURL. A non-2xx status is returned as an error wrapping
// ErrUnexpectedStatus; the partially filled Response is still returned so
// callers can inspect the status code.
func (f *Fetcher) Get(ctx context.Context, rawURL, accept string) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}
	if accept == "" {
		accept = AcceptHTML
	}
	req.Header.Set("Accept", accept)
	req.Header.Set("Accept-Language", acceptLang)
	req.Header.Set("Accept-Encoding", acceptEncode)
	for k, v := range f.headers {
		req.Header.Set(k, v)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", rawURL, err)
	}

	out := &Response{
		URL:         rawURL,
		FinalURL:    rawURL,
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
	}
	if resp.Request != nil && resp.Request.URL != nil {
		out.FinalURL = resp.Request.URL.String()
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_ = resp.Body.Close()
		return out, fmt.Errorf("%w: %d", ErrUnexpectedStatus, resp.StatusCode)
	}

	body, err := f.readBody(resp)
	if err != nil {
		return out, err
	}
	out.Body = body
	return out, nil
}

// readBody decodes the response body according to Content-Encoding.
// Setting Accept-Encoding explicitly disables the transport's transparent
// gzip handling, so decoding happens here.
func (f *Fetcher) readBody(resp *http.Response) ([]byte, error) {
	reader := io.Reader(resp.Body)
	closers := []io.Closer{resp.Body}

	switch strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding"))) {
	case "gzip":
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			_ = resp.Body.Close()
			return nil, fmt.Errorf("gzip decode: %w", err)
		}
		reader = gz
		closers = append(closers, gz)
	case "br":
		reader = brotli.NewReader(resp.Body)
	case "deflate":
		fl := flate.NewReader(resp.Body)
		reader = fl
		closers = append(closers, fl)
	}

	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			_ = closers[i].Close()
		}
	}()

	body, err := io.ReadAll(io.LimitReader(reader, f.maxBodySize+1))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if int64(len(body)) > f.maxBodySize {
		return nil, fmt.Errorf("%w: %d bytes", ErrBodyTooLarge, f.maxBodySize)
	}
	return body, nil
}

// IsHTML reports whether the content type looks like an HTML document.
// An empty content type is treated as HTML.
func (r *Response) IsHTML() bool {
	ct := strings.ToLower(r.ContentType)
	return ct == "" || strings.Contains(ct, "text/html") || strings.Contains(ct, "application/xhtml")
}
