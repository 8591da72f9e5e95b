package download

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/nao1215/allergenscan/internal/fetch"
	"github.com/nao1215/allergenscan/internal/model"
)

const (
	// DefaultMaxBodySize bounds a single PDF download.
	DefaultMaxBodySize = 50 * 1024 * 1024 // 50MB

	// DefaultRate is the number of downloads started per second.
	DefaultRate = 1.0

	timestampLayout = "20060102T150405"
	maxCollisions   = 1000
)

// Downloader saves allergen PDFs to a local directory, one request at a
// time under a rate limit.
type Downloader struct {
	fetcher *fetch.Fetcher
	limiter *rate.Limiter
	dir     string
	logger  *slog.Logger
	now     func() time.Time
}

// Option configures a Downloader.
type Option func(*Downloader)

// WithRate sets how many downloads may start per second.
// A non-positive value disables the limit.
func WithRate(perSecond float64) Option {
	return func(d *Downloader) {
		if perSecond <= 0 {
			d.limiter = rate.NewLimiter(rate.Inf, 1)
			return
		}
		d.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Downloader) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// New creates a Downloader writing into dir. If fetcher is nil a fetcher
// with DefaultMaxBodySize is used.
func New(fetcher *fetch.Fetcher, dir string, opts ...Option) *Downloader {
	if fetcher == nil {
		fetcher = fetch.New(fetch.WithMaxBodySize(DefaultMaxBodySize))
	}
	d := &Downloader{
		fetcher: fetcher,
		limiter: rate.NewLimiter(rate.Limit(DefaultRate), 1),
		dir:     dir,
		logger:  slog.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dir returns the output directory.
func (d *Downloader) Dir() string {
	return d.dir
}

// Saved describes one PDF written to disk.
type Saved struct {
	Hit  model.PdfHit
	Path string
	Size int64
	Info *PDFInfo
}

// Download fetches rawURL and writes it to dest. The file appears only
// once the whole body has been written.
func (d *Downloader) Download(ctx context.Context, rawURL, dest string) (int64, error) {
	body, err := d.fetchPDF(ctx, rawURL)
	if err != nil {
		return 0, err
	}
	if err := writeAtomic(dest, body); err != nil {
		return 0, err
	}
	return int64(len(body)), nil
}

func (d *Downloader) fetchPDF(ctx context.Context, rawURL string) ([]byte, error) {
	if err := d.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit: %w", err)
	}

	resp, err := d.fetcher.Get(ctx, rawURL, fetch.AcceptPDF)
	if err != nil {
		return nil, err
	}
	if !isPDF(resp) {
		return nil, fmt.Errorf("%w: %s (%s)", ErrNotPDF, rawURL, resp.ContentType)
	}
	return resp.Body, nil
}

// Save downloads the hit into the output directory as
// <chain>_<timestamp>.pdf. A numeric suffix is added when the name is
// taken.
func (d *Downloader) Save(ctx context.Context, chain string, hit model.PdfHit) (*Saved, error) {
	if d.dir == "" {
		return nil, ErrNoDirectory
	}
	if err := os.MkdirAll(d.dir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create download directory: %w", err)
	}

	stem := NormalizeChainName(chain) + "_" + d.now().Format(timestampLayout)
	dest, err := reservePath(d.dir, stem)
	if err != nil {
		return nil, err
	}

	body, err := d.fetchPDF(ctx, hit.URL)
	if err == nil {
		err = writeAtomic(dest, body)
	}
	if err != nil {
		_ = os.Remove(dest)
		return nil, err
	}

	saved := &Saved{Hit: hit, Path: dest, Size: int64(len(body)), Info: ParsePDFInfo(body)}
	if pages, err := countPages(dest); err != nil {
		d.logger.Debug("could not count PDF pages", "path", dest, "error", err)
	} else {
		saved.Info.Pages = pages
	}
	d.logger.Info("saved allergen PDF",
		"url", hit.URL,
		"path", dest,
		"bytes", saved.Size,
		"title", saved.Info.Title,
		"pages", saved.Info.Pages,
		"updated", saved.Info.Updated(),
	)
	return saved, nil
}

// SaveAll saves each hit in order. Failures are logged and joined; the
// remaining hits are still attempted unless ctx is done.
func (d *Downloader) SaveAll(ctx context.Context, chain string, hits []model.PdfHit) ([]*Saved, error) {
	var (
		saved []*Saved
		errs  []error
	)
	for _, hit := range hits {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		s, err := d.Save(ctx, chain, hit)
		if err != nil {
			d.logger.Warn("download failed", "url", hit.URL, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", hit.URL, err))
			continue
		}
		saved = append(saved, s)
	}
	return saved, errors.Join(errs...)
}

func isPDF(resp *fetch.Response) bool {
	if strings.Contains(strings.ToLower(resp.ContentType), "application/pdf") {
		return true
	}
	return bytes.HasPrefix(resp.Body, []byte("%PDF"))
}

// reservePath claims stem.pdf, or stem_N.pdf when taken, by creating an
// empty file exclusively.
func reservePath(dir, stem string) (string, error) {
	for i := 1; i <= maxCollisions; i++ {
		name := stem + ".pdf"
		if i > 1 {
			name = fmt.Sprintf("%s_%d.pdf", stem, i)
		}
		path := filepath.Join(dir, name)

		f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0600)
		if err == nil {
			_ = f.Close()
			return path, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return "", fmt.Errorf("failed to reserve %s: %w", path, err)
		}
	}
	return "", fmt.Errorf("too many files named %s", stem)
}

func writeAtomic(dest string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(dest), ".download-*.part")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write %s: %w", dest, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", dest, err)
	}
	if err := os.Rename(tmpName, dest); err != nil {
		return fmt.Errorf("failed to move %s: %w", dest, err)
	}
	return nil
}
