package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nao1215/allergenscan/internal/crawler"
	"github.com/nao1215/allergenscan/internal/model"
	"github.com/nao1215/allergenscan/internal/robots"
)

// Batch defaults keep the load on a single restaurant site low.
const (
	DefaultMaxConcurrent = 2
	DefaultBatchDelay    = time.Second
)

// BatchScheduler scans URLs in fixed-size batches. Scans within a batch
// run concurrently with staggered starts; batches run one after another
// with a fixed pause between them.
type BatchScheduler struct {
	scanner       crawler.Scanner
	maxConcurrent int
	delay         time.Duration
	logger        *slog.Logger

	// sleep waits for d or until ctx is done. Tests replace it.
	sleep func(ctx context.Context, d time.Duration) error
}

// BatchOption configures a BatchScheduler.
type BatchOption func(*BatchScheduler)

// WithMaxConcurrent sets the batch size, which is also the maximum number
// of scans in flight. Non-positive values are ignored.
func WithMaxConcurrent(n int) BatchOption {
	return func(b *BatchScheduler) {
		if n > 0 {
			b.maxConcurrent = n
		}
	}
}

// WithBatchDelay sets the pause between batches. Starts within a batch are
// spread evenly over the same duration. Negative values are ignored.
func WithBatchDelay(d time.Duration) BatchOption {
	return func(b *BatchScheduler) {
		if d >= 0 {
			b.delay = d
		}
	}
}

// WithBatchLogger sets a custom logger for batch processing.
func WithBatchLogger(logger *slog.Logger) BatchOption {
	return func(b *BatchScheduler) {
		b.logger = logger
	}
}

// NewBatchScheduler creates a BatchScheduler around scanner.
func NewBatchScheduler(scanner crawler.Scanner, opts ...BatchOption) *BatchScheduler {
	b := &BatchScheduler{
		scanner:       scanner,
		maxConcurrent: DefaultMaxConcurrent,
		delay:         DefaultBatchDelay,
		sleep:         sleepContext,
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.logger == nil {
		b.logger = slog.Default()
	}
	return b
}

// MaxConcurrent returns the batch size.
func (b *BatchScheduler) MaxConcurrent() int {
	return b.maxConcurrent
}

// Run scans every URL and returns the hits in batch order. Within a batch
// hits keep the URL order. Cancellation stops scheduling further batches;
// hits already collected are returned. A scan that panics stops the run
// with an orchestration ScanError, again keeping the hits collected so far.
func (b *BatchScheduler) Run(ctx context.Context, urls []string, policy *robots.Policy) ([]model.PdfHit, error) {
	batches := Partition(urls, b.maxConcurrent)
	stagger := b.delay / time.Duration(b.maxConcurrent)
	hits := make([]model.PdfHit, 0)

	b.logger.Debug("starting batch scan",
		"urls", len(urls),
		"batches", len(batches),
		"max_concurrent", b.maxConcurrent,
	)

	start := time.Now()
	for i, batch := range batches {
		if i > 0 {
			if err := b.sleep(ctx, b.delay); err != nil {
				b.logger.Warn("batch scan cancelled", "completed_batches", i, "reason", err)
				break
			}
		}
		batchHits, err := b.runBatch(ctx, batch, policy, stagger)
		hits = append(hits, batchHits...)
		if err != nil {
			b.logger.Error("batch scan aborted", "completed_batches", i, "error", err)
			return hits, err
		}
	}

	b.logger.Debug("batch scan complete",
		"urls", len(urls),
		"hits", len(hits),
		"elapsed", time.Since(start),
	)
	return hits, nil
}

// runBatch scans one batch concurrently. Dispatch i starts after
// i*stagger. Panics in a worker goroutine are recovered there, since a
// recover further up the stack cannot see them.
func (b *BatchScheduler) runBatch(ctx context.Context, batch []string, policy *robots.Policy, stagger time.Duration) ([]model.PdfHit, error) {
	results := make([][]model.PdfHit, len(batch))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.maxConcurrent)

	for i, u := range batch {
		g.Go(func() (err error) {
			defer func() {
				if rec := recover(); rec != nil {
					err = model.NewScanError(model.KindOrchestration, u, fmt.Errorf("panic: %v", rec))
				}
			}()
			if err := b.sleep(gctx, time.Duration(i)*stagger); err != nil {
				return nil
			}
			// Scanners never fail; a bad page simply contributes nothing.
			results[i] = b.scanner.Scan(gctx, u, policy)
			return nil
		})
	}
	err := g.Wait()

	hits := make([]model.PdfHit, 0)
	for _, r := range results {
		hits = append(hits, r...)
	}
	return hits, err
}

// Partition splits urls into consecutive batches of at most size.
func Partition(urls []string, size int) [][]string {
	if size <= 0 {
		size = 1
	}
	batches := make([][]string, 0, (len(urls)+size-1)/size)
	for start := 0; start < len(urls); start += size {
		end := min(start+size, len(urls))
		batches = append(batches, urls[start:end])
	}
	return batches
}

// sleepContext waits for d, returning early with ctx.Err() on cancel.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
