package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nao1215/allergenscan/internal/cache"
	"github.com/nao1215/allergenscan/internal/config"
	"github.com/nao1215/allergenscan/internal/download"
	"github.com/nao1215/allergenscan/internal/fetch"
	"github.com/nao1215/allergenscan/internal/model"
	"github.com/nao1215/allergenscan/internal/search"
)

// errPickOutOfRange is returned when --pick names a hit that does not exist.
var errPickOutOfRange = errors.New("pick index out of range")

// siteFinder resolves a chain name to its official site URL.
type siteFinder interface {
	OfficialSite(ctx context.Context, chain string) (string, error)
}

// NewFindCmd creates the find command.
func NewFindCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "find <chain-name>",
		Short: "Find the allergen PDFs of a restaurant chain",
		Long: `Find looks up the official site of a restaurant chain and crawls it for
allergen information PDFs.

The official site is taken from the local cache when known; otherwise it is
the first result of a web search for "<chain-name> 公式サイト". The search
needs credentials in the environment:
  ALLERGENSCAN_SEARCH_API_KEY
  ALLERGENSCAN_SEARCH_ENGINE_ID

Found PDFs are numbered in the report. Use --download to save all of them,
or --pick to save only some.

Examples:
  # Find the allergen PDFs of a chain
  allergenscan find すき家

  # Save every PDF found
  allergenscan find --download すき家

  # Save only the first and third PDF
  allergenscan find --pick 1,3 すき家

  # Ignore the cached site and search again
  allergenscan find --refresh すき家`,
		Args: cobra.ExactArgs(1),
		RunE: runFindCmd,
	}

	addCrawlFlags(cmd)

	cmd.Flags().BoolP("download", "d", false,
		"Download every PDF found")
	cmd.Flags().IntSliceP("pick", "p", nil,
		"Download only the PDFs with these report numbers (implies --download)")
	cmd.Flags().String("download-dir", config.NewConfig().DownloadDir,
		"Directory for downloaded PDFs")
	cmd.Flags().Bool("refresh", false,
		"Search for the official site even when it is cached")

	return cmd
}

// runFindCmd executes the find command.
func runFindCmd(cmd *cobra.Command, args []string) error {
	cfg, err := buildConfig(cmd, args[0])
	if err != nil {
		return err
	}
	if cfg.Pick, err = cmd.Flags().GetIntSlice("pick"); err != nil {
		return err
	}
	if cfg.Download, err = cmd.Flags().GetBool("download"); err != nil {
		return err
	}
	cfg.Download = cfg.Download || len(cfg.Pick) > 0
	if cfg.DownloadDir, err = cmd.Flags().GetString("download-dir"); err != nil {
		return err
	}
	refresh, err := cmd.Flags().GetBool("refresh")
	if err != nil {
		return err
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	logger := setupLogger(cmd.ErrOrStderr(), cfg.Verbose, cfg.LogJSON)
	slog.SetDefault(logger)

	ctx, stop := signalContext(cmd.Context())
	defer stop()

	store := cache.NewStore(cfg.CacheFile)

	// The search client is only built on a cache miss, so a cached chain
	// works without credentials.
	finder := lazyFinder(func() (siteFinder, error) {
		fetcher := fetch.New(fetch.WithTimeout(cfg.Timeout), fetch.WithUserAgent(cfg.UserAgent))
		return search.NewClient(fetcher, cfg.SearchAPIKey, cfg.SearchEngineID, search.WithLogger(logger))
	})

	f := &findRunner{
		cfg:     cfg,
		logger:  logger,
		store:   store,
		finder:  finder,
		refresh: refresh,
		out:     cmd.OutOrStdout(),
		errOut:  cmd.ErrOrStderr(),
	}
	return f.run(ctx, cfg.Target)
}

// lazyFinder defers building a siteFinder until it is first used.
type lazyFinder func() (siteFinder, error)

// OfficialSite implements siteFinder.
func (l lazyFinder) OfficialSite(ctx context.Context, chain string) (string, error) {
	f, err := l()
	if err != nil {
		return "", err
	}
	return f.OfficialSite(ctx, chain)
}

// findRunner carries the dependencies of one find invocation.
type findRunner struct {
	cfg     *config.Config
	logger  *slog.Logger
	store   *cache.Store
	finder  siteFinder
	refresh bool
	out     io.Writer
	errOut  io.Writer
}

// run resolves the chain's site, crawls it, remembers the PDFs and
// downloads the requested ones.
func (f *findRunner) run(ctx context.Context, chain string) error {
	site, err := f.resolveSite(ctx, chain)
	if err != nil {
		return err
	}
	fmt.Fprintf(f.errOut, "Crawling %s (%s)...\n", site, chain)

	run, err := runCrawl(ctx, f.cfg, f.logger, chain, site, f.out)
	if err != nil {
		return err
	}

	hits := run.Hits()
	if err := f.store.Put(chain, cache.Entry{URL: site, PDFLinks: hitURLs(hits)}); err != nil {
		f.logger.Warn("failed to update cache", "chain", chain, "error", err)
	}

	if !f.cfg.Download {
		return nil
	}
	return f.download(ctx, chain, hits)
}

// resolveSite returns the cached official site, or searches and caches it.
func (f *findRunner) resolveSite(ctx context.Context, chain string) (string, error) {
	if !f.refresh {
		entry, ok, err := f.store.Lookup(chain)
		switch {
		case err != nil:
			f.logger.Warn("cache unavailable, searching instead", "chain", chain, "error", err)
		case ok && entry.URL != "":
			f.logger.Debug("official site from cache", "chain", chain, "url", entry.URL)
			return entry.URL, nil
		}
	}

	site, err := f.finder.OfficialSite(ctx, chain)
	if err != nil {
		return "", fmt.Errorf("failed to find the official site of %s: %w", chain, err)
	}

	if err := f.store.Put(chain, cache.Entry{URL: site}); err != nil {
		f.logger.Warn("failed to update cache", "chain", chain, "error", err)
	}
	return site, nil
}

// download saves the picked hits. Failures do not change the report that
// was already written.
func (f *findRunner) download(ctx context.Context, chain string, hits []model.PdfHit) error {
	picked, err := pickHits(hits, f.cfg.Pick)
	if err != nil {
		return err
	}
	if len(picked) == 0 {
		fmt.Fprintln(f.errOut, "Nothing to download.")
		return nil
	}

	fetcher := fetch.New(
		fetch.WithTimeout(f.cfg.Timeout),
		fetch.WithUserAgent(f.cfg.UserAgent),
		fetch.WithMaxBodySize(download.DefaultMaxBodySize),
	)
	d := download.New(fetcher, f.cfg.DownloadDir,
		download.WithRate(f.cfg.DownloadRate),
		download.WithLogger(f.logger),
	)

	saved, err := d.SaveAll(ctx, chain, picked)
	for _, s := range saved {
		fmt.Fprintln(f.errOut, savedLine(s))
	}
	if err != nil {
		return fmt.Errorf("%d of %d downloads failed: %w", len(picked)-len(saved), len(picked), err)
	}
	return nil
}

// savedLine describes a saved PDF with the title and date it declares.
func savedLine(s *download.Saved) string {
	var details []string
	if s.Info.Title != "" {
		details = append(details, fmt.Sprintf("%q", s.Info.Title))
	}
	if s.Info.Pages > 0 {
		details = append(details, fmt.Sprintf("%d pages", s.Info.Pages))
	}
	if updated := s.Info.Updated(); !updated.IsZero() {
		details = append(details, "updated "+updated.Format("2006-01-02"))
	}
	if len(details) == 0 {
		return "Saved " + s.Path
	}
	return fmt.Sprintf("Saved %s (%s)", s.Path, strings.Join(details, ", "))
}

// pickHits selects hits by 1-based report number. No picks selects all.
func pickHits(hits []model.PdfHit, picks []int) ([]model.PdfHit, error) {
	if len(picks) == 0 {
		return hits, nil
	}

	seen := make(map[int]struct{}, len(picks))
	out := make([]model.PdfHit, 0, len(picks))
	for _, p := range picks {
		if p < 1 || p > len(hits) {
			return nil, fmt.Errorf("%w: %d (found %d PDFs)", errPickOutOfRange, p, len(hits))
		}
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, hits[p-1])
	}
	return out, nil
}

func hitURLs(hits []model.PdfHit) []string {
	urls := make([]string, 0, len(hits))
	for _, h := range hits {
		urls = append(urls, h.URL)
	}
	return urls
}
