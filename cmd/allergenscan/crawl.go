package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nao1215/allergenscan/internal/config"
	"github.com/nao1215/allergenscan/internal/crawler"
	"github.com/nao1215/allergenscan/internal/database"
	"github.com/nao1215/allergenscan/internal/fetch"
	"github.com/nao1215/allergenscan/internal/model"
	"github.com/nao1215/allergenscan/internal/pipeline"
	"github.com/nao1215/allergenscan/internal/report"
	"github.com/nao1215/allergenscan/internal/robots"
)

// NewCrawlCmd creates the crawl command.
func NewCrawlCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crawl <official-site-url>",
		Short: "Crawl a known official site for allergen PDFs",
		Long: `Crawl scans an official restaurant site for allergen information PDFs.

The crawl reads robots.txt once, then scans:
  1. the given top page
  2. every URL in /sitemap.xml, one at a time
  3. subpages linked from the top page under the same path, in small batches

Sitemap pages whose URL mentions "allergen" or "origin" are rendered in a
headless Chrome first, so links inserted by JavaScript are found too.

Examples:
  # Crawl a site
  allergenscan crawl https://www.example.co.jp/

  # Crawl without the headless browser and print JSON
  allergenscan crawl --no-render --json https://www.example.co.jp/

  # Faster crawl for a site you operate
  allergenscan crawl --concurrency 4 --delay 200ms https://www.example.co.jp/`,
		Args: cobra.ExactArgs(1),
		RunE: runCrawlCmd,
	}

	addCrawlFlags(cmd)
	return cmd
}

// addCrawlFlags registers the flags shared by find and crawl.
func addCrawlFlags(cmd *cobra.Command) {
	// Crawl behavior flags
	cmd.Flags().DurationP("timeout", "t", config.DefaultTimeout,
		"Timeout for each HTTP request")
	cmd.Flags().IntP("concurrency", "n", config.DefaultConcurrency,
		"Number of subpages scanned at once")
	cmd.Flags().Duration("delay", config.DefaultBatchDelay,
		"Pause between subpage batches")
	cmd.Flags().Duration("sitemap-delay", config.DefaultSitemapDelay,
		"Pause between sitemap page scans")
	cmd.Flags().Bool("no-render", false,
		"Never start the headless browser")
	cmd.Flags().Duration("render-timeout", config.DefaultRenderTimeout,
		"Timeout for one headless browser render")

	// Configuration file
	cmd.Flags().StringP("config", "c", "",
		"Configuration file path (default: .allergenscan in current or home directory)")

	// Report flags
	cmd.Flags().BoolP("json", "j", false,
		"Output JSON report (mutually exclusive with --markdown)")
	cmd.Flags().BoolP("markdown", "m", false,
		"Output Markdown report (mutually exclusive with --json)")
	cmd.Flags().StringP("output", "o", "",
		"Write report to specified file path (creates directories if needed)")
	cmd.Flags().Bool("no-history", false,
		"Do not record this run in the history database")
}

// runCrawlCmd executes the crawl command.
func runCrawlCmd(cmd *cobra.Command, args []string) error {
	cfg, err := buildConfig(cmd, args[0])
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

	_, err = runCrawl(ctx, cfg, logger, "", cfg.Target, cmd.OutOrStdout())
	return err
}

// signalContext cancels on SIGINT or SIGTERM. The crawl then stops and
// reports what it found so far.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

// buildConfig creates a Config from cobra command flags.
func buildConfig(cmd *cobra.Command, target string) (*config.Config, error) {
	cfg := config.NewConfig()
	cfg.Target = target
	cfg.Verbose = getBoolFlag(cmd, "verbose")
	cfg.LogJSON = getBoolFlag(cmd, "log-json")

	var err error
	if cfg.Timeout, err = cmd.Flags().GetDuration("timeout"); err != nil {
		return nil, err
	}
	if cfg.Concurrency, err = cmd.Flags().GetInt("concurrency"); err != nil {
		return nil, err
	}
	if cfg.BatchDelay, err = cmd.Flags().GetDuration("delay"); err != nil {
		return nil, err
	}
	if cfg.SitemapDelay, err = cmd.Flags().GetDuration("sitemap-delay"); err != nil {
		return nil, err
	}
	noRender, err := cmd.Flags().GetBool("no-render")
	if err != nil {
		return nil, err
	}
	cfg.Render = !noRender
	if cfg.RenderTimeout, err = cmd.Flags().GetDuration("render-timeout"); err != nil {
		return nil, err
	}

	if cfg.ConfigFilePath, err = cmd.Flags().GetString("config"); err != nil {
		return nil, err
	}
	if cfg.SiteConfigs, err = loadSiteConfigs(cfg.ConfigFilePath); err != nil {
		return nil, err
	}

	if cfg.JSONReport, err = cmd.Flags().GetBool("json"); err != nil {
		return nil, err
	}
	if cfg.MarkdownReport, err = cmd.Flags().GetBool("markdown"); err != nil {
		return nil, err
	}
	if cfg.ReportFile, err = cmd.Flags().GetString("output"); err != nil {
		return nil, err
	}
	noHistory, err := cmd.Flags().GetBool("no-history")
	if err != nil {
		return nil, err
	}
	cfg.SaveToDB = !noHistory

	cfg.LoadEnv()
	return cfg, nil
}

// loadSiteConfigs loads the config file. A file the user named explicitly
// must exist; otherwise a missing file yields an empty config.
func loadSiteConfigs(explicitPath string) (*config.File, error) {
	path := config.FindConfigFile(explicitPath)
	if path == "" {
		if explicitPath != "" {
			return nil, fmt.Errorf("%w: %s", config.ErrConfigNotFound, explicitPath)
		}
		return &config.File{Sites: make(map[string]config.SiteConfig)}, nil
	}

	cf, err := config.LoadConfigFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
	}
	return cf, nil
}

// newOrchestrator wires the crawl components for seedURL, applying any
// per-site overrides from the config file.
func newOrchestrator(cfg *config.Config, logger *slog.Logger, seedURL string) *pipeline.Orchestrator {
	site := cfg.SiteConfigs.SiteConfigFor(seedURL)

	userAgent := cfg.UserAgent
	if site.UserAgent != "" {
		userAgent = site.UserAgent
	}

	fetcher := fetch.New(
		fetch.WithTimeout(cfg.Timeout),
		fetch.WithUserAgent(userAgent),
		fetch.WithHeaders(site.Headers),
		fetch.WithMaxBodySize(cfg.MaxBodySize),
	)
	gate := robots.NewGate(fetcher, robots.NewCache(),
		robots.WithUserAgent(userAgent),
		robots.WithLogger(logger),
	)
	static := crawler.NewPageScanner(fetcher, gate,
		crawler.WithClassifier(crawler.NewClassifier(crawler.WithKeywords(site.Keywords))),
		crawler.WithScannerLogger(logger),
	)

	opts := []pipeline.OrchestratorOption{
		pipeline.WithStaticScanner(static),
		pipeline.WithBatchOptions(
			pipeline.WithMaxConcurrent(cfg.Concurrency),
			pipeline.WithBatchDelay(cfg.BatchDelay),
		),
		pipeline.WithSitemapDelay(cfg.SitemapDelay),
		pipeline.WithOrchestratorLogger(logger),
	}
	if len(site.SuspiciousTokens) > 0 {
		opts = append(opts, pipeline.WithSuspiciousTokens(site.SuspiciousTokens))
	}

	render := cfg.Render
	if site.Render != nil {
		render = *site.Render
	}
	if render {
		renderer := crawler.NewChromeRenderer(
			crawler.WithRenderTimeout(cfg.RenderTimeout),
			crawler.WithRendererUserAgent(userAgent),
			crawler.WithRendererLogger(logger),
		)
		opts = append(opts, pipeline.WithRenderedScanner(crawler.NewRenderedPageScanner(static, renderer)))
	}

	return pipeline.NewOrchestrator(fetcher, gate, opts...)
}

// runCrawl crawls seedURL, records the run and writes the report.
// A crawl that stopped early still produces a report of its partial hits.
func runCrawl(ctx context.Context, cfg *config.Config, logger *slog.Logger, chain, seedURL string, out io.Writer) (*model.CrawlRun, error) {
	run, err := newOrchestrator(cfg, logger, seedURL).Run(ctx, seedURL)
	if errors.Is(err, pipeline.ErrInvalidSeed) {
		return nil, fmt.Errorf("invalid site URL %q: must be an absolute http(s) URL", seedURL)
	}
	if err != nil {
		logger.Warn("crawl incomplete", "seed", seedURL, "error", err)
	}
	run.Chain = chain

	if err := recordRun(ctx, cfg, run, logger); err != nil {
		logger.Error("failed to record run", "seed", seedURL, "error", err)
	}

	if err := outputReport(cfg, run, out); err != nil {
		return run, fmt.Errorf("failed to write report: %w", err)
	}
	return run, nil
}

// recordRun saves the run to the history database if enabled.
func recordRun(ctx context.Context, cfg *config.Config, run *model.CrawlRun, logger *slog.Logger) error {
	if !cfg.SaveToDB {
		return nil
	}

	db, err := database.Open(cfg.DBDir, database.DefaultOptions())
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	// The crawl context may already be cancelled; the record is still wanted.
	if err := db.SaveRun(context.WithoutCancel(ctx), run); err != nil {
		return err
	}

	logger.Info("run recorded", "id", run.ID, "db", db.Path())
	return nil
}

// reportFormat maps the report flags to a report format.
func reportFormat(cfg *config.Config) report.Format {
	switch {
	case cfg.JSONReport:
		return report.FormatJSON
	case cfg.MarkdownReport:
		return report.FormatMarkdown
	default:
		return report.FormatText
	}
}

// outputReport writes the run in the requested format to the report file,
// or to out when no file is set.
func outputReport(cfg *config.Config, run *model.CrawlRun, out io.Writer) error {
	if cfg.ReportFile != "" {
		dir := filepath.Dir(cfg.ReportFile)
		if dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0750); err != nil {
				return fmt.Errorf("failed to create output directory: %w", err)
			}
		}

		f, err := os.OpenFile(cfg.ReportFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		out = f
	}

	var w report.Writer
	if format := reportFormat(cfg); format == report.FormatText {
		w = report.NewSimpleWriter(out, report.WithVerbose(cfg.Verbose))
	} else {
		w = report.New(format, out, getVersion())
	}
	_, err := w.Write(run)
	return err
}
