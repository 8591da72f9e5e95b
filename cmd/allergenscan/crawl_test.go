package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/nao1215/allergenscan/internal/config"
	"github.com/nao1215/allergenscan/internal/database"
	"github.com/nao1215/allergenscan/internal/model"
)

const pdfBody = "%PDF-1.4\n%%EOF\n"

// testSite serves a small restaurant site with two allergen PDFs: one on
// the top page and one on the /menu subpage. It has no robots.txt and no
// sitemap.
type testSite struct {
	server *httptest.Server
	mu     sync.Mutex
	agents []string
}

func newTestSite(t *testing.T) *testSite {
	t.Helper()

	s := &testSite{}
	mux := http.NewServeMux()
	mux.HandleFunc("/{$}", func(w http.ResponseWriter, r *http.Request) {
		s.record(r)
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = io.WriteString(w, `<html><body>
<a href="/docs/allergy.pdf">アレルギー情報</a>
<a href="/docs/menu-card.pdf">メニュー表</a>
<a href="/menu">Menu</a>
</body></html>`)
	})
	mux.HandleFunc("/menu", func(w http.ResponseWriter, r *http.Request) {
		s.record(r)
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = io.WriteString(w, `<html><body><a href="/files/ingredient-list.pdf">成分表</a></body></html>`)
	})
	mux.HandleFunc("/docs/", servePDF)
	mux.HandleFunc("/files/", servePDF)

	s.server = httptest.NewServer(mux)
	t.Cleanup(s.server.Close)
	return s
}

func servePDF(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/pdf")
	_, _ = io.WriteString(w, pdfBody)
}

func (s *testSite) record(r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.agents = append(s.agents, r.UserAgent())
}

func (s *testSite) URL() string {
	return s.server.URL + "/"
}

func (s *testSite) Agents() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.agents...)
}

// newTestConfig returns a config that crawls without pauses, rendering or
// history.
func newTestConfig(target string) *config.Config {
	cfg := config.NewConfig()
	cfg.Target = target
	cfg.Render = false
	cfg.BatchDelay = 0
	cfg.SitemapDelay = 0
	cfg.SaveToDB = false
	cfg.SiteConfigs = &config.File{Sites: make(map[string]config.SiteConfig)}
	return cfg
}

func discardLogger() *slog.Logger {
	return setupLogger(io.Discard, false, false)
}

func TestNewCrawlCmd(t *testing.T) {
	t.Parallel()

	cmd := NewCrawlCmd()
	for _, name := range []string{
		"timeout", "concurrency", "delay", "sitemap-delay", "no-render",
		"render-timeout", "config", "json", "markdown", "output", "no-history",
	} {
		if cmd.Flags().Lookup(name) == nil {
			t.Errorf("expected %s flag", name)
		}
	}
	if cmd.Flags().Lookup("download") != nil {
		t.Error("expected download flag only on find")
	}
}

func TestBuildConfig(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		cfg, err := buildConfig(NewCrawlCmd(), "https://www.example.co.jp/")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cfg.Target != "https://www.example.co.jp/" {
			t.Errorf("unexpected target %q", cfg.Target)
		}
		if cfg.Concurrency != config.DefaultConcurrency {
			t.Errorf("expected concurrency %d, got %d", config.DefaultConcurrency, cfg.Concurrency)
		}
		if !cfg.Render || !cfg.SaveToDB {
			t.Error("expected rendering and history on by default")
		}
		if cfg.SiteConfigs == nil {
			t.Error("expected non-nil site configs")
		}
	})

	t.Run("flags override defaults", func(t *testing.T) {
		cmd := NewCrawlCmd()
		for name, value := range map[string]string{
			"concurrency": "4",
			"delay":       "200ms",
			"no-render":   "true",
			"no-history":  "true",
			"markdown":    "true",
		} {
			if err := cmd.Flags().Set(name, value); err != nil {
				t.Fatalf("failed to set %s: %v", name, err)
			}
		}

		cfg, err := buildConfig(cmd, "https://www.example.co.jp/")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cfg.Concurrency != 4 {
			t.Errorf("expected concurrency 4, got %d", cfg.Concurrency)
		}
		if cfg.BatchDelay.Milliseconds() != 200 {
			t.Errorf("expected delay 200ms, got %v", cfg.BatchDelay)
		}
		if cfg.Render || cfg.SaveToDB {
			t.Error("expected rendering and history off")
		}
		if reportFormat(cfg) != "markdown" {
			t.Errorf("expected markdown format, got %q", reportFormat(cfg))
		}
	})

	t.Run("explicit missing config file", func(t *testing.T) {
		cmd := NewCrawlCmd()
		_ = cmd.Flags().Set("config", filepath.Join(t.TempDir(), "missing.yaml"))

		_, err := buildConfig(cmd, "https://www.example.co.jp/")
		if !errors.Is(err, config.ErrConfigNotFound) {
			t.Errorf("expected ErrConfigNotFound, got %v", err)
		}
	})

	t.Run("explicit config file is loaded", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		data := "sites:\n  WWW.Example.co.jp:\n    render: false\n"
		if err := os.WriteFile(path, []byte(data), 0600); err != nil {
			t.Fatal(err)
		}

		cmd := NewCrawlCmd()
		_ = cmd.Flags().Set("config", path)
		cfg, err := buildConfig(cmd, "https://www.example.co.jp/")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		site := cfg.SiteConfigs.SiteConfigFor(cfg.Target)
		if site.Render == nil || *site.Render {
			t.Errorf("expected render override false, got %v", site.Render)
		}
	})
}

func TestRunCrawl(t *testing.T) {
	t.Parallel()

	t.Run("reports hits in crawl order", func(t *testing.T) {
		t.Parallel()

		site := newTestSite(t)
		cfg := newTestConfig(site.URL())
		cfg.JSONReport = true

		var out bytes.Buffer
		run, err := runCrawl(context.Background(), cfg, discardLogger(), "テスト", site.URL(), &out)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if run.Chain != "テスト" {
			t.Errorf("expected chain on run, got %q", run.Chain)
		}

		var got struct {
			HitCount int `json:"hit_count"`
			Hits     []struct {
				URL   string `json:"url"`
				Phase string `json:"phase"`
			} `json:"hits"`
		}
		if err := json.Unmarshal(out.Bytes(), &got); err != nil {
			t.Fatalf("invalid JSON report: %v\n%s", err, out.String())
		}
		if got.HitCount != 2 {
			t.Fatalf("expected 2 hits, got %d", got.HitCount)
		}
		if !strings.HasSuffix(got.Hits[0].URL, "/docs/allergy.pdf") || got.Hits[0].Phase != "seed_scan" {
			t.Errorf("unexpected first hit %+v", got.Hits[0])
		}
		if !strings.HasSuffix(got.Hits[1].URL, "/files/ingredient-list.pdf") || got.Hits[1].Phase != "subpage" {
			t.Errorf("unexpected second hit %+v", got.Hits[1])
		}
	})

	t.Run("site overrides change keywords and user agent", func(t *testing.T) {
		t.Parallel()

		site := newTestSite(t)
		cfg := newTestConfig(site.URL())
		cfg.SiteConfigs.Sites["127.0.0.1"] = config.SiteConfig{
			Keywords:  []string{"メニュー"},
			UserAgent: "SiteSpecific/2.0",
		}

		var out bytes.Buffer
		run, err := runCrawl(context.Background(), cfg, discardLogger(), "", site.URL(), &out)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		hits := run.Hits()
		if len(hits) != 1 || !strings.HasSuffix(hits[0].URL, "/docs/menu-card.pdf") {
			t.Errorf("expected only the menu card PDF, got %+v", hits)
		}
		for _, ua := range site.Agents() {
			if ua != "SiteSpecific/2.0" {
				t.Errorf("expected site user agent, got %q", ua)
			}
		}
	})

	t.Run("invalid seed", func(t *testing.T) {
		t.Parallel()

		cfg := newTestConfig("ftp://example.com/")
		_, err := runCrawl(context.Background(), cfg, discardLogger(), "", cfg.Target, io.Discard)
		if err == nil || !strings.Contains(err.Error(), "invalid site URL") {
			t.Errorf("expected invalid site URL error, got %v", err)
		}
	})

	t.Run("cancelled crawl still reports", func(t *testing.T) {
		t.Parallel()

		site := newTestSite(t)
		cfg := newTestConfig(site.URL())

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		var out bytes.Buffer
		run, err := runCrawl(ctx, cfg, discardLogger(), "", site.URL(), &out)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !run.TimedOut {
			t.Error("expected run to be marked timed out")
		}
		if !strings.Contains(out.String(), "Timed out") {
			t.Errorf("expected timed out status in report, got:\n%s", out.String())
		}
	})
}

func TestCrawlCommand(t *testing.T) {
	t.Parallel()

	site := newTestSite(t)
	var out, errOut bytes.Buffer

	cmd := NewRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs([]string{
		"crawl", "--no-render", "--no-history",
		"--delay", "0s", "--sitemap-delay", "0s",
		site.URL(),
	})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("unexpected error: %v\n%s", err, errOut.String())
	}
	for _, want := range []string{"Found 2 allergen PDF(s):", "  1. アレルギー情報", "  2. 成分表"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("expected output to contain %q, got:\n%s", want, out.String())
		}
	}
}

func TestCrawlCommandConflictingFormats(t *testing.T) {
	t.Parallel()

	cmd := NewRootCmd()
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)
	cmd.SetArgs([]string{"crawl", "--json", "--markdown", "https://www.example.co.jp/"})

	err := cmd.Execute()
	if !errors.Is(err, config.ErrConflictingReportFormats) {
		t.Errorf("expected ErrConflictingReportFormats, got %v", err)
	}
}

func TestRecordRun(t *testing.T) {
	t.Parallel()

	newRun := func() *model.CrawlRun {
		run := model.NewCrawlRun("https://www.example.co.jp/")
		run.Chain = "すき家"
		run.AddHits(model.PhaseSeed, model.PdfHit{URL: "https://www.example.co.jp/a.pdf"})
		run.Finish()
		return run
	}

	t.Run("saves when enabled", func(t *testing.T) {
		t.Parallel()

		cfg := newTestConfig("x")
		cfg.SaveToDB = true
		cfg.DBDir = t.TempDir()

		run := newRun()
		if err := recordRun(context.Background(), cfg, run, discardLogger()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		db, err := database.Open(cfg.DBDir, database.DefaultOptions())
		if err != nil {
			t.Fatalf("failed to open database: %v", err)
		}
		defer db.Close()

		runs, err := db.ListRuns(context.Background(), "すき家")
		if err != nil {
			t.Fatalf("failed to list runs: %v", err)
		}
		if len(runs) != 1 || runs[0].ID != run.ID {
			t.Errorf("expected the recorded run, got %+v", runs)
		}
	})

	t.Run("skips when disabled", func(t *testing.T) {
		t.Parallel()

		cfg := newTestConfig("x")
		cfg.DBDir = t.TempDir()

		if err := recordRun(context.Background(), cfg, newRun(), discardLogger()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if _, err := os.Stat(cfg.DBPath()); !os.IsNotExist(err) {
			t.Error("expected no database file")
		}
	})
}

func TestOutputReport(t *testing.T) {
	t.Parallel()

	run := model.NewCrawlRun("https://www.example.co.jp/")
	run.AddHits(model.PhaseSeed, model.PdfHit{URL: "https://www.example.co.jp/a.pdf", Text: "アレルギー"})
	run.Finish()

	t.Run("json report to nested file", func(t *testing.T) {
		t.Parallel()

		cfg := newTestConfig("x")
		cfg.JSONReport = true
		cfg.ReportFile = filepath.Join(t.TempDir(), "subdir", "report.json")

		if err := outputReport(cfg, run, io.Discard); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		content, err := os.ReadFile(cfg.ReportFile)
		if err != nil {
			t.Fatalf("failed to read file: %v", err)
		}
		var result map[string]any
		if err := json.Unmarshal(content, &result); err != nil {
			t.Fatalf("failed to parse JSON: %v", err)
		}
		if result["seed_url"] != "https://www.example.co.jp/" {
			t.Errorf("expected seed_url, got %v", result["seed_url"])
		}
	})

	t.Run("verbose text report shows sources", func(t *testing.T) {
		t.Parallel()

		cfg := newTestConfig("x")
		cfg.Verbose = true

		var buf bytes.Buffer
		if err := outputReport(cfg, run, &buf); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(buf.String(), "found on") {
			t.Errorf("expected source line, got:\n%s", buf.String())
		}
	})
}
