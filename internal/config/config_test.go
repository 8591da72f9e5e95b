package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// TestNewConfig pins the defaults so changes to them are intentional.
func TestNewConfig(t *testing.T) {
	t.Parallel()

	cfg := NewConfig()

	t.Run("default Timeout is 30 seconds", func(t *testing.T) {
		t.Parallel()
		if cfg.Timeout != 30*time.Second {
			t.Errorf("expected Timeout 30s, got %v", cfg.Timeout)
		}
	})

	t.Run("default RenderTimeout is 30 seconds", func(t *testing.T) {
		t.Parallel()
		if cfg.RenderTimeout != 30*time.Second {
			t.Errorf("expected RenderTimeout 30s, got %v", cfg.RenderTimeout)
		}
	})

	t.Run("default Concurrency is 2", func(t *testing.T) {
		t.Parallel()
		if cfg.Concurrency != 2 {
			t.Errorf("expected Concurrency 2, got %d", cfg.Concurrency)
		}
	})

	t.Run("default delays are 1 second", func(t *testing.T) {
		t.Parallel()
		if cfg.BatchDelay != time.Second {
			t.Errorf("expected BatchDelay 1s, got %v", cfg.BatchDelay)
		}
		if cfg.SitemapDelay != time.Second {
			t.Errorf("expected SitemapDelay 1s, got %v", cfg.SitemapDelay)
		}
	})

	t.Run("rendering and history are on", func(t *testing.T) {
		t.Parallel()
		if !cfg.Render {
			t.Error("expected Render to be true")
		}
		if !cfg.SaveToDB {
			t.Error("expected SaveToDB to be true")
		}
	})

	t.Run("default UserAgent names the crawler", func(t *testing.T) {
		t.Parallel()
		if !strings.HasPrefix(cfg.UserAgent, "AllergenScan/") {
			t.Errorf("expected AllergenScan user agent, got %q", cfg.UserAgent)
		}
	})

	t.Run("paths live under the XDG directories", func(t *testing.T) {
		t.Parallel()
		if cfg.DBPath() != filepath.Join(XDGDataDir(), DBFileName) {
			t.Errorf("unexpected DB path %q", cfg.DBPath())
		}
		if cfg.CacheFile != filepath.Join(XDGCacheDir(), CacheFileName) {
			t.Errorf("unexpected cache file %q", cfg.CacheFile)
		}
	})
}

func TestConfigValidate(t *testing.T) {
	t.Parallel()

	validConfig := func() *Config {
		cfg := NewConfig()
		cfg.Target = "サイゼリヤ"
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr error
	}{
		{name: "valid config returns nil", mutate: func(*Config) {}},
		{name: "empty target", mutate: func(c *Config) { c.Target = "" }, wantErr: ErrNoTarget},
		{name: "zero timeout", mutate: func(c *Config) { c.Timeout = 0 }, wantErr: ErrInvalidTimeout},
		{name: "negative timeout", mutate: func(c *Config) { c.Timeout = -time.Second }, wantErr: ErrInvalidTimeout},
		{name: "zero render timeout", mutate: func(c *Config) { c.RenderTimeout = 0 }, wantErr: ErrInvalidRenderTimeout},
		{
			name:   "zero render timeout is fine when rendering is off",
			mutate: func(c *Config) { c.RenderTimeout = 0; c.Render = false },
		},
		{name: "zero concurrency", mutate: func(c *Config) { c.Concurrency = 0 }, wantErr: ErrInvalidConcurrency},
		{
			name:    "json and markdown both enabled",
			mutate:  func(c *Config) { c.JSONReport = true; c.MarkdownReport = true },
			wantErr: ErrConflictingReportFormats,
		},
		{name: "json only", mutate: func(c *Config) { c.JSONReport = true }},
		{name: "negative batch delay", mutate: func(c *Config) { c.BatchDelay = -1 }, wantErr: ErrInvalidDelay},
		{name: "negative sitemap delay", mutate: func(c *Config) { c.SitemapDelay = -1 }, wantErr: ErrInvalidDelay},
		{name: "zero delays are valid", mutate: func(c *Config) { c.BatchDelay = 0; c.SitemapDelay = 0 }},
		{name: "negative max body size", mutate: func(c *Config) { c.MaxBodySize = -1 }, wantErr: ErrInvalidMaxBodySize},
		{
			name:    "download with zero rate",
			mutate:  func(c *Config) { c.Download = true; c.DownloadRate = 0 },
			wantErr: ErrInvalidDownloadRate,
		},
		{name: "pick index zero", mutate: func(c *Config) { c.Pick = []int{1, 0} }, wantErr: ErrInvalidPick},
		{name: "pick indexes", mutate: func(c *Config) { c.Pick = []int{1, 3} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("expected nil, got %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestConfigLoadEnv(t *testing.T) {
	t.Setenv(EnvSearchAPIKey, "env-key")
	t.Setenv(EnvSearchEngineID, "env-cx")

	t.Run("reads credentials from the environment", func(t *testing.T) {
		cfg := NewConfig()
		cfg.LoadEnv()

		if cfg.SearchAPIKey != "env-key" {
			t.Errorf("expected env-key, got %q", cfg.SearchAPIKey)
		}
		if cfg.SearchEngineID != "env-cx" {
			t.Errorf("expected env-cx, got %q", cfg.SearchEngineID)
		}
	})

	t.Run("keeps values already set", func(t *testing.T) {
		cfg := NewConfig()
		cfg.SearchAPIKey = "flag-key"
		cfg.LoadEnv()

		if cfg.SearchAPIKey != "flag-key" {
			t.Errorf("expected flag-key, got %q", cfg.SearchAPIKey)
		}
	})
}

func TestFileGetSiteConfig(t *testing.T) {
	t.Parallel()

	off := false

	t.Run("returns defaults when site not found", func(t *testing.T) {
		t.Parallel()

		cf := &File{
			Defaults: SiteConfig{Keywords: []string{"allergy"}, UserAgent: "default-agent"},
			Sites:    map[string]SiteConfig{},
		}

		result := cf.GetSiteConfig("www.example.com")
		if result.UserAgent != "default-agent" {
			t.Errorf("expected default-agent, got %q", result.UserAgent)
		}
		if len(result.Keywords) != 1 || result.Keywords[0] != "allergy" {
			t.Errorf("expected default keywords, got %v", result.Keywords)
		}
	})

	t.Run("site values override defaults", func(t *testing.T) {
		t.Parallel()

		cf := &File{
			Defaults: SiteConfig{
				Keywords:         []string{"allergy"},
				SuspiciousTokens: []string{"allergen"},
				UserAgent:        "default-agent",
			},
			Sites: map[string]SiteConfig{
				"www.example.com": {
					Keywords:         []string{"アレルギー"},
					SuspiciousTokens: []string{"menu"},
					UserAgent:        "site-agent",
					Render:           &off,
				},
			},
		}

		result := cf.GetSiteConfig("WWW.Example.com")
		if result.UserAgent != "site-agent" {
			t.Errorf("expected site-agent, got %q", result.UserAgent)
		}
		if result.Keywords[0] != "アレルギー" {
			t.Errorf("expected site keywords, got %v", result.Keywords)
		}
		if result.SuspiciousTokens[0] != "menu" {
			t.Errorf("expected site tokens, got %v", result.SuspiciousTokens)
		}
		if result.Render == nil || *result.Render {
			t.Error("expected rendering disabled for the site")
		}
	})

	t.Run("matches mixed-case site keys", func(t *testing.T) {
		t.Parallel()

		cf := &File{Sites: map[string]SiteConfig{"WWW.Example.jp": {UserAgent: "mixed"}}}

		for _, host := range []string{"www.example.jp", "WWW.EXAMPLE.JP"} {
			if got := cf.GetSiteConfig(host).UserAgent; got != "mixed" {
				t.Errorf("GetSiteConfig(%q): expected mixed, got %q", host, got)
			}
		}
		if got := cf.SiteConfigFor("https://www.example.jp/menu/").UserAgent; got != "mixed" {
			t.Errorf("expected mixed for URL lookup, got %q", got)
		}
	})
	t.Run("merges headers without touching defaults", func(t *testing.T) {
		t.Parallel()

		cf := &File{
			Defaults: SiteConfig{Headers: map[string]string{"Accept-Language": "ja", "X-Default": "1"}},
			Sites: map[string]SiteConfig{
				"www.example.com": {Headers: map[string]string{"Accept-Language": "en"}},
			},
		}

		result := cf.GetSiteConfig("www.example.com")
		if result.Headers["Accept-Language"] != "en" {
			t.Errorf("expected site header to win, got %q", result.Headers["Accept-Language"])
		}
		if result.Headers["X-Default"] != "1" {
			t.Errorf("expected default header kept, got %v", result.Headers)
		}
		if cf.Defaults.Headers["Accept-Language"] != "ja" {
			t.Error("defaults were modified by the merge")
		}
	})

	t.Run("nil sites map", func(t *testing.T) {
		t.Parallel()

		cf := &File{Defaults: SiteConfig{UserAgent: "agent"}}
		if got := cf.GetSiteConfig("www.example.com").UserAgent; got != "agent" {
			t.Errorf("expected agent, got %q", got)
		}
	})
}

func TestFileSiteConfigFor(t *testing.T) {
	t.Parallel()

	t.Run("nil file yields empty config", func(t *testing.T) {
		t.Parallel()

		var cf *File
		if got := cf.SiteConfigFor("https://www.example.com/"); got.UserAgent != "" || got.Keywords != nil {
			t.Errorf("expected empty config, got %+v", got)
		}
	})

	t.Run("matches on the URL host", func(t *testing.T) {
		t.Parallel()

		cf := &File{Sites: map[string]SiteConfig{"shop.example.jp": {UserAgent: "shop"}}}
		if got := cf.SiteConfigFor("https://shop.example.jp:8443/menu?x=1"); got.UserAgent != "shop" {
			t.Errorf("expected shop, got %q", got.UserAgent)
		}
	})
}

func TestLoadConfigFile(t *testing.T) {
	t.Parallel()

	t.Run("returns ErrConfigNotFound for non-existent file", func(t *testing.T) {
		t.Parallel()

		cfg, err := LoadConfigFile("/nonexistent/path/.allergenscan")
		if !errors.Is(err, ErrConfigNotFound) {
			t.Fatalf("expected ErrConfigNotFound, got %v", err)
		}
		if cfg != nil {
			t.Error("expected nil config when file not found")
		}
	})

	t.Run("loads valid YAML config", func(t *testing.T) {
		t.Parallel()

		configPath := filepath.Join(t.TempDir(), DefaultConfigFile)
		content := `defaults:
  keywords:
    - allergy
    - アレルゲン
  userAgent: "custom-agent"
sites:
  WWW.Example.co.jp:
    suspiciousTokens:
      - allergen
      - menu
    headers:
      Accept-Language: "ja"
    render: false
`
		if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
			t.Fatalf("failed to write test config: %v", err)
		}

		cfg, err := LoadConfigFile(configPath)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(cfg.Defaults.Keywords) != 2 || cfg.Defaults.Keywords[1] != "アレルゲン" {
			t.Errorf("expected 2 default keywords, got %v", cfg.Defaults.Keywords)
		}
		if cfg.Defaults.UserAgent != "custom-agent" {
			t.Errorf("expected custom-agent, got %q", cfg.Defaults.UserAgent)
		}

		site, ok := cfg.Sites["www.example.co.jp"]
		if !ok {
			t.Fatalf("expected lower-cased host key, got %v", cfg.Sites)
		}
		if len(site.SuspiciousTokens) != 2 {
			t.Errorf("expected 2 suspicious tokens, got %d", len(site.SuspiciousTokens))
		}
		if site.Headers["Accept-Language"] != "ja" {
			t.Errorf("expected Accept-Language header, got %v", site.Headers)
		}
		if site.Render == nil || *site.Render {
			t.Error("expected render: false")
		}
		if got := cfg.GetSiteConfig("www.example.co.jp").SuspiciousTokens; len(got) != 2 {
			t.Errorf("expected site tokens for the lower-case host, got %v", got)
		}
	})

	t.Run("returns error for invalid YAML", func(t *testing.T) {
		t.Parallel()

		configPath := filepath.Join(t.TempDir(), DefaultConfigFile)
		if err := os.WriteFile(configPath, []byte(`invalid: yaml: content: [}`), 0600); err != nil {
			t.Fatalf("failed to write test config: %v", err)
		}

		if _, err := LoadConfigFile(configPath); err == nil {
			t.Error("expected error for invalid YAML")
		}
	})

	t.Run("initializes nil Sites map", func(t *testing.T) {
		t.Parallel()

		configPath := filepath.Join(t.TempDir(), DefaultConfigFile)
		if err := os.WriteFile(configPath, []byte("defaults:\n  userAgent: x\n"), 0600); err != nil {
			t.Fatalf("failed to write test config: %v", err)
		}

		cfg, err := LoadConfigFile(configPath)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cfg.Sites == nil {
			t.Error("expected Sites map to be initialized")
		}
	})
}

func TestFindConfigFile(t *testing.T) {
	t.Parallel()

	t.Run("returns explicit path if exists", func(t *testing.T) {
		t.Parallel()

		configPath := filepath.Join(t.TempDir(), "custom.yaml")
		if err := os.WriteFile(configPath, []byte("defaults: {}"), 0600); err != nil {
			t.Fatalf("failed to write test config: %v", err)
		}

		if result := FindConfigFile(configPath); result != configPath {
			t.Errorf("expected %q, got %q", configPath, result)
		}
	})

	t.Run("returns empty for non-existent explicit path", func(t *testing.T) {
		t.Parallel()

		if result := FindConfigFile("/nonexistent/path/config.yaml"); result != "" {
			t.Errorf("expected empty string, got %q", result)
		}
	})
}

func TestXDGDirs(t *testing.T) {
	t.Parallel()

	for name, dir := range map[string]string{
		"data":   XDGDataDir(),
		"config": XDGConfigDir(),
		"cache":  XDGCacheDir(),
	} {
		if filepath.Base(dir) != AppName {
			t.Errorf("%s dir: expected to end in %q, got %q", name, AppName, dir)
		}
	}
}
