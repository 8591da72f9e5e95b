package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
)

// Default configuration values.
const (
	// AppName is the application name used for XDG directory paths.
	AppName = "allergenscan"

	// DefaultTimeout bounds each HTTP request made while crawling.
	DefaultTimeout = 30 * time.Second

	// DefaultRenderTimeout bounds one headless browser render, including
	// the wait for network idle.
	DefaultRenderTimeout = 30 * time.Second

	// DefaultConcurrency is the subpage batch size. Restaurant sites are
	// often small shared-hosting servers, so this stays low.
	DefaultConcurrency = 2

	// DefaultBatchDelay is the pause between subpage batches.
	DefaultBatchDelay = 1 * time.Second

	// DefaultSitemapDelay is the pause between sequential sitemap scans.
	DefaultSitemapDelay = 1 * time.Second

	// DefaultMaxBodySize limits how much of a response body is read.
	DefaultMaxBodySize = 10 * 1024 * 1024 // 10MB

	// DefaultUserAgent identifies the crawler in HTTP requests and is the
	// agent matched against robots.txt groups.
	DefaultUserAgent = "AllergenScan/1.0 (+https://github.com/nao1215/allergenscan)"

	// DefaultDownloadRate is the number of PDF downloads per second.
	DefaultDownloadRate = 1.0

	// DBFileName is the run history database file name.
	DBFileName = "allergenscan.db"

	// CacheFileName is the chain to official site cache file name.
	CacheFileName = "official_sites.json"
)

// Environment variables holding the search API credentials.
const (
	EnvSearchAPIKey   = "ALLERGENSCAN_SEARCH_API_KEY"
	EnvSearchEngineID = "ALLERGENSCAN_SEARCH_ENGINE_ID" //nolint:gosec // variable name, not a credential
)

// Config holds all options for one CLI invocation. It is populated from
// flags, the environment and the optional config file, then passed down
// explicitly.
type Config struct {
	// Target is the chain name (find) or the official site URL (crawl).
	Target string

	// Timeout is the per-request HTTP timeout.
	Timeout time.Duration

	// RenderTimeout bounds one headless render.
	RenderTimeout time.Duration

	// Render enables the headless browser for suspicious sitemap URLs.
	Render bool

	// Concurrency is the subpage batch size.
	Concurrency int

	// BatchDelay is the pause between subpage batches.
	BatchDelay time.Duration

	// SitemapDelay is the pause between sitemap scans.
	SitemapDelay time.Duration

	// MaxBodySize is the maximum response body size in bytes.
	// Zero means DefaultMaxBodySize.
	MaxBodySize int64

	// UserAgent is sent with every request and matched against robots.txt.
	UserAgent string

	// Verbose enables debug logging.
	Verbose bool

	// LogJSON switches logging to JSON lines.
	LogJSON bool

	// ConfigFilePath is an explicit path to the config file. When empty,
	// .allergenscan is searched in the current and home directories.
	ConfigFilePath string

	// SiteConfigs holds the loaded config file, if any.
	SiteConfigs *File

	// JSONReport and MarkdownReport select the report format. They are
	// mutually exclusive; neither means the plain text report.
	JSONReport     bool
	MarkdownReport bool

	// ReportFile writes the report to a file instead of stdout.
	ReportFile string

	// DBDir is the directory of the run history database.
	DBDir string

	// SaveToDB records the run in the history database.
	SaveToDB bool

	// CacheFile is the chain to official site cache.
	CacheFile string

	// Download saves the found PDFs after the crawl.
	Download bool

	// Pick selects which hits to download by 1-based index. Empty means all.
	Pick []int

	// DownloadDir is where PDFs are saved.
	DownloadDir string

	// DownloadRate is the number of downloads per second.
	DownloadRate float64

	// SearchAPIKey and SearchEngineID are the search API credentials.
	SearchAPIKey   string
	SearchEngineID string
}

// NewConfig creates a Config with default values.
func NewConfig() *Config {
	return &Config{
		Timeout:       DefaultTimeout,
		RenderTimeout: DefaultRenderTimeout,
		Render:        true,
		Concurrency:   DefaultConcurrency,
		BatchDelay:    DefaultBatchDelay,
		SitemapDelay:  DefaultSitemapDelay,
		MaxBodySize:   DefaultMaxBodySize,
		UserAgent:     DefaultUserAgent,
		DBDir:         XDGDataDir(),
		SaveToDB:      true,
		CacheFile:     filepath.Join(XDGCacheDir(), CacheFileName),
		DownloadDir:   filepath.Join(XDGDataDir(), "pdf"),
		DownloadRate:  DefaultDownloadRate,
	}
}

// LoadEnv reads the search credentials from the environment. Values
// already set are kept.
func (c *Config) LoadEnv() {
	if c.SearchAPIKey == "" {
		c.SearchAPIKey = os.Getenv(EnvSearchAPIKey)
	}
	if c.SearchEngineID == "" {
		c.SearchEngineID = os.Getenv(EnvSearchEngineID)
	}
}

// DBPath returns the run history database path.
func (c *Config) DBPath() string {
	return filepath.Join(c.DBDir, DBFileName)
}

// XDGDataDir returns the XDG data directory for AllergenScan.
// On Linux: ~/.local/share/allergenscan
func XDGDataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// XDGConfigDir returns the XDG config directory for AllergenScan.
// On Linux: ~/.config/allergenscan
func XDGConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// XDGCacheDir returns the XDG cache directory for AllergenScan.
// On Linux: ~/.cache/allergenscan
func XDGCacheDir() string {
	return filepath.Join(xdg.CacheHome, AppName)
}

// Validate checks the configuration and returns the first problem found.
func (c *Config) Validate() error {
	if c.Target == "" {
		return ErrNoTarget
	}
	if c.Timeout <= 0 {
		return ErrInvalidTimeout
	}
	if c.Render && c.RenderTimeout <= 0 {
		return ErrInvalidRenderTimeout
	}
	if c.Concurrency <= 0 {
		return ErrInvalidConcurrency
	}
	if c.JSONReport && c.MarkdownReport {
		return ErrConflictingReportFormats
	}
	if c.BatchDelay < 0 || c.SitemapDelay < 0 {
		return ErrInvalidDelay
	}
	if c.MaxBodySize < 0 {
		return ErrInvalidMaxBodySize
	}
	if c.Download && c.DownloadRate <= 0 {
		return ErrInvalidDownloadRate
	}
	for _, p := range c.Pick {
		if p <= 0 {
			return ErrInvalidPick
		}
	}
	return nil
}
