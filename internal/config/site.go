package config

import (
	"maps"
	"net/url"
	"strings"
)

// SiteConfig customizes the crawl of one restaurant site.
type SiteConfig struct {
	// Keywords replaces the allergen keyword list used to classify links.
	Keywords []string `yaml:"keywords,omitempty"`

	// SuspiciousTokens replaces the URL tokens that trigger a rendered
	// scan of a sitemap URL.
	SuspiciousTokens []string `yaml:"suspiciousTokens,omitempty"`

	// UserAgent overrides the global User-Agent for this site.
	UserAgent string `yaml:"userAgent,omitempty"`

	// Headers are extra HTTP headers sent to this site.
	Headers map[string]string `yaml:"headers,omitempty"`

	// Render turns the headless browser on or off for this site.
	// Nil keeps the global setting.
	Render *bool `yaml:"render,omitempty"`
}

// File represents the structure of the .allergenscan configuration file.
type File struct {
	// Sites maps a host name (e.g. "www.example.co.jp") to its settings.
	Sites map[string]SiteConfig `yaml:"sites,omitempty"`

	// Defaults applies to every site unless overridden in Sites.
	Defaults SiteConfig `yaml:"defaults,omitempty"`
}

// GetSiteConfig returns the merged configuration for host.
// Host matching is case-insensitive on both the host and the Sites keys.
func (cf *File) GetSiteConfig(host string) SiteConfig {
	result := cf.Defaults
	if len(cf.Defaults.Headers) > 0 {
		result.Headers = maps.Clone(cf.Defaults.Headers)
	}

	siteConfig, ok := cf.lookupSite(host)
	if !ok {
		return result
	}

	if len(siteConfig.Keywords) > 0 {
		result.Keywords = siteConfig.Keywords
	}
	if len(siteConfig.SuspiciousTokens) > 0 {
		result.SuspiciousTokens = siteConfig.SuspiciousTokens
	}
	if siteConfig.UserAgent != "" {
		result.UserAgent = siteConfig.UserAgent
	}
	if len(siteConfig.Headers) > 0 {
		if result.Headers == nil {
			result.Headers = make(map[string]string)
		}
		maps.Copy(result.Headers, siteConfig.Headers)
	}
	if siteConfig.Render != nil {
		result.Render = siteConfig.Render
	}
	return result
}

// lookupSite finds the entry for host. LoadConfigFile lower-cases the keys,
// but a File may also be built in code, so other spellings are matched too.
func (cf *File) lookupSite(host string) (SiteConfig, bool) {
	host = strings.ToLower(strings.TrimSpace(host))
	if sc, ok := cf.Sites[host]; ok {
		return sc, true
	}
	for key, sc := range cf.Sites {
		if strings.EqualFold(strings.TrimSpace(key), host) {
			return sc, true
		}
	}
	return SiteConfig{}, false
}

// SiteConfigFor returns the merged configuration for the host of rawURL.
// A nil File or an unparsable URL yields an empty SiteConfig.
func (cf *File) SiteConfigFor(rawURL string) SiteConfig {
	if cf == nil {
		return SiteConfig{}
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return cf.Defaults
	}
	return cf.GetSiteConfig(u.Hostname())
}
