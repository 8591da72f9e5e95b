package model

import (
	"net/url"

	"github.com/PuerkitoBio/purell"
)

// normalizeFlags folds the URL variants a site typically links to the same
// page with: case of scheme and host, default ports, dot segments and
// fragments. Query strings are left alone.
const normalizeFlags = purell.FlagsSafe | purell.FlagRemoveDotSegments | purell.FlagRemoveFragment

// VisitedSet tracks the pages already scanned in one crawl run.
// It only grows; there is no way to remove an entry.
//
// A VisitedSet is owned by a single orchestration goroutine and is not
// safe for concurrent use.
type VisitedSet struct {
	urls map[string]struct{}
}

// NewVisitedSet returns an empty VisitedSet.
func NewVisitedSet() *VisitedSet {
	return &VisitedSet{urls: make(map[string]struct{})}
}

// NormalizeURL returns the canonical form used as the set key.
// If the URL cannot be parsed it is returned unchanged.
func NormalizeURL(rawURL string) string {
	normalized, err := purell.NormalizeURLString(rawURL, normalizeFlags)
	if err != nil {
		return rawURL
	}
	// http://example.test and http://example.test/ are the same page.
	u, err := url.Parse(normalized)
	if err != nil {
		return normalized
	}
	if u.Host != "" && u.Path == "" {
		u.Path = "/"
		return u.String()
	}
	return normalized
}

// Contains reports whether the URL has been visited.
func (v *VisitedSet) Contains(rawURL string) bool {
	_, ok := v.urls[NormalizeURL(rawURL)]
	return ok
}

// Add marks the URL as visited. It reports whether the URL was new.
func (v *VisitedSet) Add(rawURL string) bool {
	key := NormalizeURL(rawURL)
	if _, ok := v.urls[key]; ok {
		return false
	}
	v.urls[key] = struct{}{}
	return true
}

// Claim filters urls down to the ones not yet visited, marks them visited
// and returns them in their original order. Duplicates within urls are
// claimed once.
func (v *VisitedSet) Claim(urls []string) []string {
	fresh := make([]string, 0, len(urls))
	for _, u := range urls {
		if v.Add(u) {
			fresh = append(fresh, u)
		}
	}
	return fresh
}

// Len returns the number of visited URLs.
func (v *VisitedSet) Len() int {
	return len(v.urls)
}
