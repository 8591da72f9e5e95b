package model

import (
	"errors"
	"fmt"
)

// ErrKind classifies a ScanError by the stage that produced it.
type ErrKind int

const (
	// KindPolicyFetch means robots.txt could not be fetched or parsed.
	// The crawl degrades to "allow all".
	KindPolicyFetch ErrKind = iota

	// KindPageFetch means a page could not be fetched (network error or
	// non-success status). The page contributes zero hits.
	KindPageFetch

	// KindRender means the headless browser failed. The rendered scanner
	// falls back to a static scan.
	KindRender

	// KindMalformed means a sitemap document or URL entry was unusable.
	// The entry is dropped.
	KindMalformed

	// KindOrchestration means a crawl phase failed or panicked. The run
	// keeps whatever hits it accumulated so far.
	KindOrchestration
)

// String returns a short name for the kind.
func (k ErrKind) String() string {
	switch k {
	case KindPolicyFetch:
		return "policy_fetch"
	case KindPageFetch:
		return "page_fetch"
	case KindRender:
		return "render"
	case KindMalformed:
		return "malformed"
	case KindOrchestration:
		return "orchestration"
	default:
		return "unknown"
	}
}

// ScanError is the error value returned by the stages of the crawl engine.
// Public Scan and Discover methods log it and fold it to an empty result;
// the Try variants return it so callers and tests can inspect the cause.
type ScanError struct {
	// Kind is the stage that failed.
	Kind ErrKind

	// URL is the page, sitemap or robots URL being processed.
	URL string

	// Err is the underlying cause.
	Err error
}

// NewScanError builds a ScanError for the given stage.
func NewScanError(kind ErrKind, url string, err error) *ScanError {
	return &ScanError{Kind: kind, URL: url, Err: err}
}

// Error implements the error interface.
func (e *ScanError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Kind, e.URL)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.URL, e.Err)
}

// Unwrap returns the underlying cause.
func (e *ScanError) Unwrap() error {
	return e.Err
}

// IsKind reports whether err is a ScanError of the given kind.
func IsKind(err error, kind ErrKind) bool {
	var se *ScanError
	if errors.As(err, &se) {
		return se.Kind == kind
	}
	return false
}
