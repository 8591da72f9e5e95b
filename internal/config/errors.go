package config

import "errors"

// Configuration validation errors returned by Config.Validate.
var (
	// ErrNoTarget is returned when no chain name or URL is given.
	ErrNoTarget = errors.New("no target specified: provide a chain name or a site URL")

	// ErrInvalidTimeout is returned when the request timeout is not positive.
	ErrInvalidTimeout = errors.New("invalid timeout: must be positive")

	// ErrInvalidRenderTimeout is returned when rendering is enabled with a
	// non-positive render timeout.
	ErrInvalidRenderTimeout = errors.New("invalid render timeout: must be positive")

	// ErrInvalidConcurrency is returned when the batch size is not positive.
	ErrInvalidConcurrency = errors.New("invalid concurrency: must be positive")

	// ErrConflictingReportFormats is returned when both --json and
	// --markdown are specified.
	ErrConflictingReportFormats = errors.New("conflicting report formats: --json and --markdown cannot be used together")

	// ErrInvalidDelay is returned when a batch or sitemap delay is negative.
	ErrInvalidDelay = errors.New("invalid delay: must be non-negative")

	// ErrInvalidMaxBodySize is returned when the max body size is negative.
	ErrInvalidMaxBodySize = errors.New("invalid max body size: must be non-negative")

	// ErrInvalidDownloadRate is returned when downloads are requested with
	// a non-positive rate.
	ErrInvalidDownloadRate = errors.New("invalid download rate: must be positive")

	// ErrInvalidPick is returned when a picked hit index is not 1-based.
	ErrInvalidPick = errors.New("invalid pick: indexes start at 1")
)
