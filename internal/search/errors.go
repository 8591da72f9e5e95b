package search

import "errors"

var (
	// ErrMissingCredentials is returned when the API key or engine ID is empty.
	ErrMissingCredentials = errors.New("search API key and engine ID are required")

	// ErrNoResults is returned when a query matches nothing.
	ErrNoResults = errors.New("no search results")

	// ErrEmptyQuery is returned for a blank query or chain name.
	ErrEmptyQuery = errors.New("empty search query")
)
