package cache

import "errors"

// ErrEmptyKey is returned when a chain name normalizes to nothing.
var ErrEmptyKey = errors.New("empty cache key")
