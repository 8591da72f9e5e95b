package fetch

import "errors"

var (
	// ErrUnexpectedStatus is returned for any non-2xx response.
	// The status code is included in the wrapping message.
	ErrUnexpectedStatus = errors.New("unexpected HTTP status")

	// ErrBodyTooLarge is returned when a response exceeds the body limit.
	ErrBodyTooLarge = errors.New("response body exceeds limit")
)
