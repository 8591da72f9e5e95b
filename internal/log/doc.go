// Package log provides slog constructors whose output is sanitized.
//
// SecureHandler wraps any slog.Handler and masks:
//   - attributes with sensitive keys (cookie, authorization, token, api_key)
//   - values that look like credentials (JWTs, bearer tokens, Google API keys)
//   - credential query parameters such as "key" inside logged URLs, so the
//     search API key never reaches the logs
//
// Three constructors cover the CLI's output modes:
//
//	logger := log.NewSecureTintLogger(os.Stderr, verbose, !isTerminal)
//	logger := log.NewSecureJSONLogger(os.Stderr, verbose)
//	logger := log.NewSecureLogger(os.Stderr, verbose)
package log
