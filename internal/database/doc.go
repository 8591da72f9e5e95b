// Package database stores the history of crawl runs in SQLite
// (modernc.org/sqlite, no cgo).
//
// Each run is a row in crawl_runs keyed by a UUID; the PDFs it found are
// rows in pdf_hits, ordered by their position in the run's result. The
// history lets the CLI show what was found for a chain before and compare
// against a new crawl.
package database
