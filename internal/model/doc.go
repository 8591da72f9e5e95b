// Package model defines the core data structures shared by the crawl engine.
//
// This package contains the following main types:
//   - LinkCandidate: an extracted link with its visible text
//   - PdfHit: a link classified as an allergen PDF
//   - VisitedSet: the set of pages already scanned in one run
//   - CrawlRun: the state accumulated by one orchestration
//   - ScanError: the per-stage error value used inside the engine
//
// Keeping these types in their own package lets crawler, pipeline, report
// and database share them without import cycles.
package model
