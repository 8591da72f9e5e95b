// Package report renders crawl runs.
//
// Writers:
//   - SimpleWriter: numbered plain text list for the terminal
//   - JSONWriter: one JSON document per run
//   - MarkdownWriter: GitHub-flavored Markdown with per-phase tables
//
// Hits are numbered 1..n in result order (seed, sitemap, subpage) in every
// format, matching the indexes accepted by the CLI's --pick flag.
package report
