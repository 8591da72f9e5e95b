// Package download saves allergen PDFs found by a crawl to disk.
//
// Downloads are sequential and rate limited. Each file is written
// atomically under a name derived from the chain name and a timestamp.
// ParsePDFInfo reads the title and dates a saved PDF declares about itself.
package download
