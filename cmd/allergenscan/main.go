// Package main provides the entry point for the AllergenScan CLI.
//
// AllergenScan finds the allergen information PDFs that restaurant chains
// publish on their official sites. It respects robots.txt, crawls the top
// page, the sitemap and the first level of subpages, and can download the
// PDFs it finds.
//
// Usage:
//
//	allergenscan find <chain-name>
//	allergenscan crawl <official-site-url>
//	allergenscan history [chain-name]
//
// See --help for all available options.
package main

func main() {
	Execute()
}
