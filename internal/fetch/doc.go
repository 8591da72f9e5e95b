// Package fetch provides the HTTP client used by every network-facing
// component of the crawl engine: robots.txt, pages, sitemaps and PDF
// downloads all go through Fetcher so they share one User-Agent, one
// body-size limit and one content-decoding path.
package fetch
