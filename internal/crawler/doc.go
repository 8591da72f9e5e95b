// Package crawler finds allergen-information PDFs on a restaurant site.
//
// # Components
//
//   - Classifier: keeps links whose path ends in .pdf and whose URL or
//     text contains an allergen keyword
//   - PageScanner: fetches one page and classifies its anchors
//   - RenderedPageScanner: renders the page in headless Chrome first and
//     falls back to PageScanner when rendering fails
//   - SitemapDiscoverer: lists the URLs of <site>/sitemap.xml
//   - SubpageDiscoverer: lists the seed page's links under the seed URL
//
// Every network step is gated by a robots.Policy. Failures never
// propagate to the caller: Scan and Discover log them and return an empty
// result. The TryScan and TryDiscover variants return the underlying
// *model.ScanError instead.
//
// # Usage
//
//	gate := robots.NewGate(fetcher, robots.NewCache())
//	scanner := crawler.NewPageScanner(fetcher, gate)
//	policy := gate.Get(ctx, seed)
//	hits := scanner.Scan(ctx, seed, policy)
package crawler
