// Package robots gates crawl requests on a site's robots.txt.
//
// A Gate fetches and parses robots.txt once per origin and stores the
// result in a Cache that the caller owns. Any failure to obtain a policy
// degrades to "allow all": a nil *Policy allows every URL.
//
//	cache := robots.NewCache()
//	gate := robots.NewGate(fetcher, cache, robots.WithUserAgent(ua))
//	policy := gate.Get(ctx, "https://example.test")
//	if gate.IsAllowed(policy, "https://example.test/menu/") { ... }
package robots
