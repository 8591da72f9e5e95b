// Package pipeline runs a crawl as an ordered sequence of steps.
//
// The Orchestrator builds a Pipeline of four steps over one Run:
//
//  1. init: load the robots policy of the seed origin
//  2. seed_scan: scan the seed page
//  3. sitemap: scan sitemap URLs one at a time, rendering the
//     allergen-suspicious ones in a headless browser
//  4. subpage: scan the seed's same-site links through a BatchScheduler
//
// Every URL is claimed in the run's VisitedSet before it is scheduled, so
// no page is scanned twice. The BatchScheduler is the only concurrent
// stage: it scans small fixed-size batches with staggered starts and a
// pause between batches.
//
// A failing or panicking step stops the run; the hits gathered so far are
// kept and returned with the error.
package pipeline
