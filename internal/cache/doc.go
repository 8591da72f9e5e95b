// Package cache remembers which official site belongs to which chain, and
// which allergen PDFs were found there, so repeated lookups skip the web
// search.
package cache
