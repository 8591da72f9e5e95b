// Package search finds a restaurant chain's official site with a web
// search. Client talks to the Google Custom Search JSON API; anything that
// implements Provider can stand in for it.
package search
