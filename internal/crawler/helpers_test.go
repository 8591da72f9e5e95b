package crawler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/nao1215/allergenscan/internal/fetch"
	"github.com/nao1215/allergenscan/internal/robots"
)

// testSite serves fixed bodies by path and records every requested path.
type testSite struct {
	server *httptest.Server
	mu     sync.Mutex
	pages  map[string]string
	hits   map[string]int
}

func newTestSite(t *testing.T, pages map[string]string) *testSite {
	t.Helper()

	s := &testSite{pages: pages, hits: make(map[string]int)}
	s.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.hits[r.URL.Path]++
		body, ok := s.pages[r.URL.Path]
		s.mu.Unlock()

		if !ok {
			http.NotFound(w, r)
			return
		}
		switch {
		case strings.HasSuffix(r.URL.Path, ".xml"):
			w.Header().Set("Content-Type", "application/xml")
		case strings.HasSuffix(r.URL.Path, ".txt"):
			w.Header().Set("Content-Type", "text/plain")
		default:
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
		}
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(s.server.Close)
	return s
}

// URL returns the absolute URL of path on the site.
func (s *testSite) URL(path string) string {
	return s.server.URL + path
}

// Hits returns how many times path was requested.
func (s *testSite) Hits(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[path]
}

// newFetcherOnly returns a fetcher for components without a robots gate.
func newFetcherOnly() *fetch.Fetcher {
	return fetch.New(fetch.WithUserAgent("AllergenScan/1.0"))
}

// newGate returns a fetcher and a gate with a fresh cache.
func newGate() (*fetch.Fetcher, *robots.Gate) {
	f := fetch.New(fetch.WithUserAgent("AllergenScan/1.0"))
	return f, robots.NewGate(f, robots.NewCache())
}

// policyFor loads the robots policy of the site.
func policyFor(t *testing.T, gate *robots.Gate, site *testSite) *robots.Policy {
	t.Helper()
	return gate.Get(context.Background(), site.URL("/"))
}
