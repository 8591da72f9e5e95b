package model

import (
	"time"
)

// Phase names a stage of a crawl run. Hits are recorded per phase.
type Phase string

const (
	// PhaseInit loads the robots policy for the seed origin.
	PhaseInit Phase = "init"
	// PhaseSeed scans the seed page itself.
	PhaseSeed Phase = "seed_scan"
	// PhaseSitemap scans the URLs listed in sitemap.xml.
	PhaseSitemap Phase = "sitemap"
	// PhaseSubpage scans the same-site links found on the seed page.
	PhaseSubpage Phase = "subpage"
)

// Phases lists the phases that produce hits, in result order.
var Phases = []Phase{PhaseSeed, PhaseSitemap, PhaseSubpage}

// CrawlRun holds the state accumulated by one orchestration.
// It is created per seed URL and passed through every pipeline step.
type CrawlRun struct {
	// ID identifies the run in the history database. Empty until saved.
	ID string `json:"id,omitempty"`

	// Chain is the restaurant chain name the seed was looked up for.
	// Empty when the crawl was started from a URL.
	Chain string `json:"chain,omitempty"`

	// SeedURL is the official site URL the crawl started from.
	SeedURL string `json:"seed_url"`

	// StartedAt and FinishedAt bound the run.
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	// Visited holds every page claimed for scanning in this run.
	Visited *VisitedSet `json:"-"`

	// PerformedPhases lists the steps that ran, in order.
	PerformedPhases []string `json:"performed_phases"`

	// Err is the error that stopped the run early, if any.
	Err error `json:"-"`

	// ErrorMessage is Err rendered for reports.
	ErrorMessage string `json:"error,omitempty"`

	// TimedOut is set when the run was cancelled.
	TimedOut bool `json:"timed_out,omitempty"`

	hits map[Phase][]PdfHit
}

// NewCrawlRun creates a run for the given seed URL.
func NewCrawlRun(seedURL string) *CrawlRun {
	return &CrawlRun{
		SeedURL:         seedURL,
		StartedAt:       time.Now(),
		Visited:         NewVisitedSet(),
		PerformedPhases: make([]string, 0, len(Phases)+1),
		hits:            make(map[Phase][]PdfHit),
	}
}

// AddHits records hits found during a phase.
func (r *CrawlRun) AddHits(phase Phase, hits ...PdfHit) {
	r.hits[phase] = append(r.hits[phase], hits...)
}

// PhaseHits returns the hits recorded for a single phase.
func (r *CrawlRun) PhaseHits(phase Phase) []PdfHit {
	return r.hits[phase]
}

// Hits returns all hits: seed, then sitemap, then subpage.
func (r *CrawlRun) Hits() []PdfHit {
	all := make([]PdfHit, 0, r.HitCount())
	for _, p := range Phases {
		all = append(all, r.hits[p]...)
	}
	return all
}

// HitCount returns the total number of hits across phases.
func (r *CrawlRun) HitCount() int {
	n := 0
	for _, p := range Phases {
		n += len(r.hits[p])
	}
	return n
}

// Fail records the error that stopped the run.
func (r *CrawlRun) Fail(err error) {
	r.Err = err
	if err != nil {
		r.ErrorMessage = err.Error()
	}
}

// Finish stamps the end time.
func (r *CrawlRun) Finish() {
	r.FinishedAt = time.Now()
}

// Duration returns how long the run took, or zero if it has not finished.
func (r *CrawlRun) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// RecordedHit is a hit together with the phase that found it.
type RecordedHit struct {
	PdfHit
	Phase Phase `json:"phase"`
}

// RecordedHits returns all hits in result order, tagged with their phase.
func (r *CrawlRun) RecordedHits() []RecordedHit {
	all := make([]RecordedHit, 0, r.HitCount())
	for _, p := range Phases {
		for _, h := range r.hits[p] {
			all = append(all, RecordedHit{PdfHit: h, Phase: p})
		}
	}
	return all
}
