package model

// LinkCandidate is a link extracted from a page before classification.
// Candidates are transient: they are produced by a scanner and consumed
// immediately by the classifier.
type LinkCandidate struct {
	// URL is the absolute URL after resolving the href against the page.
	URL string

	// Text is the trimmed visible text of the element.
	Text string
}

// PdfHit is a link classified as an allergen-information PDF.
// It is the unit returned up the whole pipeline and offered to the
// download step.
type PdfHit struct {
	// URL is the absolute URL of the PDF document.
	URL string `json:"url"`

	// Text is the visible link text, possibly empty.
	Text string `json:"text"`

	// Source is the page the link was found on.
	Source string `json:"source"`
}

// WithSource returns a copy of the hit attributed to the given page.
func (h PdfHit) WithSource(source string) PdfHit {
	h.Source = source
	return h
}

// DedupeHits removes hits with a URL already seen earlier in the slice.
// The first occurrence wins, so phase order is preserved.
func DedupeHits(hits []PdfHit) []PdfHit {
	seen := make(map[string]struct{}, len(hits))
	out := make([]PdfHit, 0, len(hits))
	for _, h := range hits {
		if _, ok := seen[h.URL]; ok {
			continue
		}
		seen[h.URL] = struct{}{}
		out = append(out, h)
	}
	return out
}
