package crawler

import (
	"net/url"
	"strings"

	"github.com/nao1215/allergenscan/internal/model"
)

// pdfExtension is matched case-insensitively against the URL path.
const pdfExtension = ".pdf"

// DefaultKeywords are the allergen terms a PDF link must mention in its URL
// or its text. They are matched as case-insensitive substrings, so
// "ingredient" also covers "ingredients".
var DefaultKeywords = []string{
	"allergy",
	"allergen",
	"ingredient",
	"pictogram",
	"特定原材料",
	"原材料",
	"成分",
	"含む",
}

// Classifier decides which link candidates are allergen PDFs.
// It has no state besides its keyword list and is safe for concurrent use.
type Classifier struct {
	keywords []string
}

// ClassifierOption configures a Classifier.
type ClassifierOption func(*Classifier)

// WithKeywords replaces the keyword list. Empty entries are ignored; an
// empty list keeps the defaults.
func WithKeywords(keywords []string) ClassifierOption {
	return func(c *Classifier) {
		kw := make([]string, 0, len(keywords))
		for _, k := range keywords {
			if k = strings.ToLower(strings.TrimSpace(k)); k != "" {
				kw = append(kw, k)
			}
		}
		if len(kw) > 0 {
			c.keywords = kw
		}
	}
}

// NewClassifier creates a Classifier with DefaultKeywords.
func NewClassifier(opts ...ClassifierOption) *Classifier {
	c := &Classifier{keywords: DefaultKeywords}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Keywords returns the active keyword list.
func (c *Classifier) Keywords() []string {
	return c.keywords
}

// Classify returns a hit for every qualifying candidate, in input order.
// The hits carry no Source; the scanner fills it in.
func (c *Classifier) Classify(candidates []model.LinkCandidate) []model.PdfHit {
	hits := make([]model.PdfHit, 0)
	for _, cand := range candidates {
		if c.Matches(cand) {
			hits = append(hits, model.PdfHit{URL: cand.URL, Text: cand.Text})
		}
	}
	return hits
}

// Matches reports whether a single candidate qualifies: its URL must be an
// absolute PDF URL and a keyword must appear in the URL or the text.
func (c *Classifier) Matches(cand model.LinkCandidate) bool {
	if !IsPDFURL(cand.URL) {
		return false
	}
	return c.containsKeyword(cand.URL) || c.containsKeyword(cand.Text)
}

func (c *Classifier) containsKeyword(s string) bool {
	if s == "" {
		return false
	}
	s = strings.ToLower(s)
	for _, k := range c.keywords {
		if strings.Contains(s, k) {
			return true
		}
	}
	return false
}

// IsPDFURL reports whether rawURL is an absolute http(s) URL whose path
// ends in .pdf. Malformed and relative URLs are rejected.
func IsPDFURL(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	if !isWebURL(u) {
		return false
	}
	return strings.HasSuffix(strings.ToLower(u.Path), pdfExtension)
}

// isWebURL reports whether u is absolute with an http or https scheme.
func isWebURL(u *url.URL) bool {
	if u.Host == "" {
		return false
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
		return true
	default:
		return false
	}
}
