package cache

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Entry is the cached knowledge about one chain.
//
// On disk an entry is either a bare URL string or an object
// {"url": ..., "pdf_links": [...]}. Entries without PDF links are written
// back as bare strings so older cache files stay readable by hand.
type Entry struct {
	URL      string
	PDFLinks []string
}

type entryObject struct {
	URL      string   `json:"url"`
	PDFLinks []string `json:"pdf_links,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (e Entry) MarshalJSON() ([]byte, error) {
	if len(e.PDFLinks) == 0 {
		return json.Marshal(e.URL)
	}
	return json.Marshal(entryObject{URL: e.URL, PDFLinks: e.PDFLinks})
}

// UnmarshalJSON implements json.Unmarshaler.
func (e *Entry) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*e = Entry{URL: s}
		return nil
	}

	var obj entryObject
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("cache entry must be a URL string or an object: %w", err)
	}
	*e = Entry{URL: obj.URL, PDFLinks: obj.PDFLinks}
	return nil
}

// NormalizeKey folds a chain name to its cache key: NFKC normalized and
// trimmed, so full-width and half-width spellings share an entry.
func NormalizeKey(chain string) string {
	return strings.TrimSpace(norm.NFKC.String(chain))
}
