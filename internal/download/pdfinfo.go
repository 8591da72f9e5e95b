package download

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
)

// PDFInfo is the document information a PDF carries about itself.
// Allergen tables are republished often, so the dates tell which edition
// was saved.
type PDFInfo struct {
	Version      string    `json:"version,omitempty"`
	Pages        int       `json:"pages,omitempty"`
	Title        string    `json:"title,omitempty"`
	Author       string    `json:"author,omitempty"`
	Creator      string    `json:"creator,omitempty"`
	Producer     string    `json:"producer,omitempty"`
	CreationDate time.Time `json:"creation_date,omitzero"`
	ModDate      time.Time `json:"mod_date,omitzero"`
}

// Updated returns the modification date, or the creation date when the
// document was never modified.
func (i *PDFInfo) Updated() time.Time {
	if !i.ModDate.IsZero() {
		return i.ModDate
	}
	return i.CreationDate
}

var (
	headerPattern = regexp.MustCompile(`^%PDF-(\d\.\d)`)

	// infoPatterns match an Info dictionary entry written as a literal
	// string (...) or a hex string <...>. Literal strings may contain
	// escaped parentheses.
	infoPatterns = map[string]*regexp.Regexp{
		"Title":        infoPattern("Title"),
		"Author":       infoPattern("Author"),
		"Creator":      infoPattern("Creator"),
		"Producer":     infoPattern("Producer"),
		"CreationDate": infoPattern("CreationDate"),
		"ModDate":      infoPattern("ModDate"),
	}

	xmpTitlePattern   = regexp.MustCompile(`(?s)<dc:title>.*?<rdf:li[^>]*>([^<]+)</rdf:li>`)
	xmpModifyPattern  = regexp.MustCompile(`<xmp:ModifyDate>([^<]+)<`)
	xmpCreatePattern  = regexp.MustCompile(`<xmp:CreateDate>([^<]+)<`)
	xmpProducePattern = regexp.MustCompile(`<pdf:Producer>([^<]+)<`)
)

func infoPattern(key string) *regexp.Regexp {
	return regexp.MustCompile(`/` + key + `\s*(?:\(((?:\\.|[^\\)])*)\)|<([0-9A-Fa-f\s]*)>)`)
}

// ParsePDFInfo reads the header version and the Info dictionary of an
// uncompressed trailer, falling back to XMP metadata for fields the
// dictionary lacks. Fields it cannot find are left empty.
func ParsePDFInfo(data []byte) *PDFInfo {
	info := &PDFInfo{}
	if m := headerPattern.FindSubmatch(data); m != nil {
		info.Version = string(m[1])
	}

	fields := make(map[string]string, len(infoPatterns))
	for key, pattern := range infoPatterns {
		// The last entry wins: incremental updates append newer
		// dictionaries to the end of the file.
		matches := pattern.FindAllSubmatch(data, -1)
		if len(matches) == 0 {
			continue
		}
		m := matches[len(matches)-1]
		switch {
		case m[1] != nil:
			fields[key] = decodeText(unescapeLiteral(m[1]))
		case m[2] != nil:
			fields[key] = decodeText(decodeHex(m[2]))
		}
	}

	info.Title = fields["Title"]
	info.Author = fields["Author"]
	info.Creator = fields["Creator"]
	info.Producer = fields["Producer"]
	info.CreationDate = parsePDFDate(fields["CreationDate"])
	info.ModDate = parsePDFDate(fields["ModDate"])

	if info.Title == "" {
		info.Title = xmpField(xmpTitlePattern, data)
	}
	if info.Producer == "" {
		info.Producer = xmpField(xmpProducePattern, data)
	}
	if info.ModDate.IsZero() {
		info.ModDate = parseXMPDate(xmpField(xmpModifyPattern, data))
	}
	if info.CreationDate.IsZero() {
		info.CreationDate = parseXMPDate(xmpField(xmpCreatePattern, data))
	}
	return info
}

func xmpField(pattern *regexp.Regexp, data []byte) string {
	if m := pattern.FindSubmatch(data); m != nil {
		return strings.TrimSpace(string(m[1]))
	}
	return ""
}

// unescapeLiteral resolves the backslash escapes of a PDF literal string.
func unescapeLiteral(s []byte) []byte {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '\\' || i+1 == len(s) {
			out = append(out, c)
			continue
		}
		i++
		switch s[i] {
		case 'n':
			out = append(out, '\n')
		case 'r':
			out = append(out, '\r')
		case 't':
			out = append(out, '\t')
		case 'b':
			out = append(out, '\b')
		case 'f':
			out = append(out, '\f')
		case '\r', '\n':
			// Line continuation.
		case '0', '1', '2', '3', '4', '5', '6', '7':
			end := i + 1
			for end < len(s) && end < i+3 && s[end] >= '0' && s[end] <= '7' {
				end++
			}
			v, _ := strconv.ParseUint(string(s[i:end]), 8, 8)
			out = append(out, byte(v))
			i = end - 1
		default:
			out = append(out, s[i])
		}
	}
	return out
}

func decodeHex(s []byte) []byte {
	clean := bytes.Map(func(r rune) rune {
		if r == ' ' || r == '\n' || r == '\r' || r == '\t' {
			return -1
		}
		return r
	}, s)
	if len(clean)%2 == 1 {
		clean = append(clean, '0')
	}
	out := make([]byte, hex.DecodedLen(len(clean)))
	n, err := hex.Decode(out, clean)
	if err != nil {
		return nil
	}
	return out[:n]
}

var utf16BE = unicode.UTF16(unicode.BigEndian, unicode.ExpectBOM)

// decodeText turns a PDF text string into UTF-8. Strings starting with a
// UTF-16BE byte order mark are decoded as such; anything else that is
// not valid UTF-8 is read as Latin-1, close enough to PDFDocEncoding for
// metadata.
func decodeText(b []byte) string {
	if bytes.HasPrefix(b, []byte{0xFE, 0xFF}) {
		if s, err := utf16BE.NewDecoder().Bytes(b); err == nil {
			return strings.TrimSpace(string(s))
		}
	}
	if utf8.Valid(b) {
		return strings.TrimSpace(string(b))
	}
	s, err := charmap.ISO8859_1.NewDecoder().Bytes(b)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(s))
}

// parsePDFDate parses "D:YYYYMMDDHHmmSSOHH'mm'" with any suffix omitted.
func parsePDFDate(s string) time.Time {
	s = strings.TrimPrefix(strings.TrimSpace(s), "D:")
	if len(s) < 4 {
		return time.Time{}
	}

	digits := s
	rest := ""
	if i := strings.IndexAny(s, "Zz+-"); i >= 0 {
		digits, rest = s[:i], s[i:]
	}

	// Pad missing month, day and time fields with their minimum.
	const full = "00000101000000"
	if len(digits) > len(full) {
		return time.Time{}
	}
	digits += full[len(digits):]

	loc := time.UTC
	if len(rest) > 0 && (rest[0] == '+' || rest[0] == '-') {
		tz := strings.ReplaceAll(rest[1:], "'", "")
		if len(tz) >= 2 {
			h, errH := strconv.Atoi(tz[:2])
			m := 0
			if len(tz) >= 4 {
				m, _ = strconv.Atoi(tz[2:4])
			}
			if errH == nil {
				offset := h*3600 + m*60
				if rest[0] == '-' {
					offset = -offset
				}
				loc = time.FixedZone("", offset)
			}
		}
	}

	t, err := time.ParseInLocation("20060102150405", digits, loc)
	if err != nil {
		return time.Time{}
	}
	return t
}

func parseXMPDate(s string) time.Time {
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02T15:04Z07:00", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

// pdfcpu writes a config directory on first use unless told not to.
var disablePDFConfigDir sync.Once

// countPages returns the page count of the PDF file at path.
func countPages(path string) (pages int, err error) {
	disablePDFConfigDir.Do(api.DisableConfigDir)
	defer func() {
		if r := recover(); r != nil {
			pages, err = 0, fmt.Errorf("pdf parser panic: %v", r)
		}
	}()

	pdfCtx, err := api.ReadContextFile(path)
	if err != nil {
		return 0, err
	}
	return pdfCtx.PageCount, nil
}
