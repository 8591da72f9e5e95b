package crawler

import (
	"io"
	"net/url"
	"strings"

	"golang.org/x/net/html"

	"github.com/nao1215/allergenscan/internal/model"
)

// extractAnchors walks an HTML document and returns every <a href> as a
// candidate, resolved against base. Hrefs that cannot be resolved to an
// absolute http(s) URL are dropped.
func extractAnchors(content io.Reader, base *url.URL) ([]model.LinkCandidate, error) {
	doc, err := html.Parse(content)
	if err != nil {
		return nil, err
	}

	// <base href> overrides the document URL for relative links.
	if b := findBase(doc); b != "" {
		if resolved, ok := resolveLink(base, b); ok {
			if u, err := url.Parse(resolved); err == nil {
				base = u
			}
		}
	}

	candidates := make([]model.LinkCandidate, 0)
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "a" {
			if resolved, ok := resolveLink(base, getAttr(n, "href")); ok {
				candidates = append(candidates, model.LinkCandidate{
					URL:  resolved,
					Text: nodeText(n),
				})
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	return candidates, nil
}

// findBase returns the href of the first <base> element, if any.
func findBase(n *html.Node) string {
	if n.Type == html.ElementNode && n.Data == "base" {
		return getAttr(n, "href")
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if href := findBase(c); href != "" {
			return href
		}
	}
	return ""
}

// resolveLink resolves href against base. Script, mail, phone and data
// links, bare fragments and non-web results are rejected.
func resolveLink(base *url.URL, href string) (string, bool) {
	href = strings.TrimSpace(href)
	if href == "" || href == "#" {
		return "", false
	}

	lower := strings.ToLower(href)
	for _, prefix := range []string{"javascript:", "mailto:", "tel:", "data:"} {
		if strings.HasPrefix(lower, prefix) {
			return "", false
		}
	}

	ref, err := url.Parse(href)
	if err != nil {
		return "", false
	}

	resolved := base.ResolveReference(ref)
	if !isWebURL(resolved) {
		return "", false
	}
	return resolved.String(), true
}

// nodeText returns the visible text under n with runs of whitespace
// collapsed to single spaces.
func nodeText(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			// Inline markup may split a word, so text nodes are joined as is.
			sb.WriteString(n.Data)
		case html.ElementNode:
			switch n.Data {
			case "script", "style":
				return
			case "br":
				sb.WriteByte(' ')
			case "img":
				// Image-only links are labelled by their alt text.
				if alt := getAttr(n, "alt"); alt != "" {
					sb.WriteString(" " + alt + " ")
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.Join(strings.Fields(sb.String()), " ")
}

// getAttr returns the value of an attribute, or "" if absent.
func getAttr(n *html.Node, key string) string {
	for _, attr := range n.Attr {
		if attr.Key == key {
			return attr.Val
		}
	}
	return ""
}
