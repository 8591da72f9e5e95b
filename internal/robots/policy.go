package robots

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/temoto/robotstxt"
)

// Policy is the parsed robots.txt of one origin. It is immutable once
// loaded and safe for concurrent reads. A nil *Policy allows everything.
type Policy struct {
	origin string
	data   *robotstxt.RobotsData
}

// Parse builds a Policy from a robots.txt body.
func Parse(origin string, body []byte) (*Policy, error) {
	data, err := robotstxt.FromBytes(body)
	if err != nil {
		return nil, fmt.Errorf("parse robots.txt: %w", err)
	}
	return &Policy{origin: origin, data: data}, nil
}

// Origin returns the origin the policy was loaded for.
func (p *Policy) Origin() string {
	if p == nil {
		return ""
	}
	return p.origin
}

// Allows reports whether agent may fetch rawURL.
// A nil policy and an unparseable URL are both allowed; the fetch that
// follows will fail on its own if the URL is unusable.
func (p *Policy) Allows(rawURL, agent string) bool {
	if p == nil || p.data == nil {
		return true
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return true
	}

	group := p.data.FindGroup(agent)
	if group == nil {
		return true
	}
	return group.Test(requestPath(u))
}

// requestPath returns the path and query robots rules are matched against.
func requestPath(u *url.URL) string {
	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	if u.RawQuery != "" {
		path += "?" + u.RawQuery
	}
	return path
}

// Origin returns scheme://host for rawURL, lower-cased.
func Origin(rawURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("not an absolute URL: %q", rawURL)
	}
	return strings.ToLower(u.Scheme) + "://" + strings.ToLower(u.Host), nil
}
