package search

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"

	"github.com/nao1215/allergenscan/internal/fetch"
)

const (
	// DefaultEndpoint is the Google Custom Search JSON API.
	DefaultEndpoint = "https://www.googleapis.com/customsearch/v1"

	// DefaultQuerySuffix narrows a chain name query to the official site.
	DefaultQuerySuffix = "公式サイト"

	// DefaultNum is the number of results requested per query.
	DefaultNum = 5
)

// Result is one search result.
type Result struct {
	Title   string `json:"title"`
	Link    string `json:"link"`
	Snippet string `json:"snippet"`
}

// Provider runs web searches.
type Provider interface {
	Search(ctx context.Context, query string) ([]Result, error)
}

// Client queries the Google Custom Search JSON API.
type Client struct {
	fetcher     *fetch.Fetcher
	apiKey      string
	engineID    string
	endpoint    string
	num         int
	querySuffix string
	logger      *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithEndpoint overrides the API endpoint.
func WithEndpoint(endpoint string) Option {
	return func(c *Client) {
		c.endpoint = endpoint
	}
}

// WithNum sets the number of results per query (1 to 10).
func WithNum(n int) Option {
	return func(c *Client) {
		if n >= 1 && n <= 10 {
			c.num = n
		}
	}
}

// WithQuerySuffix sets the words appended to a chain name by OfficialSite.
func WithQuerySuffix(suffix string) Option {
	return func(c *Client) {
		c.querySuffix = strings.TrimSpace(suffix)
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// NewClient creates a Client. Both credentials are required.
func NewClient(fetcher *fetch.Fetcher, apiKey, engineID string, opts ...Option) (*Client, error) {
	if apiKey == "" || engineID == "" {
		return nil, ErrMissingCredentials
	}
	c := &Client{
		fetcher:     fetcher,
		apiKey:      apiKey,
		engineID:    engineID,
		endpoint:    DefaultEndpoint,
		num:         DefaultNum,
		querySuffix: DefaultQuerySuffix,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c, nil
}

type apiResponse struct {
	Items []Result `json:"items"`
}

// Search runs query and returns the results in rank order.
func (c *Client) Search(ctx context.Context, query string) ([]Result, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}

	params := url.Values{}
	params.Set("key", c.apiKey)
	params.Set("cx", c.engineID)
	params.Set("q", query)
	params.Set("num", strconv.Itoa(c.num))
	reqURL := c.endpoint + "?" + params.Encode()

	c.logger.Debug("searching", "query", query)
	resp, err := c.fetcher.Get(ctx, reqURL, fetch.AcceptJSON)
	if err != nil {
		return nil, fmt.Errorf("search %q: %w", query, err)
	}

	var body apiResponse
	if err := json.Unmarshal(resp.Body, &body); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}
	c.logger.Debug("search results", "query", query, "count", len(body.Items))
	return body.Items, nil
}

// Query builds the official site query for chain.
func (c *Client) Query(chain string) string {
	chain = strings.TrimSpace(chain)
	if c.querySuffix == "" {
		return chain
	}
	return chain + " " + c.querySuffix
}

// OfficialSite returns the top result for the chain's official site query.
func (c *Client) OfficialSite(ctx context.Context, chain string) (string, error) {
	if strings.TrimSpace(chain) == "" {
		return "", ErrEmptyQuery
	}
	return FirstLink(ctx, c, c.Query(chain))
}

// FirstLink returns the link of the first result for query.
func FirstLink(ctx context.Context, p Provider, query string) (string, error) {
	results, err := p.Search(ctx, query)
	if err != nil {
		return "", err
	}
	for _, r := range results {
		if r.Link != "" {
			return r.Link, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrNoResults, query)
}
