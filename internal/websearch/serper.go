// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package websearch grounds model prompts in web pages: it queries a search
// API, picks result pages from distinct domains, fetches them concurrently,
// strips them to text and trims the text to a token budget.
package websearch

import (
	"context"
	"fmt"
	"net/url"
	"slices"
	"strings"

	"github.com/go-resty/resty/v2"
)

// serperURL is the Serper Google search endpoint. Declared as a var so tests
// can substitute an httptest server.
var serperURL = "https://google.serper.dev/search"

// DefaultDenyDomains are base domains whose pages are never fetched.
var DefaultDenyDomains = []string{"amazon.com", "walmart.com", "kingkullen.com", "costco.com"}

// SearchResponse is the subset of a Serper response used for grounding.
type SearchResponse struct {
	Organic        []OrganicResult `json:"organic"`
	KnowledgeGraph *KnowledgeGraph `json:"knowledgeGraph"`
}

// OrganicResult is one ranked web result.
type OrganicResult struct {
	Title   string `json:"title"`
	Link    string `json:"link"`
	Snippet string `json:"snippet"`
}

// KnowledgeGraph is the entity panel Google shows for well-known brands.
type KnowledgeGraph struct {
	Title   string `json:"title"`
	Website string `json:"website"`
}

// SerperClient queries the Serper search API.
type SerperClient struct {
	APIKey string

	// HTTP sends the request. Nil uses a default resty client.
	HTTP *resty.Client
}

// Search runs one web search.
func (c *SerperClient) Search(ctx context.Context, query string) (*SearchResponse, error) {
	if c.APIKey == "" {
		return nil, fmt.Errorf("serper API key not configured")
	}
	client := c.HTTP
	if client == nil {
		client = resty.New()
	}

	var out SearchResponse
	resp, err := client.R().
		SetContext(ctx).
		SetHeader("X-API-KEY", c.APIKey).
		SetHeader("Content-Type", "application/json").
		SetBody(map[string]string{"q": query}).
		SetResult(&out).
		Post(serperURL)
	if err != nil {
		return nil, fmt.Errorf("serper request: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("serper returned HTTP %d: %s", resp.StatusCode(), truncate(resp.String(), 200))
	}
	return &out, nil
}

// SelectURLs picks up to n result links. The first organic result comes
// first; further picks must come from base domains not yet used, with the
// knowledge-graph website as a fallback, and remaining slots are filled
// from unused organic links. Denied domains and PDF links are skipped.
func SelectURLs(resp *SearchResponse, n int, deny []string) []string {
	if resp == nil || n <= 0 {
		return nil
	}

	var organic []*url.URL
	for _, r := range resp.Organic {
		if u := parseLink(r.Link, deny); u != nil {
			organic = append(organic, u)
		}
	}

	var out []string
	domains := make(map[string]bool)
	add := func(u *url.URL, distinct bool) {
		if len(out) >= n || slices.Contains(out, u.String()) {
			return
		}
		d := BaseDomain(u.Hostname())
		if distinct && domains[d] {
			return
		}
		domains[d] = true
		out = append(out, u.String())
	}

	for _, u := range organic {
		add(u, true)
	}
	if resp.KnowledgeGraph != nil {
		if u := parseLink(resp.KnowledgeGraph.Website, deny); u != nil {
			add(u, true)
		}
	}
	for _, u := range organic {
		add(u, false)
	}
	return out
}

func parseLink(link string, deny []string) *url.URL {
	u, err := url.Parse(strings.TrimSpace(link))
	if err != nil || u.Hostname() == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return nil
	}
	if strings.HasSuffix(strings.ToLower(u.Path), ".pdf") {
		return nil
	}
	if slices.Contains(deny, BaseDomain(u.Hostname())) {
		return nil
	}
	return u
}

// BaseDomain returns the registrable part of a hostname: the last two
// labels, or the last three when the host ends in a two-letter
// second-level label under a country-code TLD (e.g. "bbc.co.uk").
func BaseDomain(host string) string {
	host = strings.TrimSuffix(strings.ToLower(host), ".")
	parts := strings.Split(host, ".")
	n := len(parts)
	if n >= 3 && len(parts[n-1]) == 2 && len(parts[n-2]) == 2 {
		return strings.Join(parts[n-3:], ".")
	}
	if n >= 2 {
		return strings.Join(parts[n-2:], ".")
	}
	return host
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
