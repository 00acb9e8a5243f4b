// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package websearch

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/pdiddy/food-resolver/internal/logging"
	"github.com/pdiddy/food-resolver/pkg/types"
)

// Defaults applied when the configuration leaves a field zero.
const (
	DefaultNumResults    = 4
	DefaultPageTimeout   = 2 * time.Second
	DefaultMaxConcurrent = 4
	DefaultTokenBudget   = 3000
)

// browserUserAgent is sent with page fetches; many nutrition sites refuse
// unknown agents.
const browserUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

// maxPageBytes bounds how much of a page is read.
const maxPageBytes = 2 << 20

// Searcher runs a web search.
type Searcher interface {
	Search(ctx context.Context, query string) (*SearchResponse, error)
}

// Grounder turns a query into grounding text.
type Grounder struct {
	search Searcher
	http   *resty.Client
	cfg    types.GroundingConfig
	log    *zap.Logger
}

// NewGrounder returns a Grounder. A nil client uses a default resty client.
func NewGrounder(search Searcher, client *resty.Client, cfg types.GroundingConfig, log *zap.Logger) *Grounder {
	if client == nil {
		client = resty.New()
	}
	if cfg.NumResults <= 0 {
		cfg.NumResults = DefaultNumResults
	}
	if cfg.PageTimeout <= 0 {
		cfg.PageTimeout = DefaultPageTimeout
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = DefaultMaxConcurrent
	}
	if cfg.TokenBudget <= 0 {
		cfg.TokenBudget = DefaultTokenBudget
	}
	if cfg.DenyDomains == nil {
		cfg.DenyDomains = DefaultDenyDomains
	}
	return &Grounder{search: search, http: client, cfg: cfg, log: logging.OrNop(log)}
}

// Ground searches for query, fetches the selected pages and returns their
// concatenated text trimmed to the token budget. Pages that fail to load
// contribute nothing; only a failed search is an error.
func (g *Grounder) Ground(ctx context.Context, query string) (string, error) {
	resp, err := g.search.Search(ctx, query)
	if err != nil {
		return "", err
	}
	urls := SelectURLs(resp, g.cfg.NumResults, g.cfg.DenyDomains)
	g.log.Debug("grounding pages selected", zap.String("query", query), zap.Strings("urls", urls))

	texts := g.FetchAll(ctx, urls)
	var parts []string
	for _, t := range texts {
		if t != "" {
			parts = append(parts, t)
		}
	}
	return TrimToTokens(strings.Join(parts, "\n\n"), g.cfg.TokenBudget), nil
}

// FetchAll fetches pages concurrently, at most MaxConcurrent at a time. The
// result has one entry per URL, in order; failed pages are empty.
func (g *Grounder) FetchAll(ctx context.Context, urls []string) []string {
	out := make([]string, len(urls))
	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(g.cfg.MaxConcurrent)
	for i, u := range urls {
		eg.Go(func() error {
			text, err := g.fetch(ctx, u)
			if err != nil {
				g.log.Info("page fetch failed", zap.String("url", u), zap.Error(err))
				return nil
			}
			out[i] = text
			return nil
		})
	}
	_ = eg.Wait()
	return out
}

func (g *Grounder) fetch(ctx context.Context, u string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.cfg.PageTimeout)
	defer cancel()

	ua := g.cfg.UserAgent
	if ua == "" {
		ua = browserUserAgent
	}
	resp, err := g.http.R().
		SetContext(ctx).
		SetHeader("User-Agent", ua).
		SetHeader("Accept", "text/html,application/xhtml+xml").
		SetDoNotParseResponse(true).
		Get(u)
	if err != nil {
		return "", err
	}
	body := resp.RawBody()
	defer body.Close()
	if resp.StatusCode() >= 300 {
		return "", fmt.Errorf("HTTP %d", resp.StatusCode())
	}
	return HTMLToText(io.LimitReader(body, maxPageBytes))
}
