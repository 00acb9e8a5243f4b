// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package search finds candidate foods for an extracted item across every
// configured nutrition source and ranks them by embedding similarity.
package search

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/pdiddy/food-resolver/internal/embedding"
	"github.com/pdiddy/food-resolver/internal/logging"
	"github.com/pdiddy/food-resolver/internal/normalize"
	"github.com/pdiddy/food-resolver/internal/vector"
	"github.com/pdiddy/food-resolver/pkg/types"
)

// DefaultTopK caps each source's shortlist when the configuration does not.
const DefaultTopK = 3

// DefaultPriority orders sources when a single candidate is needed.
var DefaultPriority = []types.FoodSource{
	types.SourceUSDA,
	types.SourceNutritionix,
	types.SourceFatSecret,
	types.SourceLocal,
}

// DefaultThresholds are the minimum similarities per source. They differ
// per source and are configured independently.
var DefaultThresholds = map[types.FoodSource]float64{
	types.SourceUSDA:        0.85,
	types.SourceNutritionix: 0.8,
	types.SourceFatSecret:   0.8,
	types.SourceLocal:       0.7,
}

// Source is one nutrition database. Search returns candidates scored
// against the query vector; Fetch returns the full record of a candidate.
type Source interface {
	Name() types.FoodSource
	Search(ctx context.Context, q Query) ([]types.FoodCandidate, error)
	Fetch(ctx context.Context, externalID string) (normalize.Payload, error)
}

// Embedder is the slice of the embedding cache that sources use to score
// candidate names.
type Embedder interface {
	GetEmbeddings(ctx context.Context, model types.EmbeddingModel, texts []string) ([]types.EmbeddingResult, error)
}

// Query is one item to look up.
type Query struct {
	Name    string
	Brand   string
	Branded bool

	// Vector is the embedding of Key() under Model, the model the sources
	// score with.
	Vector []float32
	Model  types.EmbeddingModel
}

// Key is the embedding-cache key of the query.
func (q Query) Key() string { return embedding.FoodKey(q.Name, q.Brand) }

// Keywords is the text sent to keyword-search APIs.
func (q Query) Keywords() string {
	if q.Brand == "" || strings.Contains(strings.ToLower(q.Name), strings.ToLower(q.Brand)) {
		return q.Name
	}
	return q.Brand + " " + q.Name
}

// NewQuery embeds the item's key and returns a ready Query.
func NewQuery(ctx context.Context, emb Embedder, model types.EmbeddingModel, item types.FoodExtractionItem) (Query, error) {
	q := Query{Name: strings.TrimSpace(item.SearchName), Brand: strings.TrimSpace(item.Brand), Branded: item.IsBranded, Model: model}
	if q.Name == "" {
		return Query{}, fmt.Errorf("query is empty")
	}
	res, err := emb.GetEmbeddings(ctx, model, []string{q.Key()})
	if err != nil {
		return Query{}, fmt.Errorf("embedding query %q: %w", q.Key(), err)
	}
	if len(res) != 1 || len(res[0].Vector) == 0 {
		return Query{}, fmt.Errorf("embedding query %q: no vector", q.Key())
	}
	q.Vector = res[0].Vector
	return q, nil
}

// SourceUnavailableError reports a source that failed during a search. The
// source contributes an empty shortlist.
type SourceUnavailableError struct {
	Source types.FoodSource
	Err    error
}

func (e *SourceUnavailableError) Error() string {
	return fmt.Sprintf("source %s unavailable: %v", e.Source, e.Err)
}

func (e *SourceUnavailableError) Unwrap() error { return e.Err }

// Output holds per-source shortlists, best first.
type Output struct {
	Shortlists map[types.FoodSource][]types.FoodCandidate
	Errors     []*SourceUnavailableError
}

// Best returns the top candidate of the first non-empty shortlist in
// priority order. An empty priority uses DefaultPriority.
func (o Output) Best(priority []types.FoodSource) (types.FoodCandidate, bool) {
	if len(priority) == 0 {
		priority = DefaultPriority
	}
	for _, s := range priority {
		if list := o.Shortlists[s]; len(list) > 0 {
			return list[0], true
		}
	}
	return types.FoodCandidate{}, false
}

// Empty reports whether no source produced a candidate above its threshold.
func (o Output) Empty() bool {
	for _, list := range o.Shortlists {
		if len(list) > 0 {
			return false
		}
	}
	return true
}

// Search queries every source concurrently and joins before returning. Each
// shortlist holds only candidates at or above the source's threshold,
// sorted by descending similarity and capped at top-k. A failing source is
// recorded in Output.Errors and yields an empty shortlist.
func Search(ctx context.Context, q Query, sources []Source, cfg types.SearchConfig, log *zap.Logger) (Output, error) {
	if strings.TrimSpace(q.Name) == "" {
		return Output{}, fmt.Errorf("query is empty")
	}
	if len(sources) == 0 {
		return Output{}, fmt.Errorf("no search sources configured")
	}
	log = logging.OrNop(log)

	topK := cfg.TopK
	if topK <= 0 {
		topK = DefaultTopK
	}

	type sourceResult struct {
		name  types.FoodSource
		cands []types.FoodCandidate
		err   error
	}

	ch := make(chan sourceResult, len(sources))
	var wg sync.WaitGroup
	for _, s := range sources {
		wg.Add(1)
		go func(s Source) {
			defer wg.Done()
			cands, err := s.Search(ctx, q)
			ch <- sourceResult{name: s.Name(), cands: cands, err: err}
		}(s)
	}

	go func() {
		wg.Wait()
		close(ch)
	}()

	out := Output{Shortlists: make(map[types.FoodSource][]types.FoodCandidate, len(sources))}
	for sr := range ch {
		if sr.err != nil {
			log.Warn("source failed", zap.String("source", string(sr.name)), zap.Error(sr.err))
			out.Errors = append(out.Errors, &SourceUnavailableError{Source: sr.name, Err: sr.err})
			out.Shortlists[sr.name] = nil
			continue
		}
		list := Rank(sr.cands, Threshold(cfg, sr.name), topK)
		log.Debug("source ranked",
			zap.String("source", string(sr.name)),
			zap.Int("candidates", len(sr.cands)),
			zap.Int("shortlisted", len(list)))
		out.Shortlists[sr.name] = list
	}

	sort.Slice(out.Errors, func(i, j int) bool { return out.Errors[i].Source < out.Errors[j].Source })
	return out, nil
}

// Threshold returns the configured threshold of a source, falling back to
// DefaultThresholds when none is set.
func Threshold(cfg types.SearchConfig, s types.FoodSource) float64 {
	if t := cfg.Source(s).Threshold; t != nil {
		return *t
	}
	return DefaultThresholds[s]
}

// Rank keeps candidates with similarity >= threshold, sorted descending and
// capped at topK (no cap when topK <= 0). The input is not modified.
func Rank(cands []types.FoodCandidate, threshold float64, topK int) []types.FoodCandidate {
	var out []types.FoodCandidate
	for _, c := range cands {
		if c.Similarity >= threshold {
			out = append(out, c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Similarity > out[j].Similarity })
	if topK > 0 && len(out) > topK {
		out = out[:topK]
	}
	return out
}

// score embeds every candidate's name in one batch and sets its similarity
// to the query vector.
func score(ctx context.Context, emb Embedder, model types.EmbeddingModel, q Query, cands []types.FoodCandidate) error {
	if len(cands) == 0 {
		return nil
	}
	if len(q.Vector) == 0 {
		return fmt.Errorf("query %q has no vector", q.Name)
	}
	keys := make([]string, len(cands))
	for i, c := range cands {
		keys[i] = embedding.FoodKey(c.Name, c.Brand)
	}
	res, err := emb.GetEmbeddings(ctx, model, keys)
	if err != nil {
		return fmt.Errorf("embedding candidates: %w", err)
	}
	if len(res) != len(cands) {
		return fmt.Errorf("embedding candidates: got %d vectors for %d names", len(res), len(cands))
	}
	for i := range cands {
		cands[i].Similarity = vector.Cosine(q.Vector, res[i].Vector)
		cands[i].EmbeddingID = res[i].CacheID
	}
	return nil
}

// FormatTable writes the shortlists as a human-readable table to w.
func FormatTable(out Output, priority []types.FoodSource, w io.Writer) {
	if len(priority) == 0 {
		priority = DefaultPriority
	}
	total := 0
	fmt.Fprintf(w, "%-12s  %-4s  %-45s  %-20s  %-6s  %s\n", "Source", "Rank", "Name", "Brand", "Score", "ID")
	fmt.Fprintln(w, strings.Repeat("-", 110))
	for _, s := range priority {
		for i, c := range out.Shortlists[s] {
			fmt.Fprintf(w, "%-12s  %-4d  %-45s  %-20s  %-6.3f  %s\n",
				s, i+1, truncate(c.Name, 45), truncate(c.Brand, 20), c.Similarity, c.ExternalID)
			total++
		}
	}
	if total == 0 {
		fmt.Fprintln(w, "No candidates above threshold.")
	}
	for _, e := range out.Errors {
		fmt.Fprintf(w, "warning: %v\n", e)
	}
}

// FormatJSON writes the shortlists as indented JSON to w.
func FormatJSON(out Output, w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out.Shortlists)
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
