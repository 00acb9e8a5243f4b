// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package embedding turns text into vectors through a persistent cache. Cache
// misses are fetched from a remote provider in one batch and stored with
// upsert-if-absent semantics, so concurrent callers converge on one vector
// per text and model.
package embedding

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/pdiddy/food-resolver/internal/logging"
	"github.com/pdiddy/food-resolver/pkg/types"
)

// Store persists embeddings. The store package's SQLite implementation
// satisfies it.
type Store interface {
	LookupEmbeddings(ctx context.Context, model types.EmbeddingModel, texts []string) (map[string]types.EmbeddingResult, error)
	UpsertEmbeddings(ctx context.Context, model types.EmbeddingModel, vectors map[string][]float32) (map[string]types.EmbeddingResult, error)
	EmbeddingID(ctx context.Context, model types.EmbeddingModel, text string) (int64, bool, error)
}

// Embedder fetches vectors for one logical model. Implementations must
// return one vector per input, in input order.
type Embedder interface {
	Model() types.EmbeddingModel
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Cache serves embeddings from the store and fills misses from the
// registered embedders.
type Cache struct {
	store     Store
	embedders map[types.EmbeddingModel]Embedder
	log       *zap.Logger
}

// NewCache returns a Cache backed by store. Each embedder serves the model
// it reports; a later embedder for the same model replaces an earlier one.
func NewCache(store Store, log *zap.Logger, embedders ...Embedder) *Cache {
	c := &Cache{
		store:     store,
		embedders: make(map[types.EmbeddingModel]Embedder, len(embedders)),
		log:       logging.OrNop(log),
	}
	for _, e := range embedders {
		c.embedders[e.Model()] = e
	}
	return c
}

// GetEmbeddings returns one result per input text, in input order. Cached
// vectors are served from the store; the remaining distinct texts are
// fetched in a single provider call and persisted. A provider failure fails
// the call without touching the store.
func (c *Cache) GetEmbeddings(ctx context.Context, model types.EmbeddingModel, texts []string) ([]types.EmbeddingResult, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	unique := dedupe(texts)
	hits, err := c.store.LookupEmbeddings(ctx, model, unique)
	if err != nil {
		return nil, fmt.Errorf("reading embedding cache: %w", err)
	}

	var misses []string
	for _, t := range unique {
		if _, ok := hits[t]; !ok {
			misses = append(misses, t)
		}
	}

	if len(misses) > 0 {
		fetched, err := c.fetch(ctx, model, misses)
		if err != nil {
			return nil, err
		}
		for t, r := range fetched {
			hits[t] = r
		}
	}

	c.log.Debug("embeddings resolved",
		zap.String("model", string(model)),
		zap.Int("requested", len(texts)),
		zap.Int("cache_hits", len(unique)-len(misses)),
		zap.Int("fetched", len(misses)))

	out := make([]types.EmbeddingResult, len(texts))
	for i, t := range texts {
		r, ok := hits[t]
		if !ok {
			return nil, fmt.Errorf("embedding for %q missing after fetch", t)
		}
		out[i] = r
	}
	return out, nil
}

// fetch embeds misses in one provider call and upserts the vectors.
func (c *Cache) fetch(ctx context.Context, model types.EmbeddingModel, misses []string) (map[string]types.EmbeddingResult, error) {
	embedder, ok := c.embedders[model]
	if !ok {
		return nil, fmt.Errorf("no embedder registered for model %q", model)
	}

	vectors, err := embedder.Embed(ctx, misses)
	if err != nil {
		return nil, fmt.Errorf("fetching %d %s embeddings: %w", len(misses), model, err)
	}
	if len(vectors) != len(misses) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d texts", len(vectors), len(misses))
	}

	byText := make(map[string][]float32, len(misses))
	for i, t := range misses {
		if len(vectors[i]) == 0 {
			return nil, fmt.Errorf("embedder returned an empty vector for %q", t)
		}
		byText[t] = vectors[i]
	}

	stored, err := c.store.UpsertEmbeddings(ctx, model, byText)
	if err != nil {
		return nil, fmt.Errorf("writing embedding cache: %w", err)
	}
	return stored, nil
}

// GetEmbeddingID returns the cache row id for a food name and optional
// brand, embedding and storing it first when absent. The boolean is false
// only when no row could be established.
func (c *Cache) GetEmbeddingID(ctx context.Context, model types.EmbeddingModel, name, brand string) (int64, bool, error) {
	key := FoodKey(name, brand)
	id, ok, err := c.store.EmbeddingID(ctx, model, key)
	if err != nil || ok {
		return id, ok, err
	}

	results, err := c.GetEmbeddings(ctx, model, []string{key})
	if err != nil {
		return 0, false, err
	}
	if len(results) == 0 || results[0].CacheID == 0 {
		return 0, false, nil
	}
	return results[0].CacheID, true, nil
}

// FoodKey builds the cache key for a food: the lowercased name, followed by
// " - <brand>" when a brand is given and not already part of the name.
func FoodKey(name, brand string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	brand = strings.ToLower(strings.TrimSpace(brand))
	if brand == "" || strings.Contains(name, brand) {
		return name
	}
	return name + " - " + brand
}

func dedupe(texts []string) []string {
	seen := make(map[string]bool, len(texts))
	out := make([]string, 0, len(texts))
	for _, t := range texts {
		if seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}
