// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package pipeline resolves a free-text meal description into canonical
// food records: extraction, then for every item a query embedding, a
// multi-source search, a fetch of the best candidate, normalization,
// optional completion and optional mirroring into the local store.
package pipeline

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/pdiddy/food-resolver/internal/complete"
	"github.com/pdiddy/food-resolver/internal/embedding"
	"github.com/pdiddy/food-resolver/internal/logging"
	"github.com/pdiddy/food-resolver/internal/normalize"
	"github.com/pdiddy/food-resolver/internal/search"
	"github.com/pdiddy/food-resolver/pkg/types"
)

// DefaultMaxConcurrent bounds how many items of one meal resolve at once.
const DefaultMaxConcurrent = 4

// Extractor splits a meal description into food items.
type Extractor interface {
	Extract(ctx context.Context, message string) (*types.ExtractionResult, error)
}

// Completer fills unknown fields of a canonical item.
type Completer interface {
	Complete(ctx context.Context, item *types.CanonicalFoodItem) (*types.CanonicalFoodItem, error)
}

// FoodSaver mirrors resolved items for later LOCAL lookups.
type FoodSaver interface {
	SaveFood(ctx context.Context, model types.EmbeddingModel, item *types.CanonicalFoodItem, vec []float32) (int64, error)
}

// Resolver wires the pipeline stages together. Completion and Saver are
// optional.
type Resolver struct {
	Extractor  Extractor
	Embeddings search.Embedder
	Sources    []search.Source
	Completion Completer
	Saver      FoodSaver

	Search types.SearchConfig

	// Model is the embedding model used for queries (default bge-base).
	Model types.EmbeddingModel

	// MaxConcurrent bounds per-item fan-out (default 4).
	MaxConcurrent int

	Log *zap.Logger
}

// Resolution is the outcome for one extracted item.
type Resolution struct {
	Request types.FoodExtractionItem `json:"request" yaml:"request"`

	// Candidate is the chosen search hit. Nil when no source had a
	// candidate above its threshold.
	Candidate *types.FoodCandidate `json:"candidate,omitempty" yaml:"candidate,omitempty"`

	// Item is the canonical record, possibly completed.
	Item *types.CanonicalFoodItem `json:"item,omitempty" yaml:"item,omitempty"`

	// Completed reports whether missing-info completion was applied.
	Completed bool `json:"completed" yaml:"completed"`

	// FoodID is the local mirror row, when the item was saved.
	FoodID int64 `json:"food_id,omitempty" yaml:"food_id,omitempty"`

	// Unresolved marks an item the caller must handle manually.
	Unresolved bool `json:"unresolved" yaml:"unresolved"`

	// Err is the failure that left the item unresolved. An unresolved item
	// with a nil Err had no candidate above threshold.
	Err error `json:"-" yaml:"-"`

	// CompletionErr is set when completion ran and failed; Item then holds
	// the partial record.
	CompletionErr error `json:"-" yaml:"-"`

	SourceErrors []*search.SourceUnavailableError `json:"-" yaml:"-"`
}

// Result holds every resolution of one meal, in extraction order.
type Result struct {
	RequestID              uuid.UUID    `json:"request_id" yaml:"request_id"`
	ContainsValidFoodItems bool         `json:"contains_valid_food_items" yaml:"contains_valid_food_items"`
	Items                  []Resolution `json:"items" yaml:"items"`
}

// Resolved returns the number of items with a canonical record.
func (r Result) Resolved() int {
	n := 0
	for _, it := range r.Items {
		if !it.Unresolved {
			n++
		}
	}
	return n
}

// Unresolved returns the number of items without a canonical record.
func (r Result) Unresolved() int { return len(r.Items) - r.Resolved() }

// HasFailures reports whether any item is unresolved.
func (r Result) HasFailures() bool { return r.Unresolved() > 0 }

// Resolve extracts food items from text and resolves each independently.
// Only an extraction failure is returned as an error; per-item failures
// are recorded on the item.
func (r *Resolver) Resolve(ctx context.Context, text string) (Result, error) {
	res := Result{RequestID: uuid.New()}
	log := logging.OrNop(r.Log).With(zap.String("request_id", res.RequestID.String()))

	ext, err := r.Extractor.Extract(ctx, text)
	if err != nil {
		return res, fmt.Errorf("extracting food items: %w", err)
	}
	res.ContainsValidFoodItems = ext.ContainsValidFoodItems
	res.Items = r.ResolveItems(ctx, ext.Items, log)
	log.Info("meal resolved",
		zap.Int("items", len(res.Items)),
		zap.Int("resolved", res.Resolved()),
		zap.Int("unresolved", res.Unresolved()))
	return res, nil
}

// ResolveItems resolves already-extracted items concurrently. The result
// has one entry per item, in input order.
func (r *Resolver) ResolveItems(ctx context.Context, items []types.FoodExtractionItem, log *zap.Logger) []Resolution {
	if log == nil {
		log = logging.OrNop(r.Log)
	}
	limit := r.MaxConcurrent
	if limit <= 0 {
		limit = DefaultMaxConcurrent
	}

	out := make([]Resolution, len(items))
	var eg errgroup.Group
	eg.SetLimit(limit)
	for i, it := range items {
		eg.Go(func() error {
			out[i] = r.resolveItem(ctx, it, log.With(zap.String("food", it.SearchName)))
			return nil
		})
	}
	_ = eg.Wait()
	return out
}

func (r *Resolver) model() types.EmbeddingModel {
	if r.Model == "" {
		return types.ModelBGEBase
	}
	return r.Model
}

func (r *Resolver) resolveItem(ctx context.Context, req types.FoodExtractionItem, log *zap.Logger) Resolution {
	res := Resolution{Request: req}
	fail := func(err error) Resolution {
		log.Warn("item unresolved", zap.Error(err))
		res.Unresolved = true
		res.Err = err
		return res
	}

	q, err := search.NewQuery(ctx, r.Embeddings, r.model(), req)
	if err != nil {
		return fail(err)
	}
	found, err := search.Search(ctx, q, r.Sources, r.Search, log)
	if err != nil {
		return fail(fmt.Errorf("searching: %w", err))
	}
	res.SourceErrors = found.Errors

	best, ok := found.Best(r.Search.Priority)
	if !ok {
		log.Info("no candidate above threshold")
		res.Unresolved = true
		return res
	}
	res.Candidate = &best

	src := r.source(best.Source)
	if src == nil {
		return fail(fmt.Errorf("no source %s for candidate %s", best.Source, best.ExternalID))
	}
	payload, err := src.Fetch(ctx, best.ExternalID)
	if err != nil {
		return fail(fmt.Errorf("fetching %s %s: %w", best.Source, best.ExternalID, err))
	}
	item, err := normalize.Normalize(payload)
	if err != nil {
		return fail(err)
	}
	res.Item = item

	if r.Completion != nil && complete.NeedsCompletion(item) {
		done, err := r.Completion.Complete(ctx, item)
		if err != nil {
			log.Warn("completion failed; keeping partial record", zap.Error(err))
			res.CompletionErr = err
		} else {
			res.Item = done
			res.Completed = true
		}
	}

	if r.Saver != nil && res.Item.Source != types.SourceLocal {
		res.FoodID = r.save(ctx, res.Item, best, log)
	}
	return res
}

func (r *Resolver) source(name types.FoodSource) search.Source {
	for _, s := range r.Sources {
		if s.Name() == name {
			return s
		}
	}
	return nil
}

// save mirrors item under the embedding of the candidate's name, which the
// source already placed in the cache while scoring.
func (r *Resolver) save(ctx context.Context, item *types.CanonicalFoodItem, c types.FoodCandidate, log *zap.Logger) int64 {
	var vec []float32
	emb, err := r.Embeddings.GetEmbeddings(ctx, r.model(), []string{embedding.FoodKey(c.Name, c.Brand)})
	if err != nil {
		log.Warn("embedding food for mirror", zap.Error(err))
	} else if len(emb) == 1 {
		vec = emb[0].Vector
	}
	id, err := r.Saver.SaveFood(ctx, r.model(), item, vec)
	if err != nil {
		log.Warn("saving food to mirror", zap.Error(err))
		return 0
	}
	return id
}
