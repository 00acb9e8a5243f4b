// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package search

import (
	"context"
	"fmt"
	"strconv"

	"github.com/pdiddy/food-resolver/internal/normalize"
	"github.com/pdiddy/food-resolver/internal/store"
	"github.com/pdiddy/food-resolver/pkg/types"
)

// FoodMirror is the local copy of previously resolved foods. The store
// package's SQLite implementation satisfies it.
type FoodMirror interface {
	NearestFoods(ctx context.Context, model types.EmbeddingModel, query []float32, limit int) ([]store.FoodMatch, error)
	Food(ctx context.Context, id int64) (*types.CanonicalFoodItem, error)
}

// localScanLimit bounds how many nearest foods are read per search.
const localScanLimit = 10

// LocalSource ranks mirrored foods by their stored vectors. No remote call
// is made, so the query vector is the only embedding involved.
type LocalSource struct {
	Mirror FoodMirror
	Limit  int
}

// Name returns the source identifier.
func (s *LocalSource) Name() types.FoodSource { return types.SourceLocal }

// Search returns the mirrored foods closest to the query vector.
func (s *LocalSource) Search(ctx context.Context, q Query) ([]types.FoodCandidate, error) {
	if len(q.Vector) == 0 {
		return nil, fmt.Errorf("query %q has no vector", q.Name)
	}
	limit := s.Limit
	if limit <= 0 {
		limit = localScanLimit
	}
	model := q.Model
	if model == "" {
		model = types.ModelBGEBase
	}
	matches, err := s.Mirror.NearestFoods(ctx, model, q.Vector, limit)
	if err != nil {
		return nil, err
	}
	cands := make([]types.FoodCandidate, 0, len(matches))
	for _, m := range matches {
		cands = append(cands, types.FoodCandidate{
			Source:     types.SourceLocal,
			ExternalID: strconv.FormatInt(m.ID, 10),
			Name:       m.Item.Name,
			Brand:      m.Item.Brand,
			Similarity: m.Similarity,
		})
	}
	return cands, nil
}

// Fetch returns the mirrored record. Its external id becomes the mirror row
// id.
func (s *LocalSource) Fetch(ctx context.Context, externalID string) (normalize.Payload, error) {
	id, err := strconv.ParseInt(externalID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid local food id %q: %w", externalID, err)
	}
	item, err := s.Mirror.Food(ctx, id)
	if err != nil {
		return nil, err
	}
	item.ExternalID = externalID
	return normalize.LocalFood{Item: *item}, nil
}
