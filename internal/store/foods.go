// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/pdiddy/food-resolver/internal/vector"
	"github.com/pdiddy/food-resolver/pkg/types"
)

// FoodMatch is a mirrored food ranked against a query vector.
type FoodMatch struct {
	ID         int64
	Item       types.CanonicalFoodItem
	Similarity float64
}

type foodRow struct {
	ID     int64  `db:"id"`
	Record string `db:"record"`
	Vector []byte `db:"vector"`
}

// SaveFood upserts a canonical item into the local mirror keyed by
// (source, external id). The record is refreshed on conflict; vec is stored
// in the model's column and only when that column was empty.
func (s *Store) SaveFood(ctx context.Context, model types.EmbeddingModel, item *types.CanonicalFoodItem, vec []float32) (int64, error) {
	if item.ExternalID == "" {
		return 0, fmt.Errorf("saving food %q: missing external id", item.Name)
	}
	col, err := embeddingColumn(model)
	if err != nil {
		return 0, err
	}
	record, err := json.Marshal(item)
	if err != nil {
		return 0, fmt.Errorf("marshaling food record: %w", err)
	}
	var blob []byte
	if len(vec) > 0 {
		blob = vector.Encode(vec)
	}

	_, err = s.db.ExecContext(ctx, fmt.Sprintf(`INSERT INTO food_items
		(source, external_id, name, brand, record, %[1]s, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(source, external_id) DO UPDATE SET
			name = excluded.name,
			brand = excluded.brand,
			record = excluded.record,
			%[1]s = COALESCE(food_items.%[1]s, excluded.%[1]s),
			updated_at = excluded.updated_at`, col),
		string(item.Source), item.ExternalID, item.Name, item.Brand, string(record), blob,
		now().Format(time.RFC3339Nano))
	if err != nil {
		return 0, fmt.Errorf("saving food %q: %w", item.Name, err)
	}

	var id int64
	if err := s.db.GetContext(ctx, &id,
		`SELECT id FROM food_items WHERE source = ? AND external_id = ?`,
		string(item.Source), item.ExternalID); err != nil {
		return 0, fmt.Errorf("reading food id: %w", err)
	}
	return id, nil
}

// Food returns the mirrored item with the given id.
func (s *Store) Food(ctx context.Context, id int64) (*types.CanonicalFoodItem, error) {
	var record string
	if err := s.db.GetContext(ctx, &record, `SELECT record FROM food_items WHERE id = ?`, id); err != nil {
		return nil, fmt.Errorf("reading food %d: %w", id, notFound(err))
	}
	var item types.CanonicalFoodItem
	if err := json.Unmarshal([]byte(record), &item); err != nil {
		return nil, fmt.Errorf("decoding food %d: %w", id, err)
	}
	return &item, nil
}

// NearestFoods ranks every mirrored food with a stored vector for model by
// cosine similarity to query and returns the best limit matches.
func (s *Store) NearestFoods(ctx context.Context, model types.EmbeddingModel, query []float32, limit int) ([]FoodMatch, error) {
	col, err := embeddingColumn(model)
	if err != nil {
		return nil, err
	}
	var rows []foodRow
	if err := s.db.SelectContext(ctx, &rows, fmt.Sprintf(
		`SELECT id, record, %[1]s AS vector FROM food_items WHERE %[1]s IS NOT NULL`, col)); err != nil {
		return nil, fmt.Errorf("scanning foods: %w", err)
	}

	matches := make([]FoodMatch, 0, len(rows))
	for _, r := range rows {
		v, err := vector.Decode(r.Vector)
		if err != nil {
			return nil, fmt.Errorf("decoding food vector %d: %w", r.ID, err)
		}
		var item types.CanonicalFoodItem
		if err := json.Unmarshal([]byte(r.Record), &item); err != nil {
			return nil, fmt.Errorf("decoding food %d: %w", r.ID, err)
		}
		matches = append(matches, FoodMatch{ID: r.ID, Item: item, Similarity: vector.Cosine(query, v)})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Similarity > matches[j].Similarity
	})
	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}
