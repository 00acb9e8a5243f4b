// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/pdiddy/food-resolver/internal/vector"
	"github.com/pdiddy/food-resolver/pkg/types"
)

// embeddingColumn maps a model to its vector column. The returned name is
// interpolated into SQL, so only the fixed column names may be returned.
func embeddingColumn(model types.EmbeddingModel) (string, error) {
	switch model {
	case types.ModelAda:
		return "ada_embedding", nil
	case types.ModelBGEBase:
		return "bge_base_embedding", nil
	}
	return "", fmt.Errorf("unknown embedding model %q", model)
}

type embeddingRow struct {
	ID     int64  `db:"id"`
	Text   string `db:"text_to_embed"`
	Vector []byte `db:"vector"`
}

// LookupEmbeddings returns the cached vectors for the given texts. Texts
// without a stored vector for the model are absent from the map.
func (s *Store) LookupEmbeddings(ctx context.Context, model types.EmbeddingModel, texts []string) (map[string]types.EmbeddingResult, error) {
	out := make(map[string]types.EmbeddingResult, len(texts))
	if len(texts) == 0 {
		return out, nil
	}
	col, err := embeddingColumn(model)
	if err != nil {
		return nil, err
	}

	query, args, err := sqlx.In(fmt.Sprintf(
		`SELECT id, text_to_embed, %[1]s AS vector FROM food_embedding_cache
		 WHERE text_to_embed IN (?) AND %[1]s IS NOT NULL`, col), texts)
	if err != nil {
		return nil, fmt.Errorf("building lookup query: %w", err)
	}

	var rows []embeddingRow
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("looking up embeddings: %w", err)
	}
	for _, r := range rows {
		v, err := vector.Decode(r.Vector)
		if err != nil {
			return nil, fmt.Errorf("decoding embedding %d: %w", r.ID, err)
		}
		out[r.Text] = types.EmbeddingResult{Text: r.Text, Vector: v, CacheID: r.ID, Cached: true}
	}
	return out, nil
}

// UpsertEmbeddings stores vectors for texts whose slot for the model is still
// empty. A slot that already holds a vector is left untouched, so concurrent
// writers converge on the first stored vector. The returned map holds the
// persisted row for every input text.
func (s *Store) UpsertEmbeddings(ctx context.Context, model types.EmbeddingModel, vectors map[string][]float32) (map[string]types.EmbeddingResult, error) {
	if len(vectors) == 0 {
		return map[string]types.EmbeddingResult{}, nil
	}
	col, err := embeddingColumn(model)
	if err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PreparexContext(ctx, fmt.Sprintf(
		`INSERT INTO food_embedding_cache (text_to_embed, %[1]s, created_at) VALUES (?, ?, ?)
		 ON CONFLICT(text_to_embed) DO UPDATE SET %[1]s = excluded.%[1]s
		 WHERE food_embedding_cache.%[1]s IS NULL`, col))
	if err != nil {
		return nil, fmt.Errorf("preparing upsert: %w", err)
	}
	defer stmt.Close()

	created := now().Format(time.RFC3339Nano)
	texts := make([]string, 0, len(vectors))
	for text, v := range vectors {
		if _, err := stmt.ExecContext(ctx, text, vector.Encode(v), created); err != nil {
			return nil, fmt.Errorf("upserting embedding for %q: %w", text, err)
		}
		texts = append(texts, text)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing embeddings: %w", err)
	}

	stored, err := s.LookupEmbeddings(ctx, model, texts)
	if err != nil {
		return nil, err
	}
	for text, r := range stored {
		r.Cached = false
		stored[text] = r
	}
	return stored, nil
}

// EmbeddingID returns the cache row id for text when a vector for the model
// is stored. The boolean reports whether such a row exists.
func (s *Store) EmbeddingID(ctx context.Context, model types.EmbeddingModel, text string) (int64, bool, error) {
	col, err := embeddingColumn(model)
	if err != nil {
		return 0, false, err
	}
	var id int64
	err = s.db.GetContext(ctx, &id, fmt.Sprintf(
		`SELECT id FROM food_embedding_cache WHERE text_to_embed = ? AND %s IS NOT NULL`, col), text)
	if err != nil {
		if notFound(err) == ErrNotFound {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("looking up embedding id: %w", err)
	}
	return id, true, nil
}
