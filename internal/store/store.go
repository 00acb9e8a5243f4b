// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package store persists the pipeline's shared state in SQLite: the
// embedding cache, the completion usage log, and the local mirror of
// resolved food items that backs the LOCAL search source.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"github.com/pdiddy/food-resolver/pkg/types"
)

const defaultDBPath = "data/food-resolver.db"

// Store manages the food-resolver SQLite database.
type Store struct {
	db *sqlx.DB
}

// Open opens or creates the database at cfg.Path and creates the schema if
// it does not exist.
func Open(cfg types.StoreConfig) (*Store, error) {
	path := cfg.Path
	if path == "" {
		path = defaultDBPath
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sqlx.Open("sqlite3", path+"?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Writers serialize on SQLite's lock anyway; one connection avoids
	// SQLITE_BUSY between concurrent upserts.
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return s, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) createSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS food_embedding_cache (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			text_to_embed TEXT NOT NULL UNIQUE,
			ada_embedding BLOB,
			bge_base_embedding BLOB,
			created_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS api_usage (
			id TEXT PRIMARY KEY,
			provider TEXT NOT NULL,
			model TEXT NOT NULL,
			prompt_tokens INTEGER NOT NULL,
			completion_tokens INTEGER NOT NULL,
			latency_ms INTEGER NOT NULL,
			created_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_api_usage_provider ON api_usage(provider, model)`,
		`CREATE TABLE IF NOT EXISTS food_items (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			source TEXT NOT NULL,
			external_id TEXT NOT NULL,
			name TEXT NOT NULL,
			brand TEXT,
			record TEXT NOT NULL,
			ada_embedding BLOB,
			bge_base_embedding BLOB,
			updated_at TEXT NOT NULL,
			UNIQUE(source, external_id)
		)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}
	return s.addColumn("food_items", "ada_embedding", "BLOB")
}

// addColumn adds a column to a table created by an older schema.
func (s *Store) addColumn(table, column, decl string) error {
	var n int
	if err := s.db.Get(&n, `SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = ?`, table, column); err != nil {
		return fmt.Errorf("inspecting %s: %w", table, err)
	}
	if n > 0 {
		return nil
	}
	if _, err := s.db.Exec(fmt.Sprintf(`ALTER TABLE %s ADD COLUMN %s %s`, table, column, decl)); err != nil {
		return fmt.Errorf("adding %s.%s: %w", table, column, err)
	}
	return nil
}

// now is the clock used for timestamps. Tests may replace it.
var now = func() time.Time { return time.Now().UTC() }

// UsageTotals sums usage per provider and model.
type UsageTotals struct {
	Provider         string `db:"provider"`
	Model            string `db:"model"`
	Calls            int    `db:"calls"`
	PromptTokens     int    `db:"prompt_tokens"`
	CompletionTokens int    `db:"completion_tokens"`
}

type usageRow struct {
	ID               string `db:"id"`
	Provider         string `db:"provider"`
	Model            string `db:"model"`
	PromptTokens     int    `db:"prompt_tokens"`
	CompletionTokens int    `db:"completion_tokens"`
	LatencyMs        int64  `db:"latency_ms"`
	CreatedAt        string `db:"created_at"`
}

// RecordUsage appends one usage record.
func (s *Store) RecordUsage(ctx context.Context, rec types.UsageRecord) error {
	created := rec.CreatedAt
	if created.IsZero() {
		created = now()
	}
	row := usageRow{
		ID:               rec.ID.String(),
		Provider:         rec.Provider,
		Model:            rec.Model,
		PromptTokens:     rec.PromptTokens,
		CompletionTokens: rec.CompletionTokens,
		LatencyMs:        rec.Latency.Milliseconds(),
		CreatedAt:        created.Format(time.RFC3339Nano),
	}
	_, err := s.db.NamedExecContext(ctx, `INSERT INTO api_usage
		(id, provider, model, prompt_tokens, completion_tokens, latency_ms, created_at)
		VALUES (:id, :provider, :model, :prompt_tokens, :completion_tokens, :latency_ms, :created_at)`, row)
	if err != nil {
		return fmt.Errorf("recording usage: %w", err)
	}
	return nil
}

// Usage returns token totals grouped by provider and model.
func (s *Store) Usage(ctx context.Context) ([]UsageTotals, error) {
	var totals []UsageTotals
	err := s.db.SelectContext(ctx, &totals, `SELECT provider, model,
		COUNT(*) AS calls,
		SUM(prompt_tokens) AS prompt_tokens,
		SUM(completion_tokens) AS completion_tokens
		FROM api_usage GROUP BY provider, model ORDER BY provider, model`)
	if err != nil {
		return nil, fmt.Errorf("querying usage: %w", err)
	}
	return totals, nil
}

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}
