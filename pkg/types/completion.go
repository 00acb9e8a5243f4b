// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import (
	"crypto/sha256"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// EmbeddingModel names one of the two logical embedding models.
type EmbeddingModel string

const (
	// ModelAda is the general-purpose 1536-dimension model.
	ModelAda EmbeddingModel = "ada"

	// ModelBGEBase is the smaller 768-dimension base model.
	ModelBGEBase EmbeddingModel = "bge-base"
)

// Dimensions returns the vector size produced by the model.
func (m EmbeddingModel) Dimensions() int {
	switch m {
	case ModelAda:
		return 1536
	case ModelBGEBase:
		return 768
	}
	return 0
}

// EmbeddingResult is one entry of an order-preserving embedding lookup.
type EmbeddingResult struct {
	Text   string    `json:"text" yaml:"text"`
	Vector []float32 `json:"vector" yaml:"-"`

	// CacheID is the embedding cache row id. It is only meaningful when the
	// vector was persisted; Cached reports whether it came from the cache.
	CacheID int64 `json:"cache_id" yaml:"cache_id"`
	Cached  bool  `json:"cached" yaml:"cached"`
}

// ResponseFormat is the output-format hint passed to completion providers.
type ResponseFormat string

const (
	FormatText ResponseFormat = "text"
	FormatJSON ResponseFormat = "json_object"
)

// ProviderCallKey identifies a completion request for response caching.
type ProviderCallKey struct {
	SystemPrompt string
	UserMessage  string
	Model        string
	Temperature  float64
	MaxTokens    int
	Format       ResponseFormat
}

// String returns the content-addressed cache key. Prompts are hashed so keys
// stay short; the remaining fields are kept readable.
func (k ProviderCallKey) String() string {
	sum := sha256.Sum256([]byte(k.SystemPrompt + k.UserMessage))
	format := k.Format
	if format == "" {
		format = FormatText
	}
	return fmt.Sprintf("prompt:%x:%s:%s:%d:%s",
		sum, k.Model, strconv.FormatFloat(k.Temperature, 'f', -1, 64), k.MaxTokens, format)
}

// UsageRecord captures the cost of one fresh (non-cached) completion call.
type UsageRecord struct {
	ID               uuid.UUID     `json:"id"`
	Provider         string        `json:"provider"`
	Model            string        `json:"model"`
	PromptTokens     int           `json:"prompt_tokens"`
	CompletionTokens int           `json:"completion_tokens"`
	Latency          time.Duration `json:"latency"`
	CreatedAt        time.Time     `json:"created_at"`
}

// ServingPatch proposes values for one serving of a canonical item. A
// ServingID not present on the item marks a candidate new serving.
type ServingPatch struct {
	ServingID            int      `json:"serving_id"`
	ServingName          string   `json:"serving_name"`
	ServingWeightGrams   Quantity `json:"serving_weight_grams"`
	DefaultServingAmount Quantity `json:"serving_default_serving_amount"`
	AlternateAmount      Quantity `json:"serving_alternate_amount"`
	AlternateUnit        string   `json:"serving_alternate_unit"`
}

// CompletionPatch is the model-proposed gap fill for a canonical item. It is
// consumed once by a fill-only merge.
type CompletionPatch struct {
	Reasoning                 string         `json:"reasoning"`
	DefaultServingAmountGrams Quantity       `json:"default_serving_amount_grams"`
	DefaultServingAmountMl    Quantity       `json:"default_serving_amount_ml"`
	Description               string         `json:"description"`
	Servings                  []ServingPatch `json:"serving"`
}
