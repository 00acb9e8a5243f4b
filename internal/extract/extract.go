// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package extract turns a free-text meal description into atomic food-item
// requests by prompting the completion layer for a JSON document and
// validating it. A malformed answer is retried once at a higher
// temperature; after that the caller receives a nil result and a
// *MalformedOutputError.
package extract

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/pdiddy/food-resolver/internal/llm"
	"github.com/pdiddy/food-resolver/internal/logging"
	"github.com/pdiddy/food-resolver/internal/retry"
	"github.com/pdiddy/food-resolver/pkg/types"
)

const (
	defaultMaxRetries = 1
	defaultStep       = 0.3
	defaultMaxTokens  = 2048
)

// Completer is the part of the completion layer extraction needs.
// *llm.Client satisfies it.
type Completer interface {
	Complete(ctx context.Context, req llm.Request) (string, error)
}

// MalformedOutputError reports a model answer that did not match the
// extraction schema.
type MalformedOutputError struct {
	Raw string
	Err error
}

func (e *MalformedOutputError) Error() string {
	return fmt.Sprintf("malformed extraction output: %v", e.Err)
}

func (e *MalformedOutputError) Unwrap() error { return e.Err }

// Extractor runs the extraction prompt against the completion layer.
type Extractor struct {
	llm Completer
	cfg types.ExtractionConfig
	log *zap.Logger
}

// New returns an Extractor.
func New(c Completer, cfg types.ExtractionConfig, log *zap.Logger) *Extractor {
	return &Extractor{llm: c, cfg: cfg, log: logging.OrNop(log)}
}

// Extract splits message into food items. When the message names no food
// the result is empty with ContainsValidFoodItems false.
func (e *Extractor) Extract(ctx context.Context, message string) (*types.ExtractionResult, error) {
	return e.extract(ctx, message, nil)
}

// ExtractWithImages is Extract for a message accompanied by photos. Such
// requests bypass the completion cache.
func (e *Extractor) ExtractWithImages(ctx context.Context, message string, imageURLs []string) (*types.ExtractionResult, error) {
	return e.extract(ctx, message, imageURLs)
}

func (e *Extractor) extract(ctx context.Context, message string, images []string) (*types.ExtractionResult, error) {
	message = strings.TrimSpace(message)
	if message == "" && len(images) == 0 {
		return &types.ExtractionResult{Items: []types.FoodExtractionItem{}}, nil
	}

	prompt, err := renderPrompt(message)
	if err != nil {
		return nil, fmt.Errorf("rendering prompt: %w", err)
	}

	result, err := retry.Do(ctx, e.policy(), func(ctx context.Context, a retry.Attempt) (*types.ExtractionResult, error) {
		req := llm.Request{
			System:      systemPrompt,
			Messages:    []llm.Message{{Role: llm.RoleUser, Content: prompt, Images: images}},
			Provider:    e.cfg.Provider,
			Model:       e.cfg.Model,
			Temperature: a.Temperature,
			MaxTokens:   e.maxTokens(),
			Format:      types.FormatJSON,
		}
		raw, err := e.llm.Complete(ctx, req)
		if err != nil {
			return nil, err
		}
		res, err := parseResponse(raw)
		if err != nil {
			e.log.Warn("extraction output rejected",
				zap.Int("attempt", a.Number),
				zap.Float64("temperature", a.Temperature),
				zap.Error(err))
			return nil, &MalformedOutputError{Raw: raw, Err: err}
		}
		return res, nil
	})
	if err != nil {
		return nil, err
	}

	e.log.Debug("extracted food items", zap.Int("items", len(result.Items)))
	return result, nil
}

func (e *Extractor) policy() retry.Policy {
	maxRetries := e.cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}
	step := e.cfg.RetryTemperatureStep
	if step <= 0 {
		step = defaultStep
	}
	return retry.Policy{
		MaxRetries:      maxRetries,
		BaseTemperature: e.cfg.Temperature,
		Escalate:        retry.Step(step),
		Retryable: func(err error) bool {
			var mal *MalformedOutputError
			return errors.As(err, &mal)
		},
	}
}

func (e *Extractor) maxTokens() int {
	if e.cfg.MaxTokens > 0 {
		return e.cfg.MaxTokens
	}
	return defaultMaxTokens
}

// rawItem is one element of the model's food_items array.
type rawItem struct {
	SearchName string                    `json:"full_single_food_database_search_name"`
	Message    string                    `json:"full_single_item_user_message_including_serving_or_quantity"`
	Branded    flexBool                  `json:"branded"`
	Brand      string                    `json:"brand"`
	Hints      map[string]types.Quantity `json:"nutrition_hints"`
}

type rawResponse struct {
	FoodItems              *[]rawItem `json:"food_items"`
	ContainsValidFoodItems *flexBool  `json:"contains_valid_food_items"`
}

// flexBool accepts JSON booleans and their string spellings. Models echo
// the schema's "boolean" placeholder at times; it reads as false.
type flexBool bool

func (b *flexBool) UnmarshalJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	switch x := v.(type) {
	case nil:
		*b = false
	case bool:
		*b = flexBool(x)
	case string:
		switch strings.ToLower(strings.TrimSpace(x)) {
		case "true", "yes":
			*b = true
		case "false", "no", "", "boolean":
			*b = false
		default:
			return fmt.Errorf("invalid boolean %q", x)
		}
	default:
		return fmt.Errorf("invalid boolean %s", data)
	}
	return nil
}

// parseResponse decodes and validates the model's answer.
func parseResponse(raw string) (*types.ExtractionResult, error) {
	doc, err := FindJSON(raw)
	if err != nil {
		return nil, err
	}

	var rr rawResponse
	if err := json.Unmarshal([]byte(doc), &rr); err != nil {
		return nil, fmt.Errorf("decoding JSON: %w", err)
	}
	if rr.ContainsValidFoodItems == nil {
		return nil, errors.New("missing contains_valid_food_items")
	}

	result := &types.ExtractionResult{Items: []types.FoodExtractionItem{}}
	if !*rr.ContainsValidFoodItems {
		return result, nil
	}
	if rr.FoodItems == nil {
		return nil, errors.New("missing food_items")
	}

	var problems []string
	for i, it := range *rr.FoodItems {
		name := strings.TrimSpace(it.SearchName)
		msg := strings.TrimSpace(it.Message)
		if name == "" {
			problems = append(problems, fmt.Sprintf("item %d: empty search name", i))
			continue
		}
		if msg == "" {
			problems = append(problems, fmt.Sprintf("item %d: empty serving message", i))
			continue
		}
		result.Items = append(result.Items, types.FoodExtractionItem{
			SearchName:             name,
			FullDescriptiveMessage: msg,
			IsBranded:              bool(it.Branded),
			Brand:                  strings.TrimSpace(it.Brand),
			Hints:                  it.Hints,
		})
	}
	if len(problems) > 0 {
		return nil, errors.New(strings.Join(problems, "; "))
	}

	result.ContainsValidFoodItems = len(result.Items) > 0
	return result, nil
}

var fencedJSON = regexp.MustCompile("(?s)```(?:json)?\\s*\\n(.*?)\\n\\s*```")

// FindJSON returns the JSON object in raw: the last fenced block when the
// model used one, otherwise the span from the first '{' to the last '}'.
func FindJSON(raw string) (string, error) {
	if m := fencedJSON.FindAllStringSubmatch(raw, -1); len(m) > 0 {
		return m[len(m)-1][1], nil
	}
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end < start {
		return "", errors.New("no JSON object in response")
	}
	return raw[start : end+1], nil
}
