// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package complete fills unknown fields of a canonical food item. It
// grounds the model in web search results, asks for a CompletionPatch in
// JSON, evaluates any arithmetic expressions the model returned and merges
// the patch without overwriting known values.
package complete

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/pdiddy/food-resolver/internal/extract"
	"github.com/pdiddy/food-resolver/internal/llm"
	"github.com/pdiddy/food-resolver/internal/logging"
	"github.com/pdiddy/food-resolver/internal/retry"
	"github.com/pdiddy/food-resolver/pkg/types"
)

const (
	defaultMaxRetries     = 1
	defaultRetryStep      = 0.1
	defaultMaxTokens      = 2048
	DefaultWeightFallback = 10
)

// Completer is the part of the completion layer this package needs.
type Completer interface {
	Complete(ctx context.Context, req llm.Request) (string, error)
}

// Grounder returns web text relevant to a query.
type Grounder interface {
	Ground(ctx context.Context, query string) (string, error)
}

// MalformedOutputError reports a model answer that was not a usable patch.
type MalformedOutputError struct {
	Raw string
	Err error
}

func (e *MalformedOutputError) Error() string {
	return fmt.Sprintf("malformed completion output: %v", e.Err)
}

func (e *MalformedOutputError) Unwrap() error { return e.Err }

// NeedsCompletion reports whether item lacks its default serving amount
// (ml for liquids, grams otherwise) or has a serving of unknown weight.
func NeedsCompletion(item *types.CanonicalFoodItem) bool {
	if item == nil {
		return false
	}
	if item.WeightUnknown {
		return true
	}
	if item.IsLiquid {
		if !types.Known(item.DefaultServingLiquidMl) {
			return true
		}
	} else if !types.Known(item.DefaultServingWeightGram) {
		return true
	}
	for _, s := range item.Servings {
		if !types.Known(s.WeightGram) {
			return true
		}
	}
	return false
}

// Query builds the web search query for item.
func Query(item *types.CanonicalFoodItem) string {
	name := strings.TrimSpace(item.Name)
	if b := strings.TrimSpace(item.Brand); b != "" {
		name += " by " + b
	}
	return name + " nutrition weight calories protein fat carbs"
}

// Service runs missing-info completion.
type Service struct {
	llm    Completer
	ground Grounder
	cfg    types.CompletionConfig
	log    *zap.Logger
}

// New returns a Service. A nil grounder disables web grounding.
func New(c Completer, g Grounder, cfg types.CompletionConfig, log *zap.Logger) *Service {
	if cfg.WeightFallback <= 0 {
		cfg.WeightFallback = DefaultWeightFallback
	}
	return &Service{llm: c, ground: g, cfg: cfg, log: logging.OrNop(log)}
}

// Complete returns a copy of item with unknown fields filled. When the
// model output stays malformed after the retry, the result is nil and the
// error is a *MalformedOutputError; item itself is never modified.
func (s *Service) Complete(ctx context.Context, item *types.CanonicalFoodItem) (*types.CanonicalFoodItem, error) {
	if item == nil {
		return nil, errors.New("complete: nil item")
	}
	log := s.log.With(zap.String("food", item.Name), zap.String("source", string(item.Source)))

	grounding := ""
	if s.ground != nil {
		text, err := s.ground.Ground(ctx, Query(item))
		if err != nil {
			log.Info("grounding failed; completing without web text", zap.Error(err))
		} else {
			grounding = text
		}
	}

	prompt, err := renderPrompt(item, grounding)
	if err != nil {
		return nil, fmt.Errorf("rendering prompt: %w", err)
	}

	patch, err := retry.Do(ctx, s.policy(), func(ctx context.Context, a retry.Attempt) (*types.CompletionPatch, error) {
		raw, err := s.llm.Complete(ctx, llm.Request{
			System:      systemPrompt,
			Messages:    []llm.Message{{Role: llm.RoleUser, Content: prompt}},
			Provider:    s.cfg.Provider,
			Model:       s.cfg.Model,
			Temperature: a.Temperature,
			MaxTokens:   s.maxTokens(),
			Format:      types.FormatJSON,
		})
		if err != nil {
			return nil, err
		}
		p, err := parsePatch(raw)
		if err != nil {
			log.Warn("completion output rejected",
				zap.Int("attempt", a.Number),
				zap.Float64("temperature", a.Temperature),
				zap.Error(err))
			return nil, &MalformedOutputError{Raw: raw, Err: err}
		}
		return p, nil
	})
	if err != nil {
		return nil, err
	}

	out := Merge(item, patch, s.cfg.WeightFallback, log)
	log.Debug("completed food item", zap.String("reasoning", patch.Reasoning))
	return out, nil
}

func (s *Service) policy() retry.Policy {
	maxRetries := s.cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}
	step := s.cfg.RetryTemperatureStep
	if step <= 0 {
		step = defaultRetryStep
	}
	return retry.Policy{
		MaxRetries:      maxRetries,
		BaseTemperature: s.cfg.Temperature,
		Escalate:        retry.Step(step),
		Retryable: func(err error) bool {
			var mal *MalformedOutputError
			return errors.As(err, &mal)
		},
	}
}

func (s *Service) maxTokens() int {
	if s.cfg.MaxTokens > 0 {
		return s.cfg.MaxTokens
	}
	return defaultMaxTokens
}

func parsePatch(raw string) (*types.CompletionPatch, error) {
	doc, err := extract.FindJSON(raw)
	if err != nil {
		return nil, err
	}
	var p types.CompletionPatch
	if err := json.Unmarshal([]byte(doc), &p); err != nil {
		return nil, fmt.Errorf("decoding JSON: %w", err)
	}
	return &p, nil
}
