// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package llm is the multi-provider chat-completion layer. A Client checks
// the response cache, then tries providers in order, moving on only when a
// provider is rate limited. Fresh calls are recorded as usage; cached
// answers are not.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/pdiddy/food-resolver/pkg/types"
)

// Role names a chat message author.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one turn of a conversation.
type Message struct {
	Role    Role     `json:"role"`
	Content string   `json:"content"`
	Images  []string `json:"images,omitempty"`
}

// Request is a provider-independent completion request.
type Request struct {
	System   string
	Messages []Message

	// Provider names the preferred provider. Empty selects the first
	// configured provider.
	Provider string

	// Model applies to the preferred provider; fallbacks use their own
	// default model.
	Model string

	Temperature float64
	MaxTokens   int
	Format      types.ResponseFormat
}

// UserPrompt builds a single-turn request.
func UserPrompt(system, user string) Request {
	return Request{System: system, Messages: []Message{{Role: RoleUser, Content: user}}}
}

// Cacheable reports whether the request may be answered from the response
// cache. Multimodal requests are never cached.
func (r Request) Cacheable() bool {
	if len(r.Messages) == 0 {
		return false
	}
	for _, m := range r.Messages {
		if len(m.Images) > 0 {
			return false
		}
	}
	return true
}

// Key returns the cache identity of the request. A single user message is
// used verbatim; longer conversations are serialized.
func (r Request) Key() types.ProviderCallKey {
	user := ""
	if len(r.Messages) == 1 {
		user = r.Messages[0].Content
	} else if b, err := json.Marshal(r.Messages); err == nil {
		user = string(b)
	}
	format := r.Format
	if format == "" {
		format = types.FormatText
	}
	return types.ProviderCallKey{
		SystemPrompt: r.System,
		UserMessage:  user,
		Model:        r.Model,
		Temperature:  r.Temperature,
		MaxTokens:    r.MaxTokens,
		Format:       format,
	}
}

// Usage holds provider-reported token counts.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
}

// Response is the result of a non-streaming completion.
type Response struct {
	Text  string
	Usage Usage
}

// Provider is one chat-completion backend. Stream calls emit for every text
// chunk in arrival order and returns once the stream ends; an emit error
// aborts the stream.
type Provider interface {
	Name() string
	DefaultModel() string
	Complete(ctx context.Context, req Request) (Response, error)
	Stream(ctx context.Context, req Request, emit func(string) error) (Usage, error)
}

// RateLimitError marks a provider failure that warrants trying the next
// provider: HTTP 429, overload responses, or a typed rate-limit error.
type RateLimitError struct {
	Provider string
	Err      error
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("%s rate limited: %v", e.Provider, e.Err)
}

func (e *RateLimitError) Unwrap() error { return e.Err }

// IsRateLimit reports whether err is, or wraps, a RateLimitError.
func IsRateLimit(err error) bool {
	var rl *RateLimitError
	return errors.As(err, &rl)
}

// ExhaustedError is returned when every provider was rate limited.
type ExhaustedError struct {
	Errs []error
}

func (e *ExhaustedError) Error() string {
	msgs := make([]string, len(e.Errs))
	for i, err := range e.Errs {
		msgs[i] = err.Error()
	}
	return "all completion providers failed: " + strings.Join(msgs, "; ")
}

func (e *ExhaustedError) Unwrap() []error { return e.Errs }
