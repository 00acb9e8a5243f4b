// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pdiddy/food-resolver/internal/logging"
	"github.com/pdiddy/food-resolver/pkg/types"
)

// replayChunkSize is the chunk length used when a cached answer is served
// to a streaming caller.
const replayChunkSize = 4

// UsageRecorder persists one record per fresh provider call. The store
// package's SQLite implementation satisfies it.
type UsageRecorder interface {
	RecordUsage(ctx context.Context, rec types.UsageRecord) error
}

// Chunk is one element of a completion stream. A chunk with a non-nil Err
// is the last one sent.
type Chunk struct {
	Text string
	Err  error
}

// Client answers completion requests from the cache or from the first
// provider that is not rate limited.
type Client struct {
	providers []Provider
	cache     Cache
	usage     UsageRecorder
	log       *zap.Logger
}

// NewClient returns a Client trying providers in the given order. cache and
// usage may be nil.
func NewClient(cache Cache, usage UsageRecorder, log *zap.Logger, providers ...Provider) *Client {
	return &Client{providers: providers, cache: cache, usage: usage, log: logging.OrNop(log)}
}

// Complete returns the full completion text for req.
func (c *Client) Complete(ctx context.Context, req Request) (string, error) {
	key := req.Key().String()
	if text, ok := c.lookup(ctx, req, key); ok {
		return text, nil
	}

	var errs []error
	for _, p := range c.order(req.Provider) {
		preq := c.forProvider(p, req)
		start := time.Now()
		resp, err := p.Complete(ctx, preq)
		if err != nil {
			if IsRateLimit(err) {
				c.log.Warn("provider rate limited, failing over", zap.String("provider", p.Name()), zap.Error(err))
				errs = append(errs, err)
				continue
			}
			return "", fmt.Errorf("%s completion: %w", p.Name(), err)
		}

		c.record(ctx, p.Name(), preq.Model, resp.Usage, time.Since(start))
		c.store(ctx, req, key, resp.Text)
		return resp.Text, nil
	}
	return "", c.exhausted(errs)
}

// Stream returns a channel of completion chunks in arrival order. The
// channel is closed when the stream ends; a failure is delivered as a final
// Chunk with Err set. A cached answer is replayed in short chunks. Failover
// happens only while nothing has been emitted yet.
func (c *Client) Stream(ctx context.Context, req Request) (<-chan Chunk, error) {
	if len(c.providers) == 0 {
		return nil, fmt.Errorf("no completion providers configured")
	}

	out := make(chan Chunk)
	key := req.Key().String()

	if text, ok := c.lookup(ctx, req, key); ok {
		go func() {
			defer close(out)
			replay(ctx, out, text)
		}()
		return out, nil
	}

	go func() {
		defer close(out)
		if err := c.stream(ctx, req, key, out); err != nil {
			select {
			case out <- Chunk{Err: err}:
			case <-ctx.Done():
			}
		}
	}()
	return out, nil
}

func (c *Client) stream(ctx context.Context, req Request, key string, out chan<- Chunk) error {
	var errs []error
	for _, p := range c.order(req.Provider) {
		preq := c.forProvider(p, req)

		var buf []byte
		emitted := false
		emit := func(s string) error {
			emitted = true
			buf = append(buf, s...)
			select {
			case out <- Chunk{Text: s}:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		start := time.Now()
		usage, err := p.Stream(ctx, preq, emit)
		if err != nil {
			if IsRateLimit(err) && !emitted {
				c.log.Warn("provider rate limited, failing over", zap.String("provider", p.Name()), zap.Error(err))
				errs = append(errs, err)
				continue
			}
			return fmt.Errorf("%s stream: %w", p.Name(), err)
		}

		c.record(ctx, p.Name(), preq.Model, usage, time.Since(start))
		c.store(ctx, req, key, string(buf))
		return nil
	}
	return c.exhausted(errs)
}

// replay emits text in fixed-size chunks.
func replay(ctx context.Context, out chan<- Chunk, text string) {
	runes := []rune(text)
	for start := 0; start < len(runes); start += replayChunkSize {
		end := min(start+replayChunkSize, len(runes))
		select {
		case out <- Chunk{Text: string(runes[start:end])}:
		case <-ctx.Done():
			return
		}
	}
}

// order puts the preferred provider first, keeping the rest in configured
// order.
func (c *Client) order(preferred string) []Provider {
	if preferred == "" {
		return c.providers
	}
	out := make([]Provider, 0, len(c.providers))
	for _, p := range c.providers {
		if p.Name() == preferred {
			out = append(out, p)
		}
	}
	for _, p := range c.providers {
		if p.Name() != preferred {
			out = append(out, p)
		}
	}
	return out
}

// forProvider resolves the model used against p.
func (c *Client) forProvider(p Provider, req Request) Request {
	preferred := req.Provider == p.Name() || (req.Provider == "" && len(c.providers) > 0 && c.providers[0] == p)
	if !preferred || req.Model == "" {
		req.Model = p.DefaultModel()
	}
	return req
}

func (c *Client) lookup(ctx context.Context, req Request, key string) (string, bool) {
	if c.cache == nil || !req.Cacheable() {
		return "", false
	}
	text, ok, err := c.cache.Get(ctx, key)
	if err != nil {
		c.log.Warn("completion cache read failed", zap.Error(err))
		return "", false
	}
	if ok {
		c.log.Debug("completion cache hit", zap.String("model", req.Model))
	}
	return text, ok
}

func (c *Client) store(ctx context.Context, req Request, key, text string) {
	if c.cache == nil || !req.Cacheable() {
		return
	}
	if err := c.cache.PutIfAbsent(ctx, key, text); err != nil {
		c.log.Warn("completion cache write failed", zap.Error(err))
	}
}

func (c *Client) record(ctx context.Context, provider, model string, u Usage, latency time.Duration) {
	c.log.Info("completion usage",
		zap.String("provider", provider),
		zap.String("model", model),
		zap.Int("prompt_tokens", u.PromptTokens),
		zap.Int("completion_tokens", u.CompletionTokens),
		zap.Duration("latency", latency))

	if c.usage == nil {
		return
	}
	rec := types.UsageRecord{
		ID:               uuid.New(),
		Provider:         provider,
		Model:            model,
		PromptTokens:     u.PromptTokens,
		CompletionTokens: u.CompletionTokens,
		Latency:          latency,
		CreatedAt:        time.Now().UTC(),
	}
	if err := c.usage.RecordUsage(ctx, rec); err != nil {
		c.log.Warn("recording usage failed", zap.Error(err))
	}
}

func (c *Client) exhausted(errs []error) error {
	if len(errs) == 0 {
		return fmt.Errorf("no completion providers configured")
	}
	return &ExhaustedError{Errs: errs}
}
