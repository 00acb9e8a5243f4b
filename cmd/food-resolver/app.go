// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/pdiddy/food-resolver/internal/complete"
	"github.com/pdiddy/food-resolver/internal/embedding"
	"github.com/pdiddy/food-resolver/internal/extract"
	"github.com/pdiddy/food-resolver/internal/llm"
	"github.com/pdiddy/food-resolver/internal/logging"
	"github.com/pdiddy/food-resolver/internal/pipeline"
	"github.com/pdiddy/food-resolver/internal/search"
	"github.com/pdiddy/food-resolver/internal/store"
	"github.com/pdiddy/food-resolver/internal/websearch"
	"github.com/pdiddy/food-resolver/pkg/types"
)

// app holds the wired pipeline components for one CLI invocation.
type app struct {
	cfg   types.Config
	log   *zap.Logger
	store *store.Store

	embeddings *embedding.Cache
	llm        *llm.Client
	extractor  *extract.Extractor
	completer  *complete.Service
	sources    []search.Source

	closers []func() error
}

// newApp loads configuration and wires every component. Callers must Close it.
func newApp(ctx context.Context) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	log, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, log: log}
	a.closers = append(a.closers, func() error { _ = log.Sync(); return nil })

	if dir := filepath.Dir(cfg.Store.Path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating %s: %w", dir, err)
		}
	}
	st, err := store.Open(cfg.Store)
	if err != nil {
		return nil, err
	}
	a.store = st
	a.closers = append(a.closers, st.Close)

	embedClient := &http.Client{Timeout: cfg.Embedding.Timeout}
	var embedders []embedding.Embedder
	if cfg.Embedding.OpenAIAPIKey != "" {
		embedders = append(embedders, &embedding.OpenAIEmbedder{APIKey: cfg.Embedding.OpenAIAPIKey, Client: embedClient})
	}
	if cfg.Embedding.CloudflareAccountID != "" && cfg.Embedding.CloudflareAPIToken != "" {
		embedders = append(embedders, &embedding.CloudflareEmbedder{
			AccountID: cfg.Embedding.CloudflareAccountID,
			APIToken:  cfg.Embedding.CloudflareAPIToken,
			Client:    embedClient,
		})
	}
	a.embeddings = embedding.NewCache(st, log.Named("embedding"), embedders...)

	providers, err := llm.NewProviders(cfg.LLM.Providers, &http.Client{Timeout: cfg.LLM.Timeout})
	if err != nil {
		a.Close()
		return nil, err
	}
	cache, err := a.responseCache(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.llm = llm.NewClient(cache, st, log.Named("llm"), providers...)
	a.extractor = extract.New(a.llm, cfg.Extraction, log.Named("extract"))

	var grounder complete.Grounder
	if cfg.Grounding.SerperAPIKey != "" {
		rc := resty.New().SetTimeout(cfg.Grounding.Timeout)
		serper := &websearch.SerperClient{APIKey: cfg.Grounding.SerperAPIKey, HTTP: rc}
		grounder = websearch.NewGrounder(serper, rc, cfg.Grounding, log.Named("websearch"))
	} else {
		log.Debug("no serper key; completion runs without web grounding")
	}
	a.completer = complete.New(a.llm, grounder, cfg.Completion, log.Named("complete"))

	var mirror search.FoodMirror
	if cfg.Search.Local.Enabled {
		mirror = st
	}
	a.sources = search.NewSources(cfg.Search, &http.Client{Timeout: cfg.Search.Timeout}, a.embeddings, cfg.Embedding.Model, mirror)
	return a, nil
}

// responseCache selects redis when a cache URL is configured and an
// in-process cache otherwise.
func (a *app) responseCache(ctx context.Context) (llm.Cache, error) {
	if a.cfg.LLM.CacheURL == "" {
		return llm.NewMemoryCache(a.cfg.LLM.CacheTTL), nil
	}
	client, err := llm.DialRedis(ctx, a.cfg.LLM.CacheURL)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, client.Close)
	return llm.NewRedisCache(client, a.cfg.LLM.CacheTTL), nil
}

func (a *app) resolver(withCompletion, withSave bool) *pipeline.Resolver {
	r := &pipeline.Resolver{
		Extractor:  a.extractor,
		Embeddings: a.embeddings,
		Sources:    a.sources,
		Search:     a.cfg.Search,
		Model:      a.cfg.Embedding.Model,
		Log:        a.log.Named("pipeline"),
	}
	if withCompletion {
		r.Completion = a.completer
	}
	if withSave {
		r.Saver = a.store
	}
	return r
}

func (a *app) source(name types.FoodSource) (search.Source, error) {
	for _, s := range a.sources {
		if s.Name() == name {
			return s, nil
		}
	}
	return nil, fmt.Errorf("source %s is disabled or has no credentials", name)
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		_ = a.closers[i]()
	}
}
