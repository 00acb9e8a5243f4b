// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package search

import (
	"net/http"

	"github.com/go-resty/resty/v2"

	"github.com/pdiddy/food-resolver/pkg/types"
)

// NewSources builds the enabled sources from configuration. API-backed
// sources without credentials are skipped; the local source is added when
// a mirror is given.
func NewSources(cfg types.SearchConfig, client *http.Client, emb Embedder, model types.EmbeddingModel, mirror FoodMirror) []Source {
	var sources []Source
	if c := cfg.USDA; c.Enabled && c.APIKey != "" {
		sources = append(sources, &USDASource{
			APIKey:     c.APIKey,
			Client:     client,
			UserAgent:  cfg.UserAgent,
			PageSize:   c.PageSize,
			Embeddings: emb,
			Model:      model,
			Limiter:    NewLimiter(c.RequestsPerSecond),
		})
	}
	if c := cfg.Nutritionix; c.Enabled && c.AppID != "" && c.APIKey != "" {
		sources = append(sources, &NutritionixSource{
			AppID:      c.AppID,
			AppKey:     c.APIKey,
			Client:     client,
			UserAgent:  cfg.UserAgent,
			Embeddings: emb,
			Model:      model,
			Limiter:    NewLimiter(c.RequestsPerSecond),
		})
	}
	if c := cfg.FatSecret; c.Enabled && c.ClientID != "" && c.ClientSecret != "" {
		tokenClient := resty.New()
		if client != nil {
			tokenClient = resty.NewWithClient(client)
		}
		sources = append(sources, &FatSecretSource{
			Tokens:     &TokenSource{ClientID: c.ClientID, ClientSecret: c.ClientSecret, Client: tokenClient},
			Client:     client,
			UserAgent:  cfg.UserAgent,
			PageSize:   c.PageSize,
			Embeddings: emb,
			Model:      model,
			Limiter:    NewLimiter(c.RequestsPerSecond),
		})
	}
	if cfg.Local.Enabled && mirror != nil {
		sources = append(sources, &LocalSource{Mirror: mirror})
	}
	return sources
}
