// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"math"
	"time"

	"github.com/spf13/viper"

	"github.com/pdiddy/food-resolver/internal/complete"
	"github.com/pdiddy/food-resolver/internal/search"
	"github.com/pdiddy/food-resolver/internal/websearch"
	"github.com/pdiddy/food-resolver/pkg/types"
)

const defaultUserAgent = "food-resolver/0.1"

// setDefaults registers every default so that configuration files and
// FOOD_RESOLVER_* environment variables only need to name what differs.
func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("store.path", "data/food-resolver.db")

	v.SetDefault("embedding.model", string(types.ModelBGEBase))
	v.SetDefault("embedding.timeout", 30*time.Second)
	v.SetDefault("embedding.user_agent", defaultUserAgent)

	v.SetDefault("llm.timeout", 90*time.Second)
	v.SetDefault("llm.cache_url", "")
	v.SetDefault("llm.cache_ttl", 30*24*time.Hour)

	v.SetDefault("extraction.provider", "openai")
	v.SetDefault("extraction.model", "gpt-4o-mini")
	v.SetDefault("extraction.max_retries", 1)
	v.SetDefault("extraction.temperature", 0.0)
	v.SetDefault("extraction.retry_temperature_step", 0.3)

	v.SetDefault("completion.provider", "openai")
	v.SetDefault("completion.model", "gpt-4-turbo")
	v.SetDefault("completion.max_retries", 1)
	v.SetDefault("completion.temperature", 0.0)
	v.SetDefault("completion.retry_temperature_step", 0.1)
	v.SetDefault("completion.weight_fallback", complete.DefaultWeightFallback)

	v.SetDefault("search.timeout", 20*time.Second)
	v.SetDefault("search.user_agent", defaultUserAgent)
	v.SetDefault("search.top_k", search.DefaultTopK)
	priority := make([]string, len(search.DefaultPriority))
	for i, s := range search.DefaultPriority {
		priority[i] = string(s)
	}
	v.SetDefault("search.priority", priority)
	for s, threshold := range search.DefaultThresholds {
		key := "search." + sourceKey(s)
		v.SetDefault(key+".enabled", true)
		v.SetDefault(key+".threshold", threshold)
		v.SetDefault(key+".page_size", 25)
		v.SetDefault(key+".requests_per_second", 0.0)
	}
	for _, key := range []string{"api_key", "app_id", "client_id", "client_secret"} {
		for s := range search.DefaultThresholds {
			v.SetDefault("search."+sourceKey(s)+"."+key, "")
		}
	}

	v.SetDefault("grounding.timeout", 10*time.Second)
	v.SetDefault("grounding.serper_api_key", "")
	v.SetDefault("grounding.num_results", websearch.DefaultNumResults)
	v.SetDefault("grounding.page_timeout", websearch.DefaultPageTimeout)
	v.SetDefault("grounding.max_concurrent", websearch.DefaultMaxConcurrent)
	v.SetDefault("grounding.token_budget", websearch.DefaultTokenBudget)
	v.SetDefault("grounding.deny_domains", websearch.DefaultDenyDomains)
}

func sourceKey(s types.FoodSource) string {
	switch s {
	case types.SourceUSDA:
		return "usda"
	case types.SourceNutritionix:
		return "nutritionix"
	case types.SourceFatSecret:
		return "fatsecret"
	}
	return "local"
}

// loadConfig decodes the merged viper settings and fills credentials from
// the loaded secrets where the configuration leaves them empty.
func loadConfig() (types.Config, error) {
	var cfg types.Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("decoding configuration: %w", err)
	}

	if len(cfg.LLM.Providers) == 0 {
		cfg.LLM.Providers = defaultProviders()
	}
	for i := range cfg.LLM.Providers {
		p := &cfg.LLM.Providers[i]
		p.APIKey = secretDefault(p.Name+"-api-key", p.APIKey)
	}

	cfg.Embedding.OpenAIAPIKey = secretDefault("openai-api-key", cfg.Embedding.OpenAIAPIKey)
	cfg.Embedding.CloudflareAccountID = secretDefault("cloudflare-account-id", cfg.Embedding.CloudflareAccountID)
	cfg.Embedding.CloudflareAPIToken = secretDefault("cloudflare-api-token", cfg.Embedding.CloudflareAPIToken)

	cfg.Search.USDA.APIKey = secretDefault("usda-api-key", cfg.Search.USDA.APIKey)
	cfg.Search.Nutritionix.AppID = secretDefault("nutritionix-app-id", cfg.Search.Nutritionix.AppID)
	cfg.Search.Nutritionix.APIKey = secretDefault("nutritionix-api-key", cfg.Search.Nutritionix.APIKey)
	cfg.Search.FatSecret.ClientID = secretDefault("fatsecret-client-id", cfg.Search.FatSecret.ClientID)
	cfg.Search.FatSecret.ClientSecret = secretDefault("fatsecret-client-secret", cfg.Search.FatSecret.ClientSecret)

	cfg.Grounding.SerperAPIKey = secretDefault("serper-api-key", cfg.Grounding.SerperAPIKey)

	if cfg.Embedding.Model.Dimensions() == 0 {
		return cfg, fmt.Errorf("unknown embedding model %q (want ada or bge-base)", cfg.Embedding.Model)
	}
	for s := range search.DefaultThresholds {
		if t := cfg.Search.Source(s).Threshold; t != nil && (math.IsNaN(*t) || *t < -1 || *t > 1) {
			return cfg, fmt.Errorf("search.%s.threshold: %v is outside [-1, 1]", sourceKey(s), *t)
		}
	}
	for i, s := range cfg.Search.Priority {
		parsed, err := types.ParseFoodSource(string(s))
		if err != nil {
			return cfg, fmt.Errorf("search.priority: %w", err)
		}
		cfg.Search.Priority[i] = parsed
	}
	return cfg, nil
}

// defaultProviders lists the completion backends in fallback order.
func defaultProviders() []types.ProviderConfig {
	return []types.ProviderConfig{
		{Name: "openai", Kind: types.KindOpenAI, Model: "gpt-4-turbo"},
		{Name: "groq", Kind: types.KindOpenAI, Model: "llama3-70b-8192"},
		{Name: "fireworks", Kind: types.KindOpenAI, Model: "accounts/fireworks/models/llama-v3-70b-instruct"},
		{Name: "anthropic", Kind: types.KindAnthropic, Model: "claude-3-5-sonnet-latest"},
	}
}
