package types

import "time"

// HTTPConfig holds shared HTTP settings used by stages that make network requests.
type HTTPConfig struct {
	// Timeout is the HTTP request timeout.
	Timeout time.Duration `json:"timeout" yaml:"timeout" mapstructure:"timeout"`

	// UserAgent is the User-Agent header sent with HTTP requests
	// (e.g. "food-resolver/0.1").
	UserAgent string `json:"user_agent" yaml:"user_agent" mapstructure:"user_agent"`
}

// EmbeddingConfig holds settings for the embedding cache and its providers.
type EmbeddingConfig struct {
	HTTPConfig `yaml:",inline" mapstructure:",squash"`

	// Model selects the logical embedding model used for food queries.
	Model EmbeddingModel `json:"model" yaml:"model" mapstructure:"model"`

	OpenAIAPIKey        string `json:"openai_api_key,omitempty" yaml:"openai_api_key,omitempty" mapstructure:"openai_api_key"`
	CloudflareAccountID string `json:"cloudflare_account_id,omitempty" yaml:"cloudflare_account_id,omitempty" mapstructure:"cloudflare_account_id"`
	CloudflareAPIToken  string `json:"cloudflare_api_token,omitempty" yaml:"cloudflare_api_token,omitempty" mapstructure:"cloudflare_api_token"`
}

// ProviderKind selects the wire protocol of a completion provider.
type ProviderKind string

const (
	KindAnthropic ProviderKind = "anthropic"

	// KindOpenAI covers OpenAI and every OpenAI-compatible endpoint
	// (Groq, Fireworks).
	KindOpenAI ProviderKind = "openai"
)

// ProviderConfig describes one chat-completion backend.
type ProviderConfig struct {
	Name    string       `json:"name" yaml:"name" mapstructure:"name"`
	Kind    ProviderKind `json:"kind" yaml:"kind" mapstructure:"kind"`
	BaseURL string       `json:"base_url,omitempty" yaml:"base_url,omitempty" mapstructure:"base_url"`
	APIKey  string       `json:"api_key,omitempty" yaml:"api_key,omitempty" mapstructure:"api_key"`

	// Model is used when a request does not name a model for this provider.
	Model string `json:"model" yaml:"model" mapstructure:"model"`
}

// LLMConfig holds settings for the multi-provider completion layer.
type LLMConfig struct {
	HTTPConfig `yaml:",inline" mapstructure:",squash"`

	// Providers lists the backends in fallback order.
	Providers []ProviderConfig `json:"providers" yaml:"providers" mapstructure:"providers"`

	// CacheURL is a redis:// URL for the response cache. Empty selects the
	// in-process cache.
	CacheURL string `json:"cache_url,omitempty" yaml:"cache_url,omitempty" mapstructure:"cache_url"`

	// CacheTTL bounds how long cached completions live (default 30 days).
	CacheTTL time.Duration `json:"cache_ttl" yaml:"cache_ttl" mapstructure:"cache_ttl"`
}

// AIConfig holds shared settings for stages that call the completion layer.
type AIConfig struct {
	// Provider is the preferred provider name; the rest act as fallbacks.
	Provider string `json:"provider" yaml:"provider" mapstructure:"provider"`

	// Model is the model identifier sent to the preferred provider.
	Model string `json:"model" yaml:"model" mapstructure:"model"`

	MaxTokens int `json:"max_tokens" yaml:"max_tokens" mapstructure:"max_tokens"`

	// MaxRetries is the number of retries after a malformed response (default 1).
	MaxRetries int `json:"max_retries" yaml:"max_retries" mapstructure:"max_retries"`

	// Temperature is the first-attempt temperature.
	Temperature float64 `json:"temperature" yaml:"temperature" mapstructure:"temperature"`

	// RetryTemperatureStep is added to the temperature on every retry.
	RetryTemperatureStep float64 `json:"retry_temperature_step" yaml:"retry_temperature_step" mapstructure:"retry_temperature_step"`
}

// ExtractionConfig holds settings for natural-language food extraction.
type ExtractionConfig struct {
	AIConfig `yaml:",inline" mapstructure:",squash"`
}

// SourceConfig holds credentials and tunables for one nutrition source.
type SourceConfig struct {
	Enabled bool `json:"enabled" yaml:"enabled" mapstructure:"enabled"`

	APIKey       string `json:"api_key,omitempty" yaml:"api_key,omitempty" mapstructure:"api_key"`
	AppID        string `json:"app_id,omitempty" yaml:"app_id,omitempty" mapstructure:"app_id"`
	ClientID     string `json:"client_id,omitempty" yaml:"client_id,omitempty" mapstructure:"client_id"`
	ClientSecret string `json:"client_secret,omitempty" yaml:"client_secret,omitempty" mapstructure:"client_secret"`

	// Threshold is the minimum cosine similarity a candidate must reach.
	// Nil means the source's default; any set value, including 0 or a
	// negative one, is used as is.
	Threshold *float64 `json:"threshold,omitempty" yaml:"threshold,omitempty" mapstructure:"threshold"`

	// RequestsPerSecond throttles calls to the source API. Zero disables throttling.
	RequestsPerSecond float64 `json:"requests_per_second" yaml:"requests_per_second" mapstructure:"requests_per_second"`

	// PageSize is how many keyword-search results are requested.
	PageSize int `json:"page_size" yaml:"page_size" mapstructure:"page_size"`
}

// SearchConfig holds settings for multi-source similarity search.
type SearchConfig struct {
	HTTPConfig `yaml:",inline" mapstructure:",squash"`

	// TopK caps each source's shortlist (default 3).
	TopK int `json:"top_k" yaml:"top_k" mapstructure:"top_k"`

	// Priority orders sources when a single match is needed.
	Priority []FoodSource `json:"priority" yaml:"priority" mapstructure:"priority"`

	USDA        SourceConfig `json:"usda" yaml:"usda" mapstructure:"usda"`
	Nutritionix SourceConfig `json:"nutritionix" yaml:"nutritionix" mapstructure:"nutritionix"`
	FatSecret   SourceConfig `json:"fatsecret" yaml:"fatsecret" mapstructure:"fatsecret"`
	Local       SourceConfig `json:"local" yaml:"local" mapstructure:"local"`
}

// Source returns the configuration of the named source.
func (c SearchConfig) Source(s FoodSource) SourceConfig {
	switch s {
	case SourceUSDA:
		return c.USDA
	case SourceNutritionix:
		return c.Nutritionix
	case SourceFatSecret:
		return c.FatSecret
	case SourceLocal:
		return c.Local
	}
	return SourceConfig{}
}

// GroundingConfig holds settings for web search grounding.
type GroundingConfig struct {
	HTTPConfig `yaml:",inline" mapstructure:",squash"`

	SerperAPIKey string `json:"serper_api_key,omitempty" yaml:"serper_api_key,omitempty" mapstructure:"serper_api_key"`

	// NumResults is how many distinct-domain pages are fetched (default 4).
	NumResults int `json:"num_results" yaml:"num_results" mapstructure:"num_results"`

	// PageTimeout bounds each page fetch (default 2s).
	PageTimeout time.Duration `json:"page_timeout" yaml:"page_timeout" mapstructure:"page_timeout"`

	// MaxConcurrent bounds concurrent page fetches (default 4).
	MaxConcurrent int `json:"max_concurrent" yaml:"max_concurrent" mapstructure:"max_concurrent"`

	// TokenBudget caps the grounding text handed to the model (default 3000).
	TokenBudget int `json:"token_budget" yaml:"token_budget" mapstructure:"token_budget"`

	// DenyDomains lists base domains never fetched.
	DenyDomains []string `json:"deny_domains" yaml:"deny_domains" mapstructure:"deny_domains"`
}

// CompletionConfig holds settings for missing-info completion.
type CompletionConfig struct {
	AIConfig `yaml:",inline" mapstructure:",squash"`

	// WeightFallback replaces weight expressions that fail to evaluate (default 10).
	WeightFallback float64 `json:"weight_fallback" yaml:"weight_fallback" mapstructure:"weight_fallback"`
}

// StoreConfig holds settings for the SQLite store.
type StoreConfig struct {
	// Path is the SQLite database file.
	Path string `json:"path" yaml:"path" mapstructure:"path"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `json:"level" yaml:"level" mapstructure:"level"`

	// Format is "console" or "json".
	Format string `json:"format" yaml:"format" mapstructure:"format"`
}

// Config groups all stage configurations for the pipeline.
type Config struct {
	Embedding  EmbeddingConfig  `json:"embedding" yaml:"embedding" mapstructure:"embedding"`
	LLM        LLMConfig        `json:"llm" yaml:"llm" mapstructure:"llm"`
	Extraction ExtractionConfig `json:"extraction" yaml:"extraction" mapstructure:"extraction"`
	Search     SearchConfig     `json:"search" yaml:"search" mapstructure:"search"`
	Grounding  GroundingConfig  `json:"grounding" yaml:"grounding" mapstructure:"grounding"`
	Completion CompletionConfig `json:"completion" yaml:"completion" mapstructure:"completion"`
	Store      StoreConfig      `json:"store" yaml:"store" mapstructure:"store"`
	Log        LogConfig        `json:"log" yaml:"log" mapstructure:"log"`
}
