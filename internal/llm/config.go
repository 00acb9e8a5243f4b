// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package llm

import (
	"fmt"
	"net/http"

	"github.com/pdiddy/food-resolver/pkg/types"
)

// NewProvider builds the provider described by pc. An empty Kind is inferred
// from the name: "anthropic" speaks the Messages API, everything else the
// OpenAI chat-completions format.
func NewProvider(pc types.ProviderConfig, client *http.Client) (Provider, error) {
	if pc.Name == "" {
		return nil, fmt.Errorf("provider has no name")
	}
	kind := pc.Kind
	if kind == "" {
		kind = types.KindOpenAI
		if pc.Name == "anthropic" {
			kind = types.KindAnthropic
		}
	}

	switch kind {
	case types.KindAnthropic:
		return &AnthropicProvider{ProviderName: pc.Name, APIKey: pc.APIKey, Model: pc.Model, BaseURL: pc.BaseURL, Client: client}, nil
	case types.KindOpenAI:
		if pc.BaseURL == "" && DefaultChatURL(pc.Name) == "" {
			return nil, fmt.Errorf("provider %q needs a base_url", pc.Name)
		}
		return &OpenAICompatProvider{ProviderName: pc.Name, APIKey: pc.APIKey, Model: pc.Model, BaseURL: pc.BaseURL, Client: client}, nil
	default:
		return nil, fmt.Errorf("provider %q: unknown kind %q", pc.Name, kind)
	}
}

// NewProviders builds every configured provider, skipping entries without
// an API key.
func NewProviders(cfgs []types.ProviderConfig, client *http.Client) ([]Provider, error) {
	var out []Provider
	for _, pc := range cfgs {
		if pc.APIKey == "" {
			continue
		}
		p, err := NewProvider(pc, client)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}
