// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/pdiddy/food-resolver/internal/httputil"
	"github.com/pdiddy/food-resolver/pkg/types"
)

// Chat-completions endpoints of the OpenAI-compatible providers.
var (
	openAIChatURL    = "https://api.openai.com/v1/chat/completions"
	groqChatURL      = "https://api.groq.com/openai/v1/chat/completions"
	fireworksChatURL = "https://api.fireworks.ai/inference/v1/chat/completions"
)

// DefaultChatURL returns the known endpoint for an OpenAI-compatible
// provider name, or "" when the name is not recognized.
func DefaultChatURL(name string) string {
	switch name {
	case "openai":
		return openAIChatURL
	case "groq":
		return groqChatURL
	case "fireworks":
		return fireworksChatURL
	}
	return ""
}

// OpenAICompatProvider calls any chat-completions API that follows the
// OpenAI wire format (OpenAI, Groq, Fireworks).
type OpenAICompatProvider struct {
	ProviderName string
	APIKey       string
	Model        string
	BaseURL      string
	Client       *http.Client
}

func (p *OpenAICompatProvider) Name() string         { return p.ProviderName }
func (p *OpenAICompatProvider) DefaultModel() string { return p.Model }

type chatRequest struct {
	Model          string         `json:"model"`
	Messages       []chatMessage  `json:"messages"`
	Temperature    float64        `json:"temperature"`
	MaxTokens      int            `json:"max_tokens,omitempty"`
	ResponseFormat *chatFormat    `json:"response_format,omitempty"`
	Stream         bool           `json:"stream,omitempty"`
	StreamOptions  *streamOptions `json:"stream_options,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type chatPart struct {
	Type     string        `json:"type"`
	Text     string        `json:"text,omitempty"`
	ImageURL *chatImageURL `json:"image_url,omitempty"`
}

type chatImageURL struct {
	URL string `json:"url"`
}

type chatFormat struct {
	Type string `json:"type"`
}

type streamOptions struct {
	IncludeUsage bool `json:"include_usage"`
}

type chatUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage chatUsage `json:"usage"`
}

type chatChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
	Usage *chatUsage `json:"usage"`
}

// Complete sends a non-streaming chat-completions request.
func (p *OpenAICompatProvider) Complete(ctx context.Context, req Request) (Response, error) {
	resp, err := p.do(ctx, req, false)
	if err != nil {
		return Response{}, err
	}
	defer resp.Body.Close()

	var cr chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
		return Response{}, fmt.Errorf("parsing %s response: %w", p.Name(), err)
	}
	if len(cr.Choices) == 0 {
		return Response{}, fmt.Errorf("%s returned no choices", p.Name())
	}
	return Response{
		Text:  cr.Choices[0].Message.Content,
		Usage: Usage{PromptTokens: cr.Usage.PromptTokens, CompletionTokens: cr.Usage.CompletionTokens},
	}, nil
}

// Stream sends a streaming request and emits content deltas until [DONE].
func (p *OpenAICompatProvider) Stream(ctx context.Context, req Request, emit func(string) error) (Usage, error) {
	resp, err := p.do(ctx, req, true)
	if err != nil {
		return Usage{}, err
	}
	defer resp.Body.Close()

	var usage Usage
	err = readSSE(resp.Body, func(data string) error {
		if data == "[DONE]" {
			return nil
		}
		var ch chatChunk
		if err := json.Unmarshal([]byte(data), &ch); err != nil {
			return fmt.Errorf("parsing %s stream chunk: %w", p.Name(), err)
		}
		if ch.Usage != nil {
			usage = Usage{PromptTokens: ch.Usage.PromptTokens, CompletionTokens: ch.Usage.CompletionTokens}
		}
		if len(ch.Choices) > 0 && ch.Choices[0].Delta.Content != "" {
			return emit(ch.Choices[0].Delta.Content)
		}
		return nil
	})
	return usage, err
}

func (p *OpenAICompatProvider) do(ctx context.Context, req Request, stream bool) (*http.Response, error) {
	url := p.BaseURL
	if url == "" {
		url = DefaultChatURL(p.ProviderName)
	}
	if url == "" {
		return nil, fmt.Errorf("no endpoint configured for provider %q", p.ProviderName)
	}

	body, err := json.Marshal(p.buildRequest(req, stream))
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.APIKey)

	resp, err := httputil.DoWithRetry(ctx, p.Client, httpReq, -1)
	if err != nil {
		return nil, fmt.Errorf("calling %s: %w", p.Name(), err)
	}
	if err := httputil.CheckStatus(resp, p.Name()); err != nil {
		resp.Body.Close()
		return nil, classify(p.Name(), err)
	}
	return resp, nil
}

func (p *OpenAICompatProvider) buildRequest(req Request, stream bool) chatRequest {
	msgs := make([]chatMessage, 0, len(req.Messages)+1)
	if req.System != "" {
		msgs = append(msgs, chatMessage{Role: "system", Content: req.System})
	}
	for _, m := range req.Messages {
		if len(m.Images) == 0 {
			msgs = append(msgs, chatMessage{Role: string(m.Role), Content: m.Content})
			continue
		}
		parts := []chatPart{{Type: "text", Text: m.Content}}
		for _, img := range m.Images {
			parts = append(parts, chatPart{Type: "image_url", ImageURL: &chatImageURL{URL: img}})
		}
		msgs = append(msgs, chatMessage{Role: string(m.Role), Content: parts})
	}

	cr := chatRequest{
		Model:       req.Model,
		Messages:    msgs,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		Stream:      stream,
	}
	if req.Format == types.FormatJSON {
		cr.ResponseFormat = &chatFormat{Type: string(types.FormatJSON)}
	}
	if stream {
		cr.StreamOptions = &streamOptions{IncludeUsage: true}
	}
	return cr
}
