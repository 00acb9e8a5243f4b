// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/pdiddy/food-resolver/internal/httputil"
	"github.com/pdiddy/food-resolver/pkg/types"
)

// anthropicAPIURL is the Messages API endpoint. Package-level var for test
// substitution.
var anthropicAPIURL = "https://api.anthropic.com/v1/messages"

const (
	anthropicVersion       = "2023-06-01"
	anthropicDefaultTokens = 4096

	// statusOverloaded is Anthropic's "overloaded" status.
	statusOverloaded = 529
)

// jsonOnlyInstruction is appended to the system prompt when JSON output is
// requested, since the Messages API has no response-format switch.
const jsonOnlyInstruction = "Respond with a single JSON object and nothing else."

// AnthropicProvider calls the Claude Messages API.
type AnthropicProvider struct {
	ProviderName string
	APIKey       string
	Model        string
	BaseURL      string
	Client       *http.Client
}

func (p *AnthropicProvider) Name() string {
	if p.ProviderName == "" {
		return "anthropic"
	}
	return p.ProviderName
}

func (p *AnthropicProvider) DefaultModel() string { return p.Model }

type anthropicRequest struct {
	Model       string             `json:"model"`
	MaxTokens   int                `json:"max_tokens"`
	Temperature float64            `json:"temperature"`
	System      string             `json:"system,omitempty"`
	Messages    []anthropicMessage `json:"messages"`
	Stream      bool               `json:"stream,omitempty"`
}

type anthropicMessage struct {
	Role    string           `json:"role"`
	Content []anthropicBlock `json:"content"`
}

type anthropicBlock struct {
	Type   string           `json:"type"`
	Text   string           `json:"text,omitempty"`
	Source *anthropicSource `json:"source,omitempty"`
}

type anthropicSource struct {
	Type string `json:"type"`
	URL  string `json:"url"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Usage anthropicUsage `json:"usage"`
}

type anthropicUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// anthropicEvent covers the stream event shapes this client reads.
type anthropicEvent struct {
	Type    string `json:"type"`
	Message struct {
		Usage anthropicUsage `json:"usage"`
	} `json:"message"`
	Delta struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"delta"`
	Usage anthropicUsage `json:"usage"`
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// Complete sends a non-streaming Messages request.
func (p *AnthropicProvider) Complete(ctx context.Context, req Request) (Response, error) {
	resp, err := p.do(ctx, req, false)
	if err != nil {
		return Response{}, err
	}
	defer resp.Body.Close()

	var ar anthropicResponse
	if err := json.NewDecoder(resp.Body).Decode(&ar); err != nil {
		return Response{}, fmt.Errorf("parsing Claude response: %w", err)
	}

	var text strings.Builder
	for _, c := range ar.Content {
		if c.Type == "text" {
			text.WriteString(c.Text)
		}
	}
	return Response{
		Text:  text.String(),
		Usage: Usage{PromptTokens: ar.Usage.InputTokens, CompletionTokens: ar.Usage.OutputTokens},
	}, nil
}

// Stream sends a streaming Messages request and emits text deltas.
func (p *AnthropicProvider) Stream(ctx context.Context, req Request, emit func(string) error) (Usage, error) {
	resp, err := p.do(ctx, req, true)
	if err != nil {
		return Usage{}, err
	}
	defer resp.Body.Close()

	var usage Usage
	err = readSSE(resp.Body, func(data string) error {
		var ev anthropicEvent
		if err := json.Unmarshal([]byte(data), &ev); err != nil {
			return fmt.Errorf("parsing Claude stream event: %w", err)
		}
		switch ev.Type {
		case "message_start":
			usage.PromptTokens = ev.Message.Usage.InputTokens
		case "content_block_delta":
			if ev.Delta.Type == "text_delta" && ev.Delta.Text != "" {
				return emit(ev.Delta.Text)
			}
		case "message_delta":
			usage.CompletionTokens = ev.Usage.OutputTokens
		case "error":
			streamErr := fmt.Errorf("%s: %s", ev.Error.Type, ev.Error.Message)
			if ev.Error.Type == "rate_limit_error" || ev.Error.Type == "overloaded_error" {
				return &RateLimitError{Provider: p.Name(), Err: streamErr}
			}
			return streamErr
		}
		return nil
	})
	return usage, err
}

func (p *AnthropicProvider) do(ctx context.Context, req Request, stream bool) (*http.Response, error) {
	body, err := json.Marshal(p.buildRequest(req, stream))
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	url := p.BaseURL
	if url == "" {
		url = anthropicAPIURL
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", p.APIKey)
	httpReq.Header.Set("anthropic-version", anthropicVersion)

	// Retries are left to the completion client, which fails over instead.
	resp, err := httputil.DoWithRetry(ctx, p.Client, httpReq, -1)
	if err != nil {
		return nil, fmt.Errorf("calling Claude API: %w", err)
	}
	if err := httputil.CheckStatus(resp, "Claude API"); err != nil {
		resp.Body.Close()
		return nil, classify(p.Name(), err)
	}
	return resp, nil
}

func (p *AnthropicProvider) buildRequest(req Request, stream bool) anthropicRequest {
	system := req.System
	if req.Format == types.FormatJSON {
		system = strings.TrimSpace(system + "\n\n" + jsonOnlyInstruction)
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = anthropicDefaultTokens
	}

	msgs := make([]anthropicMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		blocks := make([]anthropicBlock, 0, len(m.Images)+1)
		for _, img := range m.Images {
			blocks = append(blocks, anthropicBlock{Type: "image", Source: &anthropicSource{Type: "url", URL: img}})
		}
		blocks = append(blocks, anthropicBlock{Type: "text", Text: m.Content})
		msgs = append(msgs, anthropicMessage{Role: string(m.Role), Content: blocks})
	}

	return anthropicRequest{
		Model:       req.Model,
		MaxTokens:   maxTokens,
		Temperature: req.Temperature,
		System:      system,
		Messages:    msgs,
		Stream:      stream,
	}
}

// classify wraps throttling status errors in a RateLimitError.
func classify(provider string, err error) error {
	var se *httputil.StatusError
	if errors.As(err, &se) && (se.TooManyRequests() || se.StatusCode == statusOverloaded) {
		return &RateLimitError{Provider: provider, Err: err}
	}
	return err
}
