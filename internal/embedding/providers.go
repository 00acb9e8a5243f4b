// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"

	"github.com/pdiddy/food-resolver/internal/httputil"
	"github.com/pdiddy/food-resolver/pkg/types"
)

// openAIEmbeddingsURL is the OpenAI embeddings endpoint. Declared as a var
// so tests can substitute an httptest server.
var openAIEmbeddingsURL = "https://api.openai.com/v1/embeddings"

// cloudflareAIBase is the Workers AI accounts endpoint.
var cloudflareAIBase = "https://api.cloudflare.com/client/v4/accounts"

const (
	adaModelName = "text-embedding-ada-002"
	bgeModelName = "@cf/baai/bge-base-en-v1.5"

	// cloudflareMaxBatch is the Workers AI per-request text limit.
	cloudflareMaxBatch = 100
)

// OpenAIEmbedder serves the ada model through the OpenAI embeddings API.
type OpenAIEmbedder struct {
	APIKey string
	Client *http.Client
}

// Model returns the logical model served.
func (e *OpenAIEmbedder) Model() types.EmbeddingModel { return types.ModelAda }

type openAIEmbeddingRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type openAIEmbeddingResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// Embed fetches vectors for texts in one request.
func (e *OpenAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	body, err := json.Marshal(openAIEmbeddingRequest{Model: adaModelName, Input: texts})
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, openAIEmbeddingsURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.APIKey)

	resp, err := httputil.DoWithRetry(ctx, e.Client, req, 0)
	if err != nil {
		return nil, fmt.Errorf("OpenAI embeddings request: %w", err)
	}
	defer resp.Body.Close()

	if err := httputil.CheckStatus(resp, "OpenAI embeddings"); err != nil {
		return nil, err
	}

	var er openAIEmbeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&er); err != nil {
		return nil, fmt.Errorf("parsing OpenAI embeddings response: %w", err)
	}
	if len(er.Data) != len(texts) {
		return nil, fmt.Errorf("OpenAI returned %d embeddings for %d inputs", len(er.Data), len(texts))
	}

	sort.Slice(er.Data, func(i, j int) bool { return er.Data[i].Index < er.Data[j].Index })
	out := make([][]float32, len(er.Data))
	for i, d := range er.Data {
		out[i] = d.Embedding
	}
	return out, nil
}

// CloudflareEmbedder serves the bge-base model through Workers AI.
type CloudflareEmbedder struct {
	AccountID string
	APIToken  string
	Client    *http.Client
}

// Model returns the logical model served.
func (e *CloudflareEmbedder) Model() types.EmbeddingModel { return types.ModelBGEBase }

type cloudflareResponse struct {
	Success bool `json:"success"`
	Errors  []struct {
		Message string `json:"message"`
	} `json:"errors"`
	Result struct {
		Data [][]float32 `json:"data"`
	} `json:"result"`
}

// Embed fetches vectors for texts, splitting them into Workers AI sized
// requests when needed.
func (e *CloudflareEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += cloudflareMaxBatch {
		end := min(start+cloudflareMaxBatch, len(texts))
		vecs, err := e.embedBatch(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		out = append(out, vecs...)
	}
	return out, nil
}

func (e *CloudflareEmbedder) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	body, err := json.Marshal(map[string][]string{"text": texts})
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	reqURL := fmt.Sprintf("%s/%s/ai/run/%s", cloudflareAIBase, e.AccountID, bgeModelName)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.APIToken)

	resp, err := httputil.DoWithRetry(ctx, e.Client, req, 0)
	if err != nil {
		return nil, fmt.Errorf("Workers AI request: %w", err)
	}
	defer resp.Body.Close()

	if err := httputil.CheckStatus(resp, "Workers AI"); err != nil {
		return nil, err
	}

	var cr cloudflareResponse
	if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
		return nil, fmt.Errorf("parsing Workers AI response: %w", err)
	}
	if !cr.Success {
		msg := "unknown error"
		if len(cr.Errors) > 0 {
			msg = cr.Errors[0].Message
		}
		return nil, fmt.Errorf("Workers AI: %s", msg)
	}
	if len(cr.Result.Data) != len(texts) {
		return nil, fmt.Errorf("Workers AI returned %d embeddings for %d inputs", len(cr.Result.Data), len(texts))
	}
	return cr.Result.Data, nil
}
