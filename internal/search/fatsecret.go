// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package search

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"

	"github.com/pdiddy/food-resolver/internal/normalize"
	"github.com/pdiddy/food-resolver/pkg/types"
)

// FatSecret endpoints. Declared as vars so tests can substitute httptest
// servers.
var (
	fatSecretAPIURL   = "https://platform.fatsecret.com/rest/server.api"
	fatSecretTokenURL = "https://oauth.fatsecret.com/connect/token"
)

// tokenMargin is subtracted from a token's lifetime so it is refreshed
// before the server rejects it.
const tokenMargin = time.Minute

const fatSecretDefaultPageSize = 20

// TokenSource obtains and caches an OAuth2 client-credentials bearer token.
// It is safe for concurrent use; at most one refresh runs at a time.
type TokenSource struct {
	ClientID     string
	ClientSecret string
	Scope        string

	// Client sends the token request. Nil uses a default resty client.
	Client *resty.Client

	mu     sync.Mutex
	token  string
	expiry time.Time
	now    func() time.Time
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

// Token returns a valid bearer token, requesting a new one when the cached
// token is missing or about to expire.
func (ts *TokenSource) Token(ctx context.Context) (string, error) {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	now := time.Now
	if ts.now != nil {
		now = ts.now
	}
	if ts.token != "" && now().Before(ts.expiry) {
		return ts.token, nil
	}

	client := ts.Client
	if client == nil {
		client = resty.New()
	}
	scope := ts.Scope
	if scope == "" {
		scope = "basic"
	}

	var tr tokenResponse
	resp, err := client.R().
		SetContext(ctx).
		SetBasicAuth(ts.ClientID, ts.ClientSecret).
		SetFormData(map[string]string{
			"grant_type": "client_credentials",
			"scope":      scope,
		}).
		SetResult(&tr).
		Post(fatSecretTokenURL)
	if err != nil {
		return "", fmt.Errorf("requesting FatSecret token: %w", err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("FatSecret token endpoint returned HTTP %d: %s", resp.StatusCode(), resp.String())
	}
	if tr.AccessToken == "" {
		return "", fmt.Errorf("FatSecret token response has no access_token")
	}

	ts.token = tr.AccessToken
	ts.expiry = now().Add(time.Duration(tr.ExpiresIn)*time.Second - tokenMargin)
	return ts.token, nil
}

// FatSecretSource searches the FatSecret Platform API.
type FatSecretSource struct {
	Tokens    *TokenSource
	Client    *http.Client
	UserAgent string
	PageSize  int

	Embeddings Embedder
	Model      types.EmbeddingModel
	Limiter    *rate.Limiter
}

// Name returns the source identifier.
func (s *FatSecretSource) Name() types.FoodSource { return types.SourceFatSecret }

type fatSecretSearchHit struct {
	FoodID    string `json:"food_id"`
	FoodName  string `json:"food_name"`
	FoodType  string `json:"food_type"`
	BrandName string `json:"brand_name"`
}

type fatSecretSearchResponse struct {
	Foods struct {
		// Food is an array, or a single object when there is one hit.
		Food json.RawMessage `json:"food"`
	} `json:"foods"`
	Error *fatSecretError `json:"error"`
}

type fatSecretError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *fatSecretError) Error() string {
	return fmt.Sprintf("FatSecret error %d: %s", e.Code, e.Message)
}

// Search runs foods.search and scores the hits by name similarity.
func (s *FatSecretSource) Search(ctx context.Context, q Query) ([]types.FoodCandidate, error) {
	pageSize := s.PageSize
	if pageSize <= 0 {
		pageSize = fatSecretDefaultPageSize
	}
	var sr fatSecretSearchResponse
	err := s.call(ctx, url.Values{
		"method":            {"foods.search"},
		"search_expression": {q.Keywords()},
		"max_results":       {strconv.Itoa(pageSize)},
	}, &sr)
	if err != nil {
		return nil, err
	}
	if sr.Error != nil {
		return nil, sr.Error
	}

	hits, err := decodeHits(sr.Foods.Food)
	if err != nil {
		return nil, err
	}
	cands := make([]types.FoodCandidate, 0, len(hits))
	for _, h := range hits {
		cands = append(cands, types.FoodCandidate{
			Source:     types.SourceFatSecret,
			ExternalID: h.FoodID,
			Name:       h.FoodName,
			Brand:      h.BrandName,
		})
	}
	if err := score(ctx, s.Embeddings, s.Model, q, cands); err != nil {
		return nil, err
	}
	return cands, nil
}

func decodeHits(raw json.RawMessage) ([]fatSecretSearchHit, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	if raw[0] == '[' {
		var hits []fatSecretSearchHit
		if err := json.Unmarshal(raw, &hits); err != nil {
			return nil, fmt.Errorf("parsing FatSecret hits: %w", err)
		}
		return hits, nil
	}
	var one fatSecretSearchHit
	if err := json.Unmarshal(raw, &one); err != nil {
		return nil, fmt.Errorf("parsing FatSecret hit: %w", err)
	}
	return []fatSecretSearchHit{one}, nil
}

// Fetch runs food.get.v2 for one food id.
func (s *FatSecretSource) Fetch(ctx context.Context, externalID string) (normalize.Payload, error) {
	var fr struct {
		Food  *normalize.FatSecretFood `json:"food"`
		Error *fatSecretError          `json:"error"`
	}
	err := s.call(ctx, url.Values{
		"method":  {"food.get.v2"},
		"food_id": {externalID},
	}, &fr)
	if err != nil {
		return nil, err
	}
	if fr.Error != nil {
		return nil, fr.Error
	}
	if fr.Food == nil {
		return nil, fmt.Errorf("FatSecret food %s not found", externalID)
	}
	return *fr.Food, nil
}

func (s *FatSecretSource) call(ctx context.Context, params url.Values, dst any) error {
	if s.Tokens == nil {
		return fmt.Errorf("FatSecret credentials not configured")
	}
	token, err := s.Tokens.Token(ctx)
	if err != nil {
		return err
	}
	params.Set("format", "json")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fatSecretAPIURL+"?"+params.Encode(), nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if s.UserAgent != "" {
		req.Header.Set("User-Agent", s.UserAgent)
	}
	return doJSON(ctx, s.Client, s.Limiter, req, "FatSecret", dst)
}
