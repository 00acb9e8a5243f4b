// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/time/rate"

	"github.com/pdiddy/food-resolver/internal/normalize"
	"github.com/pdiddy/food-resolver/pkg/types"
)

// nutritionixAPIBase is the Nutritionix v2 API root. Declared as a var so
// tests can substitute an httptest server.
var nutritionixAPIBase = "https://trackapi.nutritionix.com/v2"

// commonPrefix marks external ids of common (unbranded) foods, which are
// fetched by name through the natural-language endpoint.
const commonPrefix = "name:"

// NutritionixSource searches Nutritionix branded and common foods.
type NutritionixSource struct {
	AppID     string
	AppKey    string
	Client    *http.Client
	UserAgent string

	Embeddings Embedder
	Model      types.EmbeddingModel
	Limiter    *rate.Limiter
}

// Name returns the source identifier.
func (s *NutritionixSource) Name() types.FoodSource { return types.SourceNutritionix }

type nixInstantResponse struct {
	Common []struct {
		FoodName string `json:"food_name"`
		TagID    string `json:"tag_id"`
	} `json:"common"`
	Branded []struct {
		FoodName  string `json:"food_name"`
		BrandName string `json:"brand_name"`
		NixItemID string `json:"nix_item_id"`
	} `json:"branded"`
}

type nixFoodsResponse struct {
	Foods []normalize.NutritionixFood `json:"foods"`
}

// Search queries the instant endpoint. Branded queries only consider
// branded hits; unbranded queries consider both.
func (s *NutritionixSource) Search(ctx context.Context, q Query) ([]types.FoodCandidate, error) {
	params := url.Values{
		"query":    {q.Keywords()},
		"branded":  {"true"},
		"common":   {fmt.Sprint(!q.Branded)},
		"detailed": {"false"},
	}
	req, err := s.newRequest(ctx, http.MethodGet, nutritionixAPIBase+"/search/instant?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	var ir nixInstantResponse
	if err := doJSON(ctx, s.Client, s.Limiter, req, "Nutritionix", &ir); err != nil {
		return nil, err
	}

	var cands []types.FoodCandidate
	seen := make(map[string]bool)
	if !q.Branded {
		for _, f := range ir.Common {
			id := commonPrefix + strings.ToLower(f.FoodName)
			if seen[id] {
				continue
			}
			seen[id] = true
			cands = append(cands, types.FoodCandidate{Source: types.SourceNutritionix, ExternalID: id, Name: f.FoodName})
		}
	}
	for _, f := range ir.Branded {
		if f.NixItemID == "" || seen[f.NixItemID] {
			continue
		}
		seen[f.NixItemID] = true
		cands = append(cands, types.FoodCandidate{
			Source:     types.SourceNutritionix,
			ExternalID: f.NixItemID,
			Name:       f.FoodName,
			Brand:      f.BrandName,
		})
	}
	if err := score(ctx, s.Embeddings, s.Model, q, cands); err != nil {
		return nil, err
	}
	return cands, nil
}

// Fetch returns a branded item by nix_item_id, or a common food by name.
func (s *NutritionixSource) Fetch(ctx context.Context, externalID string) (normalize.Payload, error) {
	var req *http.Request
	var err error
	if name, ok := strings.CutPrefix(externalID, commonPrefix); ok {
		body, merr := json.Marshal(map[string]string{"query": name})
		if merr != nil {
			return nil, fmt.Errorf("encoding request: %w", merr)
		}
		req, err = s.newRequest(ctx, http.MethodPost, nutritionixAPIBase+"/natural/nutrients", body)
	} else {
		req, err = s.newRequest(ctx, http.MethodGet,
			nutritionixAPIBase+"/search/item?"+url.Values{"nix_item_id": {externalID}}.Encode(), nil)
	}
	if err != nil {
		return nil, err
	}

	var fr nixFoodsResponse
	if err := doJSON(ctx, s.Client, s.Limiter, req, "Nutritionix", &fr); err != nil {
		return nil, err
	}
	if len(fr.Foods) == 0 {
		return nil, fmt.Errorf("Nutritionix food %s not found", externalID)
	}
	return fr.Foods[0], nil
}

func (s *NutritionixSource) newRequest(ctx context.Context, method, u string, body []byte) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, u, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("x-app-id", s.AppID)
	req.Header.Set("x-app-key", s.AppKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if s.UserAgent != "" {
		req.Header.Set("User-Agent", s.UserAgent)
	}
	return req, nil
}
