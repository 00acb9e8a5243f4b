// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package search

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"golang.org/x/time/rate"

	"github.com/pdiddy/food-resolver/internal/normalize"
	"github.com/pdiddy/food-resolver/pkg/types"
)

// usdaAPIBase is the FoodData Central API root. Declared as a var so tests
// can substitute an httptest server.
var usdaAPIBase = "https://api.nal.usda.gov/fdc/v1"

const usdaDefaultPageSize = 25

// USDASource searches FoodData Central.
type USDASource struct {
	APIKey    string
	Client    *http.Client
	UserAgent string
	PageSize  int

	// Embeddings scores candidate names under Model.
	Embeddings Embedder
	Model      types.EmbeddingModel
	Limiter    *rate.Limiter
}

// Name returns the source identifier.
func (s *USDASource) Name() types.FoodSource { return types.SourceUSDA }

type usdaSearchResponse struct {
	TotalHits int `json:"totalHits"`
	Foods     []struct {
		FDCID       int64  `json:"fdcId"`
		Description string `json:"description"`
		DataType    string `json:"dataType"`
		BrandOwner  string `json:"brandOwner"`
		BrandName   string `json:"brandName"`
	} `json:"foods"`
}

// Search runs a keyword search and scores the hits by name similarity.
func (s *USDASource) Search(ctx context.Context, q Query) ([]types.FoodCandidate, error) {
	pageSize := s.PageSize
	if pageSize <= 0 {
		pageSize = usdaDefaultPageSize
	}
	params := url.Values{
		"api_key":  {s.APIKey},
		"query":    {q.Keywords()},
		"pageSize": {strconv.Itoa(pageSize)},
	}
	if q.Branded {
		params.Set("dataType", "Branded")
	} else {
		params.Set("dataType", "Foundation,SR Legacy,Survey (FNDDS),Branded")
	}

	req, err := s.newRequest(ctx, usdaAPIBase+"/foods/search?"+params.Encode())
	if err != nil {
		return nil, err
	}
	var sr usdaSearchResponse
	if err := doJSON(ctx, s.Client, s.Limiter, req, "USDA", &sr); err != nil {
		return nil, err
	}

	cands := make([]types.FoodCandidate, 0, len(sr.Foods))
	for _, f := range sr.Foods {
		c := types.FoodCandidate{
			Source:     types.SourceUSDA,
			ExternalID: strconv.FormatInt(f.FDCID, 10),
			Name:       f.Description,
		}
		if f.DataType == "Branded" {
			c.Brand = f.BrandName
			if c.Brand == "" {
				c.Brand = f.BrandOwner
			}
		}
		cands = append(cands, c)
	}
	if err := score(ctx, s.Embeddings, s.Model, q, cands); err != nil {
		return nil, err
	}
	return cands, nil
}

// Fetch returns the full-format record of one food.
func (s *USDASource) Fetch(ctx context.Context, externalID string) (normalize.Payload, error) {
	params := url.Values{
		"api_key": {s.APIKey},
		"fdcIds":  {externalID},
		"format":  {"full"},
	}
	req, err := s.newRequest(ctx, usdaAPIBase+"/foods?"+params.Encode())
	if err != nil {
		return nil, err
	}
	var foods []normalize.USDAFood
	if err := doJSON(ctx, s.Client, s.Limiter, req, "USDA", &foods); err != nil {
		return nil, err
	}
	if len(foods) == 0 {
		return nil, fmt.Errorf("USDA food %s not found", externalID)
	}
	return foods[0], nil
}

func (s *USDASource) newRequest(ctx context.Context, u string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	if s.UserAgent != "" {
		req.Header.Set("User-Agent", s.UserAgent)
	}
	req.Header.Set("Accept", "application/json")
	return req, nil
}
