// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package extract

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/pdiddy/food-resolver/internal/llm"
	"github.com/pdiddy/food-resolver/pkg/types"
)

// --- mock completer ---

// scriptedCompleter returns its responses in order and records every request.
type scriptedCompleter struct {
	responses []string
	errs      []error
	requests  []llm.Request
}

func (s *scriptedCompleter) Complete(_ context.Context, req llm.Request) (string, error) {
	i := len(s.requests)
	s.requests = append(s.requests, req)
	if i < len(s.errs) && s.errs[i] != nil {
		return "", s.errs[i]
	}
	if i < len(s.responses) {
		return s.responses[i], nil
	}
	return "", errors.New("no scripted response")
}

func testConfig() types.ExtractionConfig {
	return types.ExtractionConfig{AIConfig: types.AIConfig{Provider: "groq", Model: "test-model"}}
}

const milkResponse = `{
  "food_items": [
    {
      "full_single_food_database_search_name": "milk",
      "full_single_item_user_message_including_serving_or_quantity": "2 fl oz of milk",
      "branded": false,
      "brand": ""
    }
  ],
  "contains_valid_food_items": true
}`

// --- Extract ---

func TestExtract_SingleItem(t *testing.T) {
	c := &scriptedCompleter{responses: []string{milkResponse}}
	e := New(c, testConfig(), nil)

	res, err := e.Extract(context.Background(), "2 fl oz of milk")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if !res.ContainsValidFoodItems {
		t.Error("ContainsValidFoodItems = false, want true")
	}
	if len(res.Items) != 1 {
		t.Fatalf("got %d items, want 1", len(res.Items))
	}
	got := res.Items[0]
	want := types.FoodExtractionItem{SearchName: "milk", FullDescriptiveMessage: "2 fl oz of milk"}
	if got.SearchName != want.SearchName || got.FullDescriptiveMessage != want.FullDescriptiveMessage ||
		got.IsBranded || got.Brand != "" {
		t.Errorf("item = %+v, want %+v", got, want)
	}

	req := c.requests[0]
	if req.Format != types.FormatJSON {
		t.Errorf("format = %q, want json_object", req.Format)
	}
	if req.Provider != "groq" || req.Model != "test-model" {
		t.Errorf("provider/model = %s/%s", req.Provider, req.Model)
	}
	if !strings.Contains(req.Messages[0].Content, `"2 fl oz of milk"`) {
		t.Error("prompt does not contain the user message")
	}
}

func TestExtract_RetriesMalformedAtHigherTemperature(t *testing.T) {
	c := &scriptedCompleter{responses: []string{"sorry, I can't help with that", milkResponse}}
	e := New(c, testConfig(), nil)

	res, err := e.Extract(context.Background(), "2 fl oz of milk")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(res.Items) != 1 {
		t.Fatalf("got %d items, want 1", len(res.Items))
	}
	if len(c.requests) != 2 {
		t.Fatalf("got %d calls, want 2", len(c.requests))
	}
	if c.requests[0].Temperature != 0 || c.requests[1].Temperature != 0.3 {
		t.Errorf("temperatures = %v, %v; want 0, 0.3", c.requests[0].Temperature, c.requests[1].Temperature)
	}
}

func TestExtract_ExhaustedReturnsNil(t *testing.T) {
	c := &scriptedCompleter{responses: []string{"{", `{"food_items": []}`}}
	e := New(c, testConfig(), nil)

	res, err := e.Extract(context.Background(), "a sandwich")
	if res != nil {
		t.Errorf("result = %+v, want nil", res)
	}
	var malformed *MalformedOutputError
	if !errors.As(err, &malformed) {
		t.Fatalf("error = %v, want *MalformedOutputError", err)
	}
	if len(c.requests) != 2 {
		t.Errorf("got %d calls, want 2 (one retry)", len(c.requests))
	}
}

func TestExtract_ProviderErrorIsNotRetried(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"exhausted providers", &llm.ExhaustedError{Errs: []error{errors.New("429")}}},
		{"unauthorized", errors.New("401 unauthorized")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &scriptedCompleter{
				errs:      []error{tt.err},
				responses: []string{"", milkResponse},
			}
			e := New(c, testConfig(), nil)

			res, err := e.Extract(context.Background(), "2 fl oz of milk")
			if res != nil {
				t.Errorf("result = %+v, want nil", res)
			}
			if !errors.Is(err, tt.err) {
				t.Errorf("error = %v, want %v", err, tt.err)
			}
			var malformed *MalformedOutputError
			if errors.As(err, &malformed) {
				t.Errorf("provider failure reported as malformed output: %v", err)
			}
			if len(c.requests) != 1 {
				t.Errorf("got %d calls, want 1", len(c.requests))
			}
		})
	}
}

func TestExtract_NoFood(t *testing.T) {
	c := &scriptedCompleter{responses: []string{`{"food_items": [], "contains_valid_food_items": false}`}}
	e := New(c, testConfig(), nil)

	res, err := e.Extract(context.Background(), "what a lovely day")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if res.ContainsValidFoodItems || len(res.Items) != 0 {
		t.Errorf("result = %+v, want empty and invalid", res)
	}
}

func TestExtract_EmptyMessageSkipsModel(t *testing.T) {
	c := &scriptedCompleter{}
	res, err := New(c, testConfig(), nil).Extract(context.Background(), "   ")
	if err != nil || res == nil || len(res.Items) != 0 {
		t.Fatalf("Extract = %+v, %v", res, err)
	}
	if len(c.requests) != 0 {
		t.Error("model was called for an empty message")
	}
}

func TestExtractWithImages_SendsImages(t *testing.T) {
	c := &scriptedCompleter{responses: []string{milkResponse}}
	e := New(c, testConfig(), nil)

	if _, err := e.ExtractWithImages(context.Background(), "", []string{"https://img/1.jpg"}); err != nil {
		t.Fatalf("ExtractWithImages: %v", err)
	}
	if got := c.requests[0].Messages[0].Images; len(got) != 1 {
		t.Errorf("images = %v", got)
	}
	if c.requests[0].Cacheable() {
		t.Error("image request must not be cacheable")
	}
}

// --- parseResponse ---

func TestParseResponse(t *testing.T) {
	tests := []struct {
		name      string
		raw       string
		wantErr   bool
		wantItems int
		check     func(t *testing.T, r *types.ExtractionResult)
	}{
		{
			name:      "fenced block, last one wins",
			raw:       "```json\n{\"contains_valid_food_items\": false}\n```\nthen\n```json\n" + milkResponse + "\n```",
			wantItems: 1,
		},
		{
			name:      "prose around object",
			raw:       "Here you go: " + milkResponse + " Enjoy!",
			wantItems: 1,
		},
		{
			name: "string booleans and brand",
			raw: `{"food_items":[{"full_single_food_database_search_name":"protein shake",
				"full_single_item_user_message_including_serving_or_quantity":"1 fairlife shake",
				"branded":"true","brand":"Fairlife"}],"contains_valid_food_items":"true"}`,
			wantItems: 1,
			check: func(t *testing.T, r *types.ExtractionResult) {
				if !r.Items[0].IsBranded || r.Items[0].Brand != "Fairlife" {
					t.Errorf("item = %+v, want branded Fairlife", r.Items[0])
				}
			},
		},
		{
			name: "schema placeholder boolean reads as false",
			raw: `{"food_items":[{"full_single_food_database_search_name":"egg",
				"full_single_item_user_message_including_serving_or_quantity":"2 eggs",
				"branded":"boolean","brand":""}],"contains_valid_food_items":true}`,
			wantItems: 1,
		},
		{
			name: "nutrition hints as number and expression",
			raw: `{"food_items":[{"full_single_food_database_search_name":"granola bar",
				"full_single_item_user_message_including_serving_or_quantity":"2 granola bars",
				"branded":false,"brand":"","nutrition_hints":{"calories":"2 * 190","protein":4}}],
				"contains_valid_food_items":true}`,
			wantItems: 1,
			check: func(t *testing.T, r *types.ExtractionResult) {
				h := r.Items[0].Hints
				if h["calories"].Expr != "2 * 190" {
					t.Errorf("calories hint = %+v", h["calories"])
				}
				if h["protein"].Number == nil || *h["protein"].Number != 4 {
					t.Errorf("protein hint = %+v", h["protein"])
				}
			},
		},
		{name: "no JSON", raw: "I cannot do that", wantErr: true},
		{name: "truncated JSON", raw: `{"food_items": [`, wantErr: true},
		{name: "missing flag", raw: `{"food_items": []}`, wantErr: true},
		{name: "valid flag but no items array", raw: `{"contains_valid_food_items": true}`, wantErr: true},
		{
			name: "empty search name",
			raw: `{"food_items":[{"full_single_food_database_search_name":"",
				"full_single_item_user_message_including_serving_or_quantity":"x"}],"contains_valid_food_items":true}`,
			wantErr: true,
		},
		{
			name: "bad boolean",
			raw: `{"food_items":[{"full_single_food_database_search_name":"egg",
				"full_single_item_user_message_including_serving_or_quantity":"egg","branded":"maybe"}],
				"contains_valid_food_items":true}`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := parseResponse(tt.raw)
			if tt.wantErr {
				if err == nil {
					t.Errorf("expected error, got %+v", r)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(r.Items) != tt.wantItems {
				t.Errorf("got %d items, want %d", len(r.Items), tt.wantItems)
			}
			if tt.check != nil {
				tt.check(t, r)
			}
		})
	}
}

func TestRenderPrompt(t *testing.T) {
	p, err := renderPrompt("una manzana")
	if err != nil {
		t.Fatalf("renderPrompt: %v", err)
	}
	for _, want := range []string{`"una manzana"`, "Translate non-English", "contains_valid_food_items"} {
		if !strings.Contains(p, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}
