// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package types defines shared data structures for the food-resolver pipeline:
// extraction items, search candidates, canonical food records, and the
// configuration structs for every stage.
package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strings"
)

// FoodSource identifies an integrated nutrition database.
type FoodSource string

const (
	SourceUSDA        FoodSource = "USDA"
	SourceNutritionix FoodSource = "NUTRITIONIX"
	SourceFatSecret   FoodSource = "FATSECRET"
	SourceLocal       FoodSource = "LOCAL"
)

// ParseFoodSource maps a case-insensitive name to a FoodSource.
func ParseFoodSource(s string) (FoodSource, error) {
	switch FoodSource(strings.ToUpper(strings.TrimSpace(s))) {
	case SourceUSDA:
		return SourceUSDA, nil
	case SourceNutritionix:
		return SourceNutritionix, nil
	case SourceFatSecret:
		return SourceFatSecret, nil
	case SourceLocal:
		return SourceLocal, nil
	}
	return "", fmt.Errorf("unknown food source %q", s)
}

// Quantity is a numeric value a language model may express either as a JSON
// number or as an arithmetic-expression string such as "4 * 28.35 / 15".
// The zero value is null.
type Quantity struct {
	// Number holds the literal value when the JSON carried a number.
	Number *float64

	// Expr holds the raw expression when the JSON carried a string.
	Expr string
}

// IsNull reports whether neither a number nor an expression was supplied.
func (q Quantity) IsNull() bool {
	return q.Number == nil && strings.TrimSpace(q.Expr) == ""
}

// Num returns a Quantity holding a literal number.
func Num(v float64) Quantity { return Quantity{Number: &v} }

// Expr returns a Quantity holding an expression string.
func Expr(s string) Quantity { return Quantity{Expr: s} }

// UnmarshalJSON accepts a number, a string, or null.
func (q *Quantity) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	*q = Quantity{}
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		q.Expr = s
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("quantity must be a number or string: %w", err)
	}
	q.Number = &f
	return nil
}

// MarshalJSON writes the number, the expression string, or null.
func (q Quantity) MarshalJSON() ([]byte, error) {
	switch {
	case q.Number != nil:
		return json.Marshal(*q.Number)
	case q.Expr != "":
		return json.Marshal(q.Expr)
	}
	return []byte("null"), nil
}

// FoodExtractionItem is one atomic food request extracted from a meal description.
type FoodExtractionItem struct {
	// SearchName is the database-oriented name (e.g. "milk, whole").
	SearchName string `json:"search_name" yaml:"search_name"`

	// FullDescriptiveMessage is the user's text for this item including quantity.
	FullDescriptiveMessage string `json:"full_descriptive_message" yaml:"full_descriptive_message"`

	IsBranded bool   `json:"is_branded" yaml:"is_branded"`
	Brand     string `json:"brand" yaml:"brand"`

	// Hints carries optional partial nutrition values keyed by nutrient name.
	Hints map[string]Quantity `json:"hints,omitempty" yaml:"-"`
}

// ExtractionResult is the output of natural-language food extraction.
type ExtractionResult struct {
	Items                  []FoodExtractionItem `json:"items" yaml:"items"`
	ContainsValidFoodItems bool                 `json:"contains_valid_food_items" yaml:"contains_valid_food_items"`
}

// FoodCandidate is one ranked match returned by a nutrition source.
type FoodCandidate struct {
	Source     FoodSource `json:"source" yaml:"source"`
	ExternalID string     `json:"external_id" yaml:"external_id"`
	Name       string     `json:"name" yaml:"name"`
	Brand      string     `json:"brand,omitempty" yaml:"brand,omitempty"`

	// Similarity is the cosine similarity against the query embedding, in [-1, 1].
	Similarity float64 `json:"similarity" yaml:"similarity"`

	// EmbeddingID references the embedding cache row used for scoring, when known.
	EmbeddingID int64 `json:"embedding_id,omitempty" yaml:"embedding_id,omitempty"`
}

// Serving is an alternate serving size of a canonical food item.
type Serving struct {
	ID                   int      `json:"id" yaml:"id"`
	Name                 string   `json:"name" yaml:"name"`
	WeightGram           *float64 `json:"weight_gram" yaml:"weight_gram"`
	DefaultServingAmount *float64 `json:"default_serving_amount,omitempty" yaml:"default_serving_amount,omitempty"`
	AlternateAmount      *float64 `json:"alternate_amount,omitempty" yaml:"alternate_amount,omitempty"`
	AlternateUnit        string   `json:"alternate_unit,omitempty" yaml:"alternate_unit,omitempty"`
}

// Nutrient is an open-ended micro-nutrient amount per default serving.
type Nutrient struct {
	Name                    string   `json:"name" yaml:"name"`
	Unit                    string   `json:"unit" yaml:"unit"`
	AmountPerDefaultServing *float64 `json:"amount_per_default_serving" yaml:"amount_per_default_serving"`
}

// CanonicalFoodItem is the single normalized nutrition record produced from
// one source payload. Optional numbers use nil (or NaN) as the unknown sentinel.
type CanonicalFoodItem struct {
	Name        string `json:"name" yaml:"name"`
	Brand       string `json:"brand,omitempty" yaml:"brand,omitempty"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`

	// IsLiquid selects which default-serving field is meaningful.
	IsLiquid                 bool     `json:"is_liquid" yaml:"is_liquid"`
	DefaultServingWeightGram *float64 `json:"default_serving_weight_gram" yaml:"default_serving_weight_gram"`
	DefaultServingLiquidMl   *float64 `json:"default_serving_liquid_ml" yaml:"default_serving_liquid_ml"`
	WeightUnknown            bool     `json:"weight_unknown" yaml:"weight_unknown"`

	KcalPerServing     float64 `json:"kcal_per_serving" yaml:"kcal_per_serving"`
	ProteinPerServing  float64 `json:"protein_per_serving" yaml:"protein_per_serving"`
	TotalFatPerServing float64 `json:"total_fat_per_serving" yaml:"total_fat_per_serving"`
	CarbPerServing     float64 `json:"carb_per_serving" yaml:"carb_per_serving"`

	FiberPerServing      *float64 `json:"fiber_per_serving" yaml:"fiber_per_serving"`
	SugarPerServing      *float64 `json:"sugar_per_serving" yaml:"sugar_per_serving"`
	AddedSugarPerServing *float64 `json:"added_sugar_per_serving" yaml:"added_sugar_per_serving"`
	SatFatPerServing     *float64 `json:"sat_fat_per_serving" yaml:"sat_fat_per_serving"`
	TransFatPerServing   *float64 `json:"trans_fat_per_serving" yaml:"trans_fat_per_serving"`

	Source     FoodSource `json:"source" yaml:"source"`
	ExternalID string     `json:"external_id" yaml:"external_id"`
	UPC        string     `json:"upc,omitempty" yaml:"upc,omitempty"`

	Servings  []Serving  `json:"servings" yaml:"servings"`
	Nutrients []Nutrient `json:"nutrients" yaml:"nutrients"`
}

// Known reports whether p holds a value distinguishable from the unknown
// sentinel (nil or NaN).
func Known(p *float64) bool {
	return p != nil && !math.IsNaN(*p)
}

// Ptr returns a pointer to v.
func Ptr(v float64) *float64 { return &v }
