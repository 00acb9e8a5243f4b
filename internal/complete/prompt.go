// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package complete

import (
	"bytes"
	"encoding/json"
	"text/template"

	"github.com/pdiddy/food-resolver/pkg/types"
)

const systemPrompt = "You are a food assistant that knows the nutritional facts of food items. You reply in valid JSON only."

var completionPromptTmpl = template.Must(template.New("completion").Parse(`<current_food_info>
{{.Item}}
</current_food_info>

<instructions>
Some fields of current_food_info are null because they are unknown. Fill them with reasonable values, using the extra info below where it helps.

1. Use the "reasoning" field to work out a strategy before answering.
2. List every null field that needs a value.
3. For each one either estimate a value or write an equation that computes it from the extra info. Normalize to the serving size. For example, a 4 oz pack with 15 servings has servings of 4 * 28.35 / 15 grams.
4. Every field typed "number | string" holds either a number or an equation string.

Equations may ONLY contain numbers, spaces, parentheses and the operators + - * /. No variables, units or functions.
Never change a value that is already known. To propose an extra serving, give it a serving_id that is not already used.
</instructions>

<extra_info>
{{.Grounding}}
</extra_info>

<output_instruction>
description: one sentence about the food, focused on its main ingredients and nutrition.
default_serving_amount_grams: weight of the default serving in grams. For liquids estimate it from the density.
default_serving_amount_ml: null unless the item is a liquid.
serving_alternate_unit: the serving in another unit (e.g. oz), or empty.
serving_alternate_amount: the serving amount in serving_alternate_unit, or null.
</output_instruction>

<json_output_format>
{
  "reasoning": "string",
  "default_serving_amount_grams": "number | string",
  "default_serving_amount_ml": "number | string | null",
  "description": "string",
  "serving": [
    {
      "serving_id": 1,
      "serving_name": "string",
      "serving_weight_grams": "number | string",
      "serving_default_serving_amount": "number | null",
      "serving_alternate_amount": "number | null",
      "serving_alternate_unit": "string"
    }
  ]
}
</json_output_format>
`))

// itemView is the subset of a canonical item shown to the model. Unknown
// numbers are written as null.
type itemView struct {
	Name                      string        `json:"food_name"`
	Brand                     string        `json:"food_brand,omitempty"`
	Description               *string       `json:"description"`
	DefaultServingAmountGrams *float64      `json:"default_serving_amount_grams"`
	DefaultServingAmountMl    *float64      `json:"default_serving_amount_ml"`
	IsLiquid                  bool          `json:"is_liquid"`
	Calories                  float64       `json:"calories"`
	Protein                   float64       `json:"protein"`
	Fat                       float64       `json:"fat"`
	Carbs                     float64       `json:"carbs"`
	Servings                  []servingView `json:"serving"`
}

type servingView struct {
	ID                   int      `json:"serving_id"`
	Name                 string   `json:"serving_name"`
	WeightGrams          *float64 `json:"serving_weight_grams"`
	DefaultServingAmount *float64 `json:"serving_default_serving_amount"`
	AlternateAmount      *float64 `json:"serving_alternate_amount"`
	AlternateUnit        string   `json:"serving_alternate_unit"`
}

func known(p *float64) *float64 {
	if types.Known(p) {
		return p
	}
	return nil
}

func viewOf(item *types.CanonicalFoodItem) itemView {
	v := itemView{
		Name:                      item.Name,
		Brand:                     item.Brand,
		DefaultServingAmountGrams: known(item.DefaultServingWeightGram),
		DefaultServingAmountMl:    known(item.DefaultServingLiquidMl),
		IsLiquid:                  item.IsLiquid,
		Calories:                  item.KcalPerServing,
		Protein:                   item.ProteinPerServing,
		Fat:                       item.TotalFatPerServing,
		Carbs:                     item.CarbPerServing,
		Servings:                  []servingView{},
	}
	if item.Description != "" {
		v.Description = &item.Description
	}
	if item.WeightUnknown {
		v.DefaultServingAmountGrams = nil
	}
	for _, s := range item.Servings {
		v.Servings = append(v.Servings, servingView{
			ID:                   s.ID,
			Name:                 s.Name,
			WeightGrams:          known(s.WeightGram),
			DefaultServingAmount: known(s.DefaultServingAmount),
			AlternateAmount:      known(s.AlternateAmount),
			AlternateUnit:        s.AlternateUnit,
		})
	}
	return v
}

// renderPrompt fills the completion template with the item's known fields
// and the grounding text.
func renderPrompt(item *types.CanonicalFoodItem, grounding string) (string, error) {
	doc, err := json.MarshalIndent(viewOf(item), "", "  ")
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	err = completionPromptTmpl.Execute(&buf, struct{ Item, Grounding string }{string(doc), grounding})
	if err != nil {
		return "", err
	}
	return buf.String(), nil
}
