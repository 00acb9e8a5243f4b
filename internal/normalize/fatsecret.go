// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package normalize

import (
	"fmt"
	"math"
	"strings"

	"github.com/pdiddy/food-resolver/pkg/types"
)

const ozGrams = 28.3495

// normalizeFatSecret maps a FatSecret food. Values come from the 100 g
// serving when present, else from the first serving; the remaining servings
// become alternates.
func normalizeFatSecret(f FatSecretFood) (*types.CanonicalFoodItem, error) {
	if len(f.Servings) == 0 {
		return nil, fmt.Errorf("fatsecret food %s: no servings", f.FoodID)
	}
	if strings.TrimSpace(f.FoodName) == "" {
		return nil, fmt.Errorf("fatsecret food %s: missing food_name", f.FoodID)
	}

	servings := dedupeFatSecret(f.Servings)
	def := servings[0]
	for _, s := range servings {
		if isFatSecret100g(s) {
			def = s
			break
		}
	}

	item := &types.CanonicalFoodItem{
		Name:       strings.TrimSpace(f.FoodName),
		Brand:      strings.TrimSpace(f.BrandName),
		Source:     types.SourceFatSecret,
		ExternalID: f.FoodID,
	}

	amount := def.MetricAmount.Ptr()
	unit := strings.ToLower(strings.TrimSpace(def.MetricUnit))
	if amount != nil && unit == "oz" {
		amount, unit = types.Ptr(*amount*ozGrams), "g"
	}
	switch {
	case amount == nil || math.IsNaN(*amount):
		item.WeightUnknown = true
	case unit == "ml":
		item.IsLiquid = true
		item.DefaultServingLiquidMl = types.Ptr(round3(*amount))
	default:
		item.DefaultServingWeightGram = types.Ptr(round3(*amount))
	}

	macros := newMacroSetter(item)
	macros.Set(macroKcal, def.Calories.Value())
	macros.Set(macroProtein, def.Protein.Value())
	macros.Set(macroFat, def.Fat.Value())
	macros.Set(macroCarb, def.Carbohydrate.Value())
	macros.SetPtr(macroFiber, def.Fiber.Ptr())
	macros.SetPtr(macroSugar, def.Sugar.Ptr())
	macros.SetPtr(macroAddedSugar, def.AddedSugars.Ptr())
	macros.SetPtr(macroSatFat, def.SaturatedFat.Ptr())
	macros.SetPtr(macroTransFat, def.TransFat.Ptr())

	var micros nutrientList
	micros.AddPtr("Cholesterol", "mg", def.Cholesterol.Ptr())
	micros.AddPtr("Potassium", "mg", def.Potassium.Ptr())
	micros.AddPtr("Vitamin A", "µg", def.VitaminA.Ptr())
	micros.AddPtr("Vitamin C", "mg", def.VitaminC.Ptr())
	micros.AddPtr("Vitamin D", "µg", def.VitaminD.Ptr())
	micros.AddPtr("Sodium", "mg", def.Sodium.Ptr())
	micros.AddPtr("Calcium", "mg", def.Calcium.Ptr())
	micros.AddPtr("Iron", "mg", def.Iron.Ptr())
	item.Nutrients = micros.list

	var alts []types.Serving
	for _, s := range servings {
		if isFatSecret100g(s) || isFatSecretOunce(s) {
			continue
		}
		alts = append(alts, fatSecretServing(s))
	}
	item.Servings = ReconcileServings(alts)
	return item, nil
}

// dedupeFatSecret keeps one serving per metric amount, preferring the
// shorter description.
func dedupeFatSecret(in []FatSecretServing) []FatSecretServing {
	index := make(map[string]int)
	var out []FatSecretServing
	for _, s := range in {
		key := "?" + s.ID
		if a := s.MetricAmount.Ptr(); a != nil {
			key = fmt.Sprintf("%.3f %s", *a, strings.ToLower(s.MetricUnit))
		}
		if i, ok := index[key]; ok {
			if len(s.Description) < len(out[i].Description) {
				out[i] = s
			}
			continue
		}
		index[key] = len(out)
		out = append(out, s)
	}
	return out
}

func isFatSecret100g(s FatSecretServing) bool {
	a := s.MetricAmount.Ptr()
	return a != nil && *a == 100 && strings.EqualFold(s.MetricUnit, "g")
}

func isFatSecretOunce(s FatSecretServing) bool {
	a := s.MetricAmount.Ptr()
	return a != nil && math.Abs(*a-28.35) < 1e-9 && strings.EqualFold(s.MeasurementDescription, "oz")
}

func fatSecretServing(s FatSecretServing) types.Serving {
	out := types.Serving{Name: strings.TrimSpace(s.Description)}
	a := s.MetricAmount.Ptr()
	unit := strings.ToLower(strings.TrimSpace(s.MetricUnit))
	if a != nil && unit == "oz" {
		a, unit = types.Ptr(*a*ozGrams), "g"
	}
	if a != nil && unit == "g" {
		out.WeightGram = types.Ptr(round3(*a))
		return out
	}
	if n := s.NumberOfUnits.Ptr(); n != nil && s.MeasurementDescription != "" {
		out.AlternateAmount = n
		out.AlternateUnit = s.MeasurementDescription
	}
	return out
}
