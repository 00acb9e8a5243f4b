// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package normalize

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pdiddy/food-resolver/pkg/types"
)

// nixNutrients maps Nutritionix full_nutrients attribute ids, which follow
// USDA nutrient numbers.
var nixNutrients = map[int]struct {
	name, unit string
	m          macro
}{
	301: {"Calcium", "mg", macroNone},
	303: {"Iron", "mg", macroNone},
	306: {"Potassium", "mg", macroNone},
	307: {"Sodium", "mg", macroNone},
	601: {"Cholesterol", "mg", macroNone},
	401: {"Vitamin C", "mg", macroNone},
	318: {"Vitamin A", "IU", macroNone},
	324: {"Vitamin D", "IU", macroNone},
	605: {"", "g", macroTransFat},
	539: {"", "g", macroAddedSugar},
}

// nixAttrOrder fixes the order in which micro-nutrients are listed.
var nixAttrOrder = []int{307, 601, 306, 301, 303, 318, 401, 324, 605, 539}

// normalizeNutritionix maps a Nutritionix food. All values are per the
// primary serving (serving_qty serving_unit).
func normalizeNutritionix(f NutritionixFood) (*types.CanonicalFoodItem, error) {
	if strings.TrimSpace(f.FoodName) == "" {
		return nil, fmt.Errorf("nutritionix food %s: missing food_name", f.ExternalID())
	}

	item := &types.CanonicalFoodItem{
		Name:       titleCase(f.FoodName),
		Brand:      strings.TrimSpace(f.BrandName),
		Source:     types.SourceNutritionix,
		ExternalID: f.ExternalID(),
		UPC:        strings.TrimSpace(f.UPC),
	}

	switch {
	case f.ServingWeightGrams.Ptr() != nil:
		item.DefaultServingWeightGram = types.Ptr(round3(f.ServingWeightGrams.Value()))
	case f.MetricQty.Ptr() != nil:
		switch v, dim := Convert(f.MetricQty.Value(), f.MetricUOM); dim {
		case DimMass:
			item.DefaultServingWeightGram = types.Ptr(round3(v))
		case DimVolume:
			item.IsLiquid = true
			item.DefaultServingLiquidMl = types.Ptr(round3(v))
		default:
			item.WeightUnknown = true
		}
	default:
		item.WeightUnknown = true
	}

	macros := newMacroSetter(item)
	macros.SetPtr(macroKcal, f.Calories.Ptr())
	macros.SetPtr(macroProtein, f.Protein.Ptr())
	macros.SetPtr(macroFat, f.TotalFat.Ptr())
	macros.SetPtr(macroCarb, f.TotalCarbohydrate.Ptr())
	macros.SetPtr(macroFiber, f.DietaryFiber.Ptr())
	macros.SetPtr(macroSugar, f.Sugars.Ptr())
	macros.SetPtr(macroSatFat, f.SaturatedFat.Ptr())

	var micros nutrientList
	micros.AddPtr("Sodium", "mg", f.Sodium.Ptr())
	micros.AddPtr("Cholesterol", "mg", f.Cholesterol.Ptr())
	micros.AddPtr("Potassium", "mg", f.Potassium.Ptr())

	full := make(map[int]*float64, len(f.FullNutrients))
	for _, n := range f.FullNutrients {
		if _, dup := full[n.AttrID]; !dup {
			full[n.AttrID] = n.Value.Ptr()
		}
	}
	for _, id := range nixAttrOrder {
		v, ok := full[id]
		if !ok || v == nil {
			continue
		}
		n := nixNutrients[id]
		if n.m != macroNone {
			macros.Set(n.m, *v)
			continue
		}
		micros.Add(n.name, n.unit, *v)
	}
	item.Nutrients = micros.list

	item.Servings = ReconcileServings(nixServings(f))
	return item, nil
}

func nixServings(f NutritionixFood) []types.Serving {
	var out []types.Serving
	if w := f.ServingWeightGrams.Ptr(); w != nil {
		out = append(out, types.Serving{
			Name:       quantityName(f.ServingQty.Ptr(), f.ServingUnit),
			WeightGram: types.Ptr(round3(*w)),
		})
	}
	for _, m := range f.AltMeasures {
		w := m.ServingWeight.Ptr()
		if w == nil {
			continue
		}
		out = append(out, types.Serving{
			Name:       quantityName(m.Qty.Ptr(), m.Measure),
			WeightGram: types.Ptr(round3(*w)),
		})
	}
	return out
}

func quantityName(qty *float64, unit string) string {
	unit = strings.TrimSpace(unit)
	if qty == nil {
		return unit
	}
	return strings.TrimSpace(strconv.FormatFloat(*qty, 'f', -1, 64) + " " + unit)
}
