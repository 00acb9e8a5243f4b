// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package normalize

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pdiddy/food-resolver/pkg/types"
)

// normalizeUSDA maps a FoodData Central record. Nutrient amounts in
// foodNutrients are per 100 g; branded records with a gram or milliliter
// servingSize are rescaled to that serving, and their labelNutrients (which
// are already per serving) take precedence over the rescaled values.
func normalizeUSDA(f USDAFood) (*types.CanonicalFoodItem, error) {
	if strings.TrimSpace(f.Description) == "" {
		return nil, fmt.Errorf("usda food %d: missing description", f.FDCID)
	}

	item := &types.CanonicalFoodItem{
		Name:       titleCase(f.Description),
		Source:     types.SourceUSDA,
		ExternalID: strconv.FormatInt(f.FDCID, 10),
		UPC:        strings.TrimSpace(f.GTINUPC),
	}
	if f.Branded() {
		brand := f.BrandName
		if brand == "" {
			brand = f.BrandOwner
		}
		item.Brand = titleCase(brand)
	}

	// Default serving: the labelled serving for branded foods, else 100 g.
	scale := 1.0
	labelled := false
	if size := f.ServingSize.Ptr(); f.Branded() && size != nil && *size > 0 {
		switch v, dim := Convert(*size, f.ServingSizeUnit); dim {
		case DimMass:
			item.DefaultServingWeightGram = types.Ptr(round3(v))
			scale, labelled = v/100, true
		case DimVolume:
			item.IsLiquid = true
			item.DefaultServingLiquidMl = types.Ptr(round3(v))
			scale, labelled = v/100, true
		}
	}
	if !labelled {
		item.DefaultServingWeightGram = types.Ptr(100)
	}

	macros := newMacroSetter(item)
	var micros nutrientList

	if labelled {
		for key, label := range f.LabelNutrients {
			v := label.Value.Ptr()
			if v == nil {
				continue
			}
			if m, ok := labelMacros[key]; ok {
				macros.Set(m, *v)
				continue
			}
			if n, ok := labelMicros[key]; ok {
				micros.Add(n.name, n.unit, *v)
			}
		}
	}

	for _, n := range f.FoodNutrients {
		v := n.Amount.Ptr()
		if v == nil {
			continue
		}
		name, unit := n.Nutrient.Name, n.Nutrient.UnitName
		if m, ok := usdaMacros[name]; ok {
			if m == macroKcal && !strings.EqualFold(unit, "kcal") {
				continue
			}
			macros.Set(m, *v*scale)
			continue
		}
		if strings.EqualFold(unit, "kJ") || strings.EqualFold(unit, "kcal") {
			continue
		}
		micros.Add(name, unit, *v*scale)
	}
	item.Nutrients = micros.list

	item.Servings = ReconcileServings(usdaServings(f))
	return item, nil
}

// usdaServings lists foodPortions, plus the labelled household serving of a
// branded food.
func usdaServings(f USDAFood) []types.Serving {
	var out []types.Serving
	for _, p := range f.FoodPortions {
		s := types.Serving{WeightGram: p.GramWeight.Ptr(), Name: portionName(p)}
		if s.WeightGram == nil {
			continue
		}
		out = append(out, s)
	}

	size := f.ServingSize.Ptr()
	if size == nil || *size <= 0 {
		return out
	}
	s := types.Serving{Name: strings.TrimSpace(f.HouseholdServingFullText)}
	if g, ok := ToGrams(*size, f.ServingSizeUnit); ok {
		s.WeightGram = types.Ptr(round3(g))
	} else {
		s.AlternateAmount = types.Ptr(*size)
		s.AlternateUnit = strings.ToLower(f.ServingSizeUnit)
	}
	if s.Name == "" {
		s.Name = strings.TrimSpace(fmt.Sprintf("%s %s", strconv.FormatFloat(*size, 'f', -1, 64), strings.ToLower(f.ServingSizeUnit)))
	}
	return append(out, s)
}

func portionName(p USDAPortion) string {
	if d := strings.TrimSpace(p.PortionDescription); d != "" && !strings.EqualFold(d, "Quantity not specified") {
		return d
	}
	var parts []string
	if a := p.Amount.Ptr(); a != nil {
		parts = append(parts, strconv.FormatFloat(*a, 'f', -1, 64))
	}
	if u := p.MeasureUnit.Name; u != "" && !strings.EqualFold(u, "undetermined") {
		parts = append(parts, u)
	}
	if m := strings.TrimSpace(p.Modifier); m != "" {
		parts = append(parts, m)
	}
	return strings.Join(parts, " ")
}
