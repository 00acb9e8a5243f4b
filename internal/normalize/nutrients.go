// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package normalize

import (
	"strings"

	"github.com/pdiddy/food-resolver/pkg/types"
)

// macro names a CanonicalFoodItem field.
type macro int

const (
	macroNone macro = iota
	macroKcal
	macroProtein
	macroFat
	macroCarb
	macroFiber
	macroSugar
	macroAddedSugar
	macroSatFat
	macroTransFat
)

// usdaMacros maps FoodData Central nutrient names to macro fields. Earlier
// names for the same field win.
var usdaMacros = map[string]macro{
	"Energy":                             macroKcal,
	"Energy (Atwater General Factors)":   macroKcal,
	"Energy (Atwater Specific Factors)":  macroKcal,
	"Protein":                            macroProtein,
	"Total lipid (fat)":                  macroFat,
	"Total fat (NLEA)":                   macroFat,
	"Carbohydrate, by difference":        macroCarb,
	"Carbohydrate, by summation":         macroCarb,
	"Fiber, total dietary":               macroFiber,
	"Total dietary fiber (AOAC 2011.25)": macroFiber,
	"Sugars, total including NLEA":       macroSugar,
	"Sugars, Total":                      macroSugar,
	"Total Sugars":                       macroSugar,
	"Sugars, added":                      macroAddedSugar,
	"Fatty acids, total saturated":       macroSatFat,
	"Fatty acids, total trans":           macroTransFat,
}

// labelMacros maps USDA labelNutrients keys to macro fields.
var labelMacros = map[string]macro{
	"calories":      macroKcal,
	"protein":       macroProtein,
	"fat":           macroFat,
	"carbohydrates": macroCarb,
	"fiber":         macroFiber,
	"sugars":        macroSugar,
	"addedSugar":    macroAddedSugar,
	"saturatedFat":  macroSatFat,
	"transFat":      macroTransFat,
}

// labelMicros maps the remaining labelNutrients keys to canonical nutrients.
var labelMicros = map[string]struct{ name, unit string }{
	"sodium":      {"Sodium", "mg"},
	"cholesterol": {"Cholesterol", "mg"},
	"calcium":     {"Calcium", "mg"},
	"iron":        {"Iron", "mg"},
	"potassium":   {"Potassium", "mg"},
}

// canonicalNutrientNames folds source spellings into one name per nutrient.
var canonicalNutrientNames = map[string]string{
	"sodium, na":                               "Sodium",
	"potassium, k":                             "Potassium",
	"calcium, ca":                              "Calcium",
	"iron, fe":                                 "Iron",
	"magnesium, mg":                            "Magnesium",
	"zinc, zn":                                 "Zinc",
	"phosphorus, p":                            "Phosphorus",
	"cholesterol":                              "Cholesterol",
	"vitamin a, iu":                            "Vitamin A",
	"vitamin a, rae":                           "Vitamin A",
	"vitamin c, total ascorbic acid":           "Vitamin C",
	"vitamin d (d2 + d3), international units": "Vitamin D",
	"vitamin d (d2 + d3)":                      "Vitamin D",
	"vitamin e (alpha-tocopherol)":             "Vitamin E",
	"vitamin b-12":                             "Vitamin B12",
	"vitamin b-6":                              "Vitamin B6",
	"fatty acids, total monounsaturated":       "Monounsaturated Fat",
	"fatty acids, total polyunsaturated":       "Polyunsaturated Fat",
	"caffeine":                                 "Caffeine",
}

// CanonicalNutrientName returns the canonical spelling of a nutrient name.
// Unknown names are title-cased with underscores turned into spaces.
func CanonicalNutrientName(name string) string {
	key := strings.ToLower(strings.TrimSpace(name))
	if c, ok := canonicalNutrientNames[key]; ok {
		return c
	}
	return titleCase(strings.ReplaceAll(key, "_", " "))
}

// macroSetter assigns macro values to an item, remembering which fields
// were set so that lower-priority sources do not overwrite them.
type macroSetter struct {
	item *types.CanonicalFoodItem
	set  map[macro]bool
}

func newMacroSetter(item *types.CanonicalFoodItem) *macroSetter {
	return &macroSetter{item: item, set: make(map[macro]bool)}
}

// Set stores v in field m unless the field was already set. It reports
// whether the value was stored.
func (s *macroSetter) Set(m macro, v float64) bool {
	if m == macroNone || s.set[m] {
		return false
	}
	s.set[m] = true
	v = round3(v)
	it := s.item
	switch m {
	case macroKcal:
		it.KcalPerServing = v
	case macroProtein:
		it.ProteinPerServing = v
	case macroFat:
		it.TotalFatPerServing = v
	case macroCarb:
		it.CarbPerServing = v
	case macroFiber:
		it.FiberPerServing = types.Ptr(v)
	case macroSugar:
		it.SugarPerServing = types.Ptr(v)
	case macroAddedSugar:
		it.AddedSugarPerServing = types.Ptr(v)
	case macroSatFat:
		it.SatFatPerServing = types.Ptr(v)
	case macroTransFat:
		it.TransFatPerServing = types.Ptr(v)
	}
	return true
}

// SetPtr is Set for an optional value; nil is skipped.
func (s *macroSetter) SetPtr(m macro, v *float64) {
	if v != nil {
		s.Set(m, *v)
	}
}

// nutrientList collects micro-nutrients, keeping the first value seen per
// canonical name.
type nutrientList struct {
	seen map[string]bool
	list []types.Nutrient
}

func (l *nutrientList) Add(name, unit string, amount float64) {
	name = CanonicalNutrientName(name)
	if strings.EqualFold(unit, "IU") {
		if v, u, ok := ConvertIU(name, amount); ok {
			amount, unit = v, u
		}
	}
	if unit == "UG" || unit == "ug" || unit == "mcg" {
		unit = "µg"
	}
	if unit == "MG" {
		unit = "mg"
	}
	if unit == "G" {
		unit = "g"
	}
	if l.seen == nil {
		l.seen = make(map[string]bool)
	}
	if l.seen[name] {
		return
	}
	l.seen[name] = true
	l.list = append(l.list, types.Nutrient{Name: name, Unit: unit, AmountPerDefaultServing: types.Ptr(round3(amount))})
}

// AddPtr is Add for an optional amount; nil is skipped.
func (l *nutrientList) AddPtr(name, unit string, amount *float64) {
	if amount != nil {
		l.Add(name, unit, *amount)
	}
}
