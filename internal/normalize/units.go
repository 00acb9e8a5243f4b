// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package normalize

import (
	"math"
	"strings"
)

// Dimension is the physical quantity a unit measures.
type Dimension int

const (
	DimUnknown Dimension = iota
	DimMass
	DimVolume
)

type unitFactor struct {
	dim    Dimension
	factor float64 // grams or milliliters per unit
}

// unitTable maps a unit spelling to grams (mass) or milliliters (volume).
var unitTable = map[string]unitFactor{
	"g":     {DimMass, 1},
	"gr":    {DimMass, 1},
	"grm":   {DimMass, 1},
	"gram":  {DimMass, 1},
	"grams": {DimMass, 1},
	"mg":    {DimMass, 0.001},
	"kg":    {DimMass, 1000},
	"oz":    {DimMass, 28.3495},
	"ounce": {DimMass, 28.3495},
	"lb":    {DimMass, 453.592},
	"lbs":   {DimMass, 453.592},
	"pound": {DimMass, 453.592},

	"ml":          {DimVolume, 1},
	"mlt":         {DimVolume, 1},
	"milliliter":  {DimVolume, 1},
	"millilitre":  {DimVolume, 1},
	"l":           {DimVolume, 1000},
	"liter":       {DimVolume, 1000},
	"litre":       {DimVolume, 1000},
	"fl oz":       {DimVolume, 29.5735},
	"floz":        {DimVolume, 29.5735},
	"fluid ounce": {DimVolume, 29.5735},
	"cup":         {DimVolume, 236.588},
	"tbsp":        {DimVolume, 14.7868},
	"tablespoon":  {DimVolume, 14.7868},
	"tsp":         {DimVolume, 4.92892},
	"teaspoon":    {DimVolume, 4.92892},
}

// normalizeUnit lowercases a unit and strips plurals and punctuation.
func normalizeUnit(unit string) string {
	u := strings.ToLower(strings.TrimSpace(unit))
	u = strings.TrimSuffix(u, ".")
	u = strings.Join(strings.Fields(u), " ")
	if _, ok := unitTable[u]; ok {
		return u
	}
	if s, ok := strings.CutSuffix(u, "es"); ok {
		if _, known := unitTable[s]; known {
			return s
		}
	}
	if s, ok := strings.CutSuffix(u, "s"); ok {
		if _, known := unitTable[s]; known {
			return s
		}
	}
	return u
}

// Convert returns amount in grams (DimMass) or milliliters (DimVolume). The
// dimension is DimUnknown for units that are neither.
func Convert(amount float64, unit string) (float64, Dimension) {
	f, ok := unitTable[normalizeUnit(unit)]
	if !ok {
		return 0, DimUnknown
	}
	return amount * f.factor, f.dim
}

// ToGrams converts a mass to grams.
func ToGrams(amount float64, unit string) (float64, bool) {
	v, dim := Convert(amount, unit)
	return v, dim == DimMass
}

// ToMilliliters converts a volume to milliliters.
func ToMilliliters(amount float64, unit string) (float64, bool) {
	v, dim := Convert(amount, unit)
	return v, dim == DimVolume
}

// iuFactor converts International Units to the canonical unit for the
// vitamins that are reported in IU.
var iuFactor = map[string]struct {
	unit   string
	factor float64
}{
	"Vitamin A": {"µg", 0.3},
	"Vitamin D": {"µg", 0.025},
	"Vitamin E": {"mg", 0.67},
}

// ConvertIU converts an IU amount of the named vitamin. It reports false for
// nutrients without a known factor.
func ConvertIU(nutrient string, amount float64) (float64, string, bool) {
	f, ok := iuFactor[nutrient]
	if !ok {
		return 0, "", false
	}
	return amount * f.factor, f.unit, true
}

// round3 rounds to three decimals.
func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
