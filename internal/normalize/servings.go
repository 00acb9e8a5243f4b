// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package normalize

import (
	"math"
	"strings"

	"github.com/pdiddy/food-resolver/pkg/types"
)

// NearDuplicateRatio is the relative weight difference below which two
// servings count as the same serving.
const NearDuplicateRatio = 0.2

// RelativeDifference returns |a - b| divided by the larger magnitude of the
// two, so the result does not depend on argument order.
func RelativeDifference(a, b float64) float64 {
	d := math.Max(math.Abs(a), math.Abs(b))
	if d == 0 {
		return 0
	}
	return math.Abs(a-b) / d
}

// NearDuplicate reports whether a and b are within NearDuplicateRatio of
// each other.
func NearDuplicate(a, b float64) bool {
	return RelativeDifference(a, b) < NearDuplicateRatio
}

// measure returns a serving's size in grams or milliliters.
func measure(s types.Serving) (float64, Dimension) {
	if types.Known(s.WeightGram) {
		return *s.WeightGram, DimMass
	}
	if types.Known(s.AlternateAmount) {
		if v, dim := Convert(*s.AlternateAmount, s.AlternateUnit); dim == DimVolume {
			return v, dim
		}
	}
	return 0, DimUnknown
}

// bareDefaultNames are serving names that only restate 100 g or 100 ml.
var bareDefaultNames = map[string]bool{
	"100g": true, "100gram": true, "100grams": true, "g": true, "gram": true, "grams": true,
	"100ml": true, "ml": true, "100milliliters": true, "100millilitres": true,
}

// isBareDefault reports whether s is a plain 100 g or 100 ml serving, which
// the default-serving fields already represent.
func isBareDefault(s types.Serving) bool {
	amount, dim := measure(s)
	if dim == DimUnknown || math.Abs(amount-100) > 1e-9 {
		return false
	}
	name := strings.ToLower(strings.Join(strings.Fields(s.Name), ""))
	return name == "" || bareDefaultNames[name]
}

// ReconcileServings deduplicates servings. Exact (weight, unit) duplicates
// keep the shorter name; a serving within NearDuplicateRatio of one already
// kept is dropped; bare 100 g / 100 ml servings are removed. Servings
// without a usable measure are kept unless their name repeats. Kept
// servings are renumbered from 1.
func ReconcileServings(in []types.Serving) []types.Serving {
	type key struct {
		amount float64
		dim    Dimension
	}

	// Pass 1: exact duplicates, keeping the first position.
	exact := make(map[key]int)
	names := make(map[string]bool)
	var pass1 []types.Serving
	for _, s := range in {
		s.Name = strings.TrimSpace(s.Name)
		amount, dim := measure(s)
		if dim == DimUnknown {
			n := strings.ToLower(s.Name)
			if n == "" || names[n] {
				continue
			}
			names[n] = true
			pass1 = append(pass1, s)
			continue
		}
		k := key{round3(amount), dim}
		if i, ok := exact[k]; ok {
			if len(s.Name) < len(pass1[i].Name) && s.Name != "" {
				pass1[i] = s
			}
			continue
		}
		exact[k] = len(pass1)
		pass1 = append(pass1, s)
	}

	// Pass 2: bare defaults and near duplicates.
	var out []types.Serving
	for _, s := range pass1 {
		if isBareDefault(s) {
			continue
		}
		amount, dim := measure(s)
		if dim != DimUnknown && nearKept(out, amount, dim) {
			continue
		}
		out = append(out, s)
	}

	for i := range out {
		out[i].ID = i + 1
	}
	return out
}

func nearKept(kept []types.Serving, amount float64, dim Dimension) bool {
	for _, k := range kept {
		ka, kd := measure(k)
		if kd == dim && NearDuplicate(amount, ka) {
			return true
		}
	}
	return false
}
