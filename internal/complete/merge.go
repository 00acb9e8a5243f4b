// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package complete

import (
	"slices"
	"strings"

	"go.uber.org/zap"

	"github.com/pdiddy/food-resolver/internal/calc"
	"github.com/pdiddy/food-resolver/internal/logging"
	"github.com/pdiddy/food-resolver/internal/normalize"
	"github.com/pdiddy/food-resolver/pkg/types"
)

// Merge applies patch to a copy of item. Only unknown fields are written:
// nil or NaN numbers and empty strings. A known value, including 0, is
// never replaced. Patch servings with an id already on the item fill that
// serving's gaps; other patch servings are appended unless their weight is
// a near duplicate of an existing serving. Weight expressions that fail to
// evaluate become weightFallback grams.
func Merge(item *types.CanonicalFoodItem, patch *types.CompletionPatch, weightFallback float64, log *zap.Logger) *types.CanonicalFoodItem {
	log = logging.OrNop(log)
	out := *item
	out.Servings = slices.Clone(item.Servings)
	out.Nutrients = slices.Clone(item.Nutrients)
	if patch == nil {
		return &out
	}

	if out.Description == "" {
		out.Description = strings.TrimSpace(patch.Description)
	}

	// IsLiquid selects the one default-serving field an item carries.
	if out.IsLiquid {
		if !types.Known(out.DefaultServingLiquidMl) {
			if v, ok := optional(patch.DefaultServingAmountMl, "default_serving_amount_ml", log); ok {
				out.DefaultServingLiquidMl = &v
			}
		}
		out.WeightUnknown = !types.Known(out.DefaultServingLiquidMl)
	} else {
		if !types.Known(out.DefaultServingWeightGram) {
			if v, ok := weight(patch.DefaultServingAmountGrams, weightFallback, "default_serving_amount_grams", log); ok {
				out.DefaultServingWeightGram = &v
			}
		}
		out.WeightUnknown = !types.Known(out.DefaultServingWeightGram)
	}

	for _, sp := range patch.Servings {
		if i := slices.IndexFunc(out.Servings, func(s types.Serving) bool { return s.ID == sp.ServingID }); i >= 0 {
			fillServing(&out.Servings[i], sp, weightFallback, log)
			continue
		}
		s, ok := newServing(sp, weightFallback, log)
		if !ok {
			continue
		}
		if dup := nearDuplicate(out.Servings, *s.WeightGram); dup != "" {
			log.Debug("proposed serving dropped as near duplicate",
				zap.String("serving", s.Name), zap.String("existing", dup))
			continue
		}
		out.Servings = append(out.Servings, s)
	}
	for i := range out.Servings {
		out.Servings[i].ID = i + 1
	}
	return &out
}

func fillServing(s *types.Serving, sp types.ServingPatch, weightFallback float64, log *zap.Logger) {
	if s.Name == "" {
		s.Name = strings.TrimSpace(sp.ServingName)
	}
	if !types.Known(s.WeightGram) {
		if v, ok := weight(sp.ServingWeightGrams, weightFallback, "serving_weight_grams", log); ok {
			s.WeightGram = &v
		}
	}
	if !types.Known(s.DefaultServingAmount) {
		if v, ok := optional(sp.DefaultServingAmount, "serving_default_serving_amount", log); ok {
			s.DefaultServingAmount = &v
		}
	}
	if !types.Known(s.AlternateAmount) {
		if v, ok := optional(sp.AlternateAmount, "serving_alternate_amount", log); ok {
			s.AlternateAmount = &v
		}
	}
	if s.AlternateUnit == "" {
		s.AlternateUnit = strings.TrimSpace(sp.AlternateUnit)
	}
}

// newServing builds a serving from a patch entry. Entries without a name
// or weight are not servings.
func newServing(sp types.ServingPatch, weightFallback float64, log *zap.Logger) (types.Serving, bool) {
	name := strings.TrimSpace(sp.ServingName)
	if name == "" {
		return types.Serving{}, false
	}
	w, ok := weight(sp.ServingWeightGrams, weightFallback, "serving_weight_grams", log)
	if !ok {
		return types.Serving{}, false
	}
	s := types.Serving{Name: name, WeightGram: &w, AlternateUnit: strings.TrimSpace(sp.AlternateUnit)}
	if v, ok := optional(sp.DefaultServingAmount, "serving_default_serving_amount", log); ok {
		s.DefaultServingAmount = &v
	}
	if v, ok := optional(sp.AlternateAmount, "serving_alternate_amount", log); ok {
		s.AlternateAmount = &v
	}
	return s, true
}

// nearDuplicate returns the name of the first serving whose known weight is
// within the near-duplicate ratio of grams.
func nearDuplicate(servings []types.Serving, grams float64) string {
	for _, s := range servings {
		if types.Known(s.WeightGram) && normalize.NearDuplicate(grams, *s.WeightGram) {
			if s.Name == "" {
				return "unnamed"
			}
			return s.Name
		}
	}
	return ""
}

// weight resolves a weight quantity. A null quantity proposes nothing; an
// expression that fails to evaluate, or a value that is not positive,
// becomes the fallback.
func weight(q types.Quantity, fallback float64, field string, log *zap.Logger) (float64, bool) {
	v, ok, err := calc.Resolve(q)
	switch {
	case err != nil:
		log.Warn("weight expression rejected; using fallback",
			zap.String("field", field), zap.String("expr", q.Expr),
			zap.Float64("fallback", fallback), zap.Error(err))
		return fallback, true
	case !ok:
		return 0, false
	case v <= 0:
		log.Warn("non-positive weight; using fallback",
			zap.String("field", field), zap.Float64("value", v), zap.Float64("fallback", fallback))
		return fallback, true
	}
	return v, true
}

// optional resolves a quantity that has no fallback. Failures are logged
// and leave the field unknown.
func optional(q types.Quantity, field string, log *zap.Logger) (float64, bool) {
	v, ok, err := calc.Resolve(q)
	if err != nil {
		log.Warn("expression rejected", zap.String("field", field), zap.String("expr", q.Expr), zap.Error(err))
		return 0, false
	}
	return v, ok
}
