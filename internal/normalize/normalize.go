// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package normalize converts source-specific food payloads into
// CanonicalFoodItem records and reconciles their serving lists.
package normalize

import (
	"fmt"
	"strings"

	"github.com/pdiddy/food-resolver/pkg/types"
)

// Normalize converts p into a canonical item using the adapter for its
// variant.
func Normalize(p Payload) (*types.CanonicalFoodItem, error) {
	var (
		item *types.CanonicalFoodItem
		err  error
	)
	switch v := p.(type) {
	case USDAFood:
		item, err = normalizeUSDA(v)
	case *USDAFood:
		item, err = normalizeUSDA(*v)
	case NutritionixFood:
		item, err = normalizeNutritionix(v)
	case *NutritionixFood:
		item, err = normalizeNutritionix(*v)
	case FatSecretFood:
		item, err = normalizeFatSecret(v)
	case *FatSecretFood:
		item, err = normalizeFatSecret(*v)
	case LocalFood:
		item, err = normalizeLocal(v)
	case *LocalFood:
		item, err = normalizeLocal(*v)
	default:
		return nil, fmt.Errorf("normalize: unsupported payload %T", p)
	}
	if err != nil {
		return nil, fmt.Errorf("normalizing %s payload: %w", p.Source(), err)
	}
	return item, nil
}

// normalizeLocal re-validates a stored item. Stored items are already
// canonical; only servings and nutrient names are reconciled again.
func normalizeLocal(f LocalFood) (*types.CanonicalFoodItem, error) {
	item := f.Item
	if strings.TrimSpace(item.Name) == "" {
		return nil, fmt.Errorf("local food %s: missing name", item.ExternalID)
	}
	item.Source = types.SourceLocal
	item.Servings = ReconcileServings(append([]types.Serving(nil), item.Servings...))

	var micros nutrientList
	for _, n := range item.Nutrients {
		micros.AddPtr(n.Name, n.Unit, n.AmountPerDefaultServing)
	}
	item.Nutrients = micros.list
	return &item, nil
}
