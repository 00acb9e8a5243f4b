// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package normalize

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/pdiddy/food-resolver/pkg/types"
)

// Payload is a full food record as returned by one source. The set of
// variants is closed: USDAFood, NutritionixFood, FatSecretFood, LocalFood.
type Payload interface {
	Source() types.FoodSource
	payload()
}

// Amount is an optional number that sources encode either as a JSON number
// or as a numeric string. Empty or unparsable strings read as NaN so that
// Ptr reports them as unknown.
type Amount float64

func (a *Amount) UnmarshalJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	switch x := v.(type) {
	case float64:
		*a = Amount(x)
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			f = math.NaN()
		}
		*a = Amount(f)
	case nil:
		*a = Amount(math.NaN())
	default:
		return fmt.Errorf("invalid amount %s", data)
	}
	return nil
}

// Ptr returns the amount as a *float64, nil when unknown.
func (a *Amount) Ptr() *float64 {
	if a == nil || math.IsNaN(float64(*a)) {
		return nil
	}
	v := float64(*a)
	return &v
}

// Value returns the amount, or 0 when unknown.
func (a *Amount) Value() float64 {
	if p := a.Ptr(); p != nil {
		return *p
	}
	return 0
}

// Amt builds an *Amount literal.
func Amt(v float64) *Amount {
	a := Amount(v)
	return &a
}

// --- USDA FoodData Central ---

// USDAFood is a FoodData Central record in "full" format.
type USDAFood struct {
	FDCID                    int64                `json:"fdcId"`
	Description              string               `json:"description"`
	DataType                 string               `json:"dataType"`
	BrandOwner               string               `json:"brandOwner"`
	BrandName                string               `json:"brandName"`
	GTINUPC                  string               `json:"gtinUpc"`
	ServingSize              *Amount              `json:"servingSize"`
	ServingSizeUnit          string               `json:"servingSizeUnit"`
	HouseholdServingFullText string               `json:"householdServingFullText"`
	FoodNutrients            []USDANutrient       `json:"foodNutrients"`
	FoodPortions             []USDAPortion        `json:"foodPortions"`
	LabelNutrients           map[string]USDALabel `json:"labelNutrients"`
}

// USDANutrient is one per-100 g nutrient value.
type USDANutrient struct {
	Nutrient struct {
		Number   string `json:"number"`
		Name     string `json:"name"`
		UnitName string `json:"unitName"`
	} `json:"nutrient"`
	Amount *Amount `json:"amount"`
}

// USDAPortion is a household portion with its gram weight.
type USDAPortion struct {
	Amount             *Amount  `json:"amount"`
	GramWeight         *Amount  `json:"gramWeight"`
	Modifier           string   `json:"modifier"`
	PortionDescription string   `json:"portionDescription"`
	MeasureUnit        USDAUnit `json:"measureUnit"`
}

// USDAUnit names a portion's household measure.
type USDAUnit struct {
	Name         string `json:"name"`
	Abbreviation string `json:"abbreviation"`
}

// USDALabel is a value printed on a branded product's label, per serving.
type USDALabel struct {
	Value *Amount `json:"value"`
}

func (USDAFood) Source() types.FoodSource { return types.SourceUSDA }
func (USDAFood) payload()                 {}

// Branded reports whether the record comes from the branded foods dataset.
func (f USDAFood) Branded() bool { return strings.EqualFold(f.DataType, "Branded") }

// --- Nutritionix ---

// NutritionixFood is a food from the Nutritionix item or natural endpoints.
// Values are per serving_qty serving_unit.
type NutritionixFood struct {
	FoodName           string                `json:"food_name"`
	BrandName          string                `json:"brand_name"`
	NixItemID          string                `json:"nix_item_id"`
	TagID              string                `json:"tag_id"`
	UPC                string                `json:"upc"`
	ServingQty         *Amount               `json:"serving_qty"`
	ServingUnit        string                `json:"serving_unit"`
	ServingWeightGrams *Amount               `json:"serving_weight_grams"`
	MetricQty          *Amount               `json:"nf_metric_qty"`
	MetricUOM          string                `json:"nf_metric_uom"`
	Calories           *Amount               `json:"nf_calories"`
	TotalFat           *Amount               `json:"nf_total_fat"`
	SaturatedFat       *Amount               `json:"nf_saturated_fat"`
	Cholesterol        *Amount               `json:"nf_cholesterol"`
	Sodium             *Amount               `json:"nf_sodium"`
	TotalCarbohydrate  *Amount               `json:"nf_total_carbohydrate"`
	DietaryFiber       *Amount               `json:"nf_dietary_fiber"`
	Sugars             *Amount               `json:"nf_sugars"`
	Protein            *Amount               `json:"nf_protein"`
	Potassium          *Amount               `json:"nf_potassium"`
	FullNutrients      []NutritionixNutrient `json:"full_nutrients"`
	AltMeasures        []NutritionixMeasure  `json:"alt_measures"`
}

// NutritionixNutrient is an entry of full_nutrients, keyed by USDA
// nutrient number.
type NutritionixNutrient struct {
	AttrID int     `json:"attr_id"`
	Value  *Amount `json:"value"`
}

// NutritionixMeasure is an alternative serving.
type NutritionixMeasure struct {
	ServingWeight *Amount `json:"serving_weight"`
	Measure       string  `json:"measure"`
	Qty           *Amount `json:"qty"`
}

func (NutritionixFood) Source() types.FoodSource { return types.SourceNutritionix }
func (NutritionixFood) payload()                 {}

// ExternalID is the branded item id. Common foods have none and are
// identified by their lowercased name.
func (f NutritionixFood) ExternalID() string {
	if f.NixItemID != "" {
		return f.NixItemID
	}
	return "name:" + strings.ToLower(strings.TrimSpace(f.FoodName))
}

// --- FatSecret ---

// FatSecretFood is a food.get response body.
type FatSecretFood struct {
	FoodID    string             `json:"food_id"`
	FoodName  string             `json:"food_name"`
	FoodType  string             `json:"food_type"`
	BrandName string             `json:"brand_name"`
	Servings  []FatSecretServing `json:"-"`
}

// FatSecretServing is one serving with nutrient values for that serving.
type FatSecretServing struct {
	ID                     string  `json:"serving_id"`
	Description            string  `json:"serving_description"`
	MetricAmount           *Amount `json:"metric_serving_amount"`
	MetricUnit             string  `json:"metric_serving_unit"`
	NumberOfUnits          *Amount `json:"number_of_units"`
	MeasurementDescription string  `json:"measurement_description"`
	Calories               *Amount `json:"calories"`
	Carbohydrate           *Amount `json:"carbohydrate"`
	Protein                *Amount `json:"protein"`
	Fat                    *Amount `json:"fat"`
	SaturatedFat           *Amount `json:"saturated_fat"`
	TransFat               *Amount `json:"trans_fat"`
	Cholesterol            *Amount `json:"cholesterol"`
	Sodium                 *Amount `json:"sodium"`
	Potassium              *Amount `json:"potassium"`
	Fiber                  *Amount `json:"fiber"`
	Sugar                  *Amount `json:"sugar"`
	AddedSugars            *Amount `json:"added_sugars"`
	VitaminA               *Amount `json:"vitamin_a"`
	VitaminC               *Amount `json:"vitamin_c"`
	VitaminD               *Amount `json:"vitamin_d"`
	Calcium                *Amount `json:"calcium"`
	Iron                   *Amount `json:"iron"`
}

// UnmarshalJSON handles the API's habit of returning a single serving as an
// object instead of a one-element array.
func (f *FatSecretFood) UnmarshalJSON(data []byte) error {
	type plain FatSecretFood
	var aux struct {
		plain
		Servings struct {
			Serving json.RawMessage `json:"serving"`
		} `json:"servings"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*f = FatSecretFood(aux.plain)

	raw := aux.Servings.Serving
	switch {
	case len(raw) == 0 || string(raw) == "null":
	case raw[0] == '[':
		if err := json.Unmarshal(raw, &f.Servings); err != nil {
			return fmt.Errorf("decoding servings: %w", err)
		}
	default:
		var one FatSecretServing
		if err := json.Unmarshal(raw, &one); err != nil {
			return fmt.Errorf("decoding serving: %w", err)
		}
		f.Servings = []FatSecretServing{one}
	}
	return nil
}

func (FatSecretFood) Source() types.FoodSource { return types.SourceFatSecret }
func (FatSecretFood) payload()                 {}

// --- local mirror ---

// LocalFood is a record previously resolved and stored in the local mirror.
type LocalFood struct {
	Item types.CanonicalFoodItem
}

func (LocalFood) Source() types.FoodSource { return types.SourceLocal }
func (LocalFood) payload()                 {}
