// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package normalize

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/food-resolver/pkg/types"
)

func grams(v float64) types.Serving {
	return types.Serving{Name: "", WeightGram: types.Ptr(v)}
}

func named(name string, g float64) types.Serving {
	return types.Serving{Name: name, WeightGram: types.Ptr(g)}
}

func TestReconcileServings_DuplicateHundredGrams(t *testing.T) {
	// Two servings both equal to 100 g collapse into one entry.
	got := ReconcileServings([]types.Serving{
		named("1 portion (100 g)", 100),
		named("1 serving", 100),
	})
	require.Len(t, got, 1)
	assert.Equal(t, "1 serving", got[0].Name)
	assert.Equal(t, 1, got[0].ID)
}

func TestReconcileServings_NearDuplicates(t *testing.T) {
	got := ReconcileServings([]types.Serving{named("1 cup", 100), named("1 bowl", 115)})
	require.Len(t, got, 1)
	assert.Equal(t, "1 cup", got[0].Name)

	got = ReconcileServings([]types.Serving{named("1 cup", 100), named("2 cups", 200)})
	require.Len(t, got, 2)
	assert.Equal(t, []int{1, 2}, []int{got[0].ID, got[1].ID})
}

func TestReconcileServings_NearDuplicatesIgnoreOrder(t *testing.T) {
	tests := []struct {
		name string
		in   []types.Serving
		want int
	}{
		{"smaller first", []types.Serving{named("1 cup", 100), named("1 bowl", 120)}, 1},
		{"larger first", []types.Serving{named("1 bowl", 120), named("1 cup", 100)}, 1},
		{"apart smaller first", []types.Serving{named("1 cup", 100), named("1 bowl", 130)}, 2},
		{"apart larger first", []types.Serving{named("1 bowl", 130), named("1 cup", 100)}, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Len(t, ReconcileServings(tt.in), tt.want)
		})
	}
}

func TestReconcileServings_BareDefaultsDropped(t *testing.T) {
	got := ReconcileServings([]types.Serving{
		named("100 g", 100),
		{Name: "100 ml", AlternateAmount: types.Ptr(100), AlternateUnit: "ml"},
		named("1 slice", 30),
	})
	require.Len(t, got, 1)
	assert.Equal(t, "1 slice", got[0].Name)
}

func TestReconcileServings_UnknownWeightKept(t *testing.T) {
	got := ReconcileServings([]types.Serving{
		{Name: "1 package"},
		{Name: "1 package"},
		{Name: "1 piece", WeightGram: types.Ptr(math.NaN())},
	})
	require.Len(t, got, 2)
	assert.Equal(t, "1 package", got[0].Name)
	assert.Equal(t, "1 piece", got[1].Name)
}

func TestNearDuplicate(t *testing.T) {
	tests := []struct {
		a, b float64
		want bool
	}{
		{100, 100, true},
		{115, 100, true},
		{120, 100, true},
		{124.9, 100, true},
		{125, 100, false},
		{200, 100, false},
		{5, 0, false},
		{0, 0, true},
	}
	for _, tt := range tests {
		if got := NearDuplicate(tt.a, tt.b); got != tt.want {
			t.Errorf("NearDuplicate(%v, %v) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
		if got := NearDuplicate(tt.b, tt.a); got != tt.want {
			t.Errorf("NearDuplicate(%v, %v) = %v, want %v", tt.b, tt.a, got, tt.want)
		}
	}
}

func TestConvert(t *testing.T) {
	tests := []struct {
		amount float64
		unit   string
		want   float64
		dim    Dimension
	}{
		{1, "oz", 28.3495, DimMass},
		{2, "lbs", 907.184, DimMass},
		{1, "kg", 1000, DimMass},
		{2, "fl oz", 59.147, DimVolume},
		{1, "Cups", 236.588, DimVolume},
		{1, "L", 1000, DimVolume},
		{3, "slice", 0, DimUnknown},
	}
	for _, tt := range tests {
		got, dim := Convert(tt.amount, tt.unit)
		if dim != tt.dim || math.Abs(got-tt.want) > 1e-6 {
			t.Errorf("Convert(%v, %q) = %v, %v; want %v, %v", tt.amount, tt.unit, got, dim, tt.want, tt.dim)
		}
	}
}

func TestConvertIU(t *testing.T) {
	v, unit, ok := ConvertIU("Vitamin A", 1000)
	require.True(t, ok)
	assert.InDelta(t, 300, v, 1e-9)
	assert.Equal(t, "µg", unit)

	v, unit, ok = ConvertIU("Vitamin D", 400)
	require.True(t, ok)
	assert.InDelta(t, 10, v, 1e-9)
	assert.Equal(t, "µg", unit)

	_, _, ok = ConvertIU("Iron", 1)
	assert.False(t, ok)
}

func TestCanonicalNutrientName(t *testing.T) {
	assert.Equal(t, "Sodium", CanonicalNutrientName("Sodium, Na"))
	assert.Equal(t, "Vitamin A", CanonicalNutrientName("Vitamin A, IU"))
	assert.Equal(t, "Folic Acid", CanonicalNutrientName("folic_acid"))
}

const usdaBranded = `{
  "fdcId": 2041155,
  "description": "PEANUT BUTTER CUPS",
  "dataType": "Branded",
  "brandOwner": "The Hershey Company",
  "brandName": "REESES",
  "gtinUpc": "034000002467",
  "servingSize": 30,
  "servingSizeUnit": "g",
  "householdServingFullText": "1 cup",
  "foodNutrients": [
    {"nutrient": {"number": "208", "name": "Energy", "unitName": "kJ"}, "amount": 2180},
    {"nutrient": {"number": "208", "name": "Energy", "unitName": "kcal"}, "amount": 520},
    {"nutrient": {"number": "204", "name": "Total lipid (fat)", "unitName": "g"}, "amount": 29},
    {"nutrient": {"number": "203", "name": "Protein", "unitName": "g"}, "amount": 10},
    {"nutrient": {"number": "205", "name": "Carbohydrate, by difference", "unitName": "g"}, "amount": 56.67},
    {"nutrient": {"number": "307", "name": "Sodium, Na", "unitName": "MG"}, "amount": 350},
    {"nutrient": {"number": "318", "name": "Vitamin A, IU", "unitName": "IU"}, "amount": 100}
  ],
  "labelNutrients": {
    "fat": {"value": 9},
    "calories": {"value": 150}
  }
}`

func TestNormalize_USDALabelBeatsComputed(t *testing.T) {
	var f USDAFood
	require.NoError(t, json.Unmarshal([]byte(usdaBranded), &f))

	item, err := Normalize(f)
	require.NoError(t, err)

	// Computed fat is 29 * 30/100 = 8.7; the label says 9.
	assert.Equal(t, 9.0, item.TotalFatPerServing)
	assert.Equal(t, 150.0, item.KcalPerServing)
	assert.InDelta(t, 3.0, item.ProteinPerServing, 1e-9)
	assert.InDelta(t, 17.001, item.CarbPerServing, 1e-9)

	assert.Equal(t, "Peanut Butter Cups", item.Name)
	assert.Equal(t, "Reeses", item.Brand)
	assert.Equal(t, "034000002467", item.UPC)
	assert.Equal(t, "2041155", item.ExternalID)
	assert.Equal(t, types.SourceUSDA, item.Source)
	require.NotNil(t, item.DefaultServingWeightGram)
	assert.Equal(t, 30.0, *item.DefaultServingWeightGram)
	assert.Nil(t, item.DefaultServingLiquidMl)
	assert.Nil(t, item.FiberPerServing)

	require.Len(t, item.Nutrients, 2)
	assert.Equal(t, "Sodium", item.Nutrients[0].Name)
	assert.InDelta(t, 105, *item.Nutrients[0].AmountPerDefaultServing, 1e-9)
	assert.Equal(t, "Vitamin A", item.Nutrients[1].Name)
	assert.Equal(t, "µg", item.Nutrients[1].Unit)
	assert.InDelta(t, 9, *item.Nutrients[1].AmountPerDefaultServing, 1e-9)

	require.Len(t, item.Servings, 1)
	assert.Equal(t, "1 cup", item.Servings[0].Name)
}

func TestNormalize_USDAFoundationPer100g(t *testing.T) {
	f := USDAFood{
		FDCID:       1750340,
		Description: "apples, fuji, with skin, raw",
		DataType:    "Foundation",
		BrandOwner:  "ignored",
		FoodNutrients: []USDANutrient{
			usdaNutrient("Energy (Atwater General Factors)", "KCAL", 63),
			usdaNutrient("Energy", "KCAL", 60),
			usdaNutrient("Protein", "G", 0.148),
			usdaNutrient("Fiber, total dietary", "G", 2.1),
		},
		FoodPortions: []USDAPortion{
			{GramWeight: Amt(182), Amount: Amt(1), MeasureUnit: USDAUnit{Name: "medium"}},
			{GramWeight: Amt(100), PortionDescription: "100 g"},
		},
	}

	item, err := Normalize(&f)
	require.NoError(t, err)
	assert.Equal(t, "Apples, Fuji, With Skin, Raw", item.Name)
	assert.Empty(t, item.Brand)
	assert.Equal(t, 100.0, *item.DefaultServingWeightGram)
	assert.Equal(t, 63.0, item.KcalPerServing, "first energy value wins")
	assert.Equal(t, 0.0, item.TotalFatPerServing, "unknown core macro defaults to 0")
	require.NotNil(t, item.FiberPerServing)
	assert.Equal(t, 2.1, *item.FiberPerServing)

	require.Len(t, item.Servings, 1)
	assert.Equal(t, "1 medium", item.Servings[0].Name)
}

func usdaNutrient(name, unit string, amount float64) USDANutrient {
	var n USDANutrient
	n.Nutrient.Name = name
	n.Nutrient.UnitName = unit
	n.Amount = Amt(amount)
	return n
}

const fatSecretSingle = `{
  "food_id": "4881",
  "food_name": "Oat Milk",
  "brand_name": "Oatly",
  "servings": {
    "serving": {
      "serving_id": "1",
      "serving_description": "1 cup",
      "metric_serving_amount": "240.000",
      "metric_serving_unit": "ml",
      "number_of_units": "1.000",
      "measurement_description": "cup",
      "calories": "120",
      "carbohydrate": "16",
      "protein": "3",
      "fat": "5",
      "vitamin_d": "3.6"
    }
  }
}`

func TestNormalize_FatSecretSingleServingObject(t *testing.T) {
	var f FatSecretFood
	require.NoError(t, json.Unmarshal([]byte(fatSecretSingle), &f))
	require.Len(t, f.Servings, 1)

	item, err := Normalize(f)
	require.NoError(t, err)
	assert.True(t, item.IsLiquid)
	require.NotNil(t, item.DefaultServingLiquidMl)
	assert.Equal(t, 240.0, *item.DefaultServingLiquidMl)
	assert.Nil(t, item.DefaultServingWeightGram)
	assert.Equal(t, 120.0, item.KcalPerServing)
	assert.Equal(t, "Oatly", item.Brand)

	require.Len(t, item.Servings, 1)
	assert.Equal(t, "cup", item.Servings[0].AlternateUnit)
	assert.Equal(t, 1.0, *item.Servings[0].AlternateAmount)

	require.Len(t, item.Nutrients, 1)
	assert.Equal(t, "Vitamin D", item.Nutrients[0].Name)
}

func TestNormalize_FatSecretDefaultsAndFilters(t *testing.T) {
	f := FatSecretFood{
		FoodID:   "36421",
		FoodName: "Mushrooms",
		Servings: []FatSecretServing{
			{ID: "1", Description: "1 cup pieces or slices", MetricAmount: Amt(70), MetricUnit: "g", Calories: Amt(15)},
			{ID: "2", Description: "1 large", MetricAmount: Amt(23), MetricUnit: "g", Calories: Amt(5)},
			{ID: "3", Description: "1 oz", MetricAmount: Amt(28.35), MetricUnit: "g", MeasurementDescription: "oz"},
			{ID: "4", Description: "100 g", MetricAmount: Amt(100), MetricUnit: "g", Calories: Amt(22), Protein: Amt(3.09), Cholesterol: Amt(0)},
			{ID: "5", Description: "1 cup, sliced pieces", MetricAmount: Amt(70), MetricUnit: "g"},
		},
	}

	item, err := Normalize(f)
	require.NoError(t, err)
	assert.Equal(t, 100.0, *item.DefaultServingWeightGram)
	assert.Equal(t, 22.0, item.KcalPerServing)
	assert.False(t, item.WeightUnknown)

	var names []string
	for _, s := range item.Servings {
		names = append(names, s.Name)
	}
	assert.Equal(t, []string{"1 cup, sliced pieces", "1 large"}, names)

	require.Len(t, item.Nutrients, 1)
	assert.Equal(t, "Cholesterol", item.Nutrients[0].Name)
}

func TestNormalize_FatSecretOunceAndUnknownWeight(t *testing.T) {
	oz := FatSecretFood{FoodID: "1", FoodName: "Jerky", Servings: []FatSecretServing{
		{Description: "1 oz", MetricAmount: Amt(1), MetricUnit: "oz", Calories: Amt(80)},
	}}
	item, err := Normalize(oz)
	require.NoError(t, err)
	assert.InDelta(t, 28.35, *item.DefaultServingWeightGram, 0.01)

	unknown := FatSecretFood{FoodID: "2", FoodName: "Mystery Bar", Servings: []FatSecretServing{
		{Description: "1 bar", NumberOfUnits: Amt(1), MeasurementDescription: "bar", Calories: Amt(200)},
	}}
	item, err = Normalize(unknown)
	require.NoError(t, err)
	assert.True(t, item.WeightUnknown)
	assert.Nil(t, item.DefaultServingWeightGram)
	assert.Equal(t, 200.0, item.KcalPerServing)
}

func TestNormalize_Nutritionix(t *testing.T) {
	f := NutritionixFood{
		FoodName:           "big mac",
		BrandName:          "McDonald's",
		NixItemID:          "513fc9e73fe3ffd40300109f",
		ServingQty:         Amt(1),
		ServingUnit:        "burger",
		ServingWeightGrams: Amt(219),
		Calories:           Amt(563),
		TotalFat:           Amt(33),
		TotalCarbohydrate:  Amt(44),
		Protein:            Amt(26),
		Sodium:             Amt(1007),
		FullNutrients: []NutritionixNutrient{
			{AttrID: 318, Value: Amt(500)},
			{AttrID: 605, Value: Amt(1.5)},
			{AttrID: 307, Value: Amt(9999)},
		},
		AltMeasures: []NutritionixMeasure{
			{ServingWeight: Amt(219), Measure: "sandwich", Qty: Amt(1)},
			{ServingWeight: Amt(100), Measure: "g", Qty: Amt(100)},
			{ServingWeight: Amt(438), Measure: "burger", Qty: Amt(2)},
		},
	}

	item, err := Normalize(f)
	require.NoError(t, err)
	assert.Equal(t, "Big Mac", item.Name)
	assert.Equal(t, "513fc9e73fe3ffd40300109f", item.ExternalID)
	assert.Equal(t, 219.0, *item.DefaultServingWeightGram)
	assert.Equal(t, 563.0, item.KcalPerServing)
	require.NotNil(t, item.TransFatPerServing)
	assert.Equal(t, 1.5, *item.TransFatPerServing)

	require.Len(t, item.Nutrients, 2)
	assert.Equal(t, "Sodium", item.Nutrients[0].Name)
	assert.Equal(t, 1007.0, *item.Nutrients[0].AmountPerDefaultServing)
	assert.Equal(t, "Vitamin A", item.Nutrients[1].Name)
	assert.InDelta(t, 150, *item.Nutrients[1].AmountPerDefaultServing, 1e-9)

	require.Len(t, item.Servings, 2)
	assert.Equal(t, "1 burger", item.Servings[0].Name)
	assert.Equal(t, "2 burger", item.Servings[1].Name)
}

func TestNormalize_NutritionixWithoutWeight(t *testing.T) {
	item, err := Normalize(NutritionixFood{FoodName: "tea", TagID: "42", Calories: Amt(2)})
	require.NoError(t, err)
	assert.True(t, item.WeightUnknown)
	assert.Equal(t, "name:tea", item.ExternalID)
}

func TestNormalize_Local(t *testing.T) {
	stored := types.CanonicalFoodItem{
		Name:                     "Avocado",
		ExternalID:               "7",
		DefaultServingWeightGram: types.Ptr(150),
		Servings:                 []types.Serving{named("1 fruit", 150), named("1 whole", 150), grams(100)},
		Nutrients:                []types.Nutrient{{Name: "potassium, k", Unit: "MG", AmountPerDefaultServing: types.Ptr(729.1234)}},
	}
	item, err := Normalize(LocalFood{Item: stored})
	require.NoError(t, err)
	assert.Equal(t, types.SourceLocal, item.Source)
	require.Len(t, item.Servings, 1)
	assert.Equal(t, "1 fruit", item.Servings[0].Name)
	require.Len(t, item.Nutrients, 1)
	assert.Equal(t, "Potassium", item.Nutrients[0].Name)
	assert.Equal(t, "mg", item.Nutrients[0].Unit)
	assert.Equal(t, 729.123, *item.Nutrients[0].AmountPerDefaultServing)

	// The stored item is not modified.
	assert.Len(t, stored.Servings, 3)
}

func TestNormalize_Errors(t *testing.T) {
	_, err := Normalize(nil)
	assert.Error(t, err)
	_, err = Normalize(FatSecretFood{FoodID: "1", FoodName: "x"})
	assert.Error(t, err)
	_, err = Normalize(USDAFood{FDCID: 1})
	assert.Error(t, err)
}

func TestAmount_UnmarshalJSON(t *testing.T) {
	var v struct {
		A *Amount `json:"a"`
		B *Amount `json:"b"`
		C *Amount `json:"c"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"a": 1.5, "b": "2.25", "c": ""}`), &v))
	assert.Equal(t, 1.5, v.A.Value())
	assert.Equal(t, 2.25, v.B.Value())
	assert.Nil(t, v.C.Ptr())
}
