// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/food-resolver/internal/normalize"
	"github.com/pdiddy/food-resolver/internal/store"
	"github.com/pdiddy/food-resolver/pkg/types"
)

// --- fakes ---

type mockSource struct {
	name  types.FoodSource
	cands []types.FoodCandidate
	err   error
}

func (m *mockSource) Name() types.FoodSource { return m.name }

func (m *mockSource) Search(_ context.Context, _ Query) ([]types.FoodCandidate, error) {
	return m.cands, m.err
}

func (m *mockSource) Fetch(_ context.Context, _ string) (normalize.Payload, error) {
	return nil, errors.New("not implemented")
}

// fakeEmbedder returns fixed vectors per text and counts calls. Unknown
// texts get a vector orthogonal to every known one.
type fakeEmbedder struct {
	mu    sync.Mutex
	vecs  map[string][]float32
	calls int
	texts [][]string
}

func (f *fakeEmbedder) GetEmbeddings(_ context.Context, _ types.EmbeddingModel, texts []string) ([]types.EmbeddingResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.texts = append(f.texts, texts)
	out := make([]types.EmbeddingResult, len(texts))
	for i, t := range texts {
		v, ok := f.vecs[t]
		if !ok {
			v = []float32{0, 0, 1}
		}
		out[i] = types.EmbeddingResult{Text: t, Vector: v, CacheID: int64(i + 1)}
	}
	return out, nil
}

func cand(src types.FoodSource, id string, sim float64) types.FoodCandidate {
	return types.FoodCandidate{Source: src, ExternalID: id, Name: id, Similarity: sim}
}

// --- ranking ---

func TestRank(t *testing.T) {
	in := []types.FoodCandidate{
		cand(types.SourceUSDA, "a", 0.86),
		cand(types.SourceUSDA, "b", 0.99),
		cand(types.SourceUSDA, "c", 0.70),
		cand(types.SourceUSDA, "d", 0.90),
		cand(types.SourceUSDA, "e", 0.85),
	}
	got := Rank(in, 0.85, 3)
	require.Len(t, got, 3)
	assert.Equal(t, "b", got[0].ExternalID)
	assert.Equal(t, "d", got[1].ExternalID)
	assert.Equal(t, "a", got[2].ExternalID)

	// Input order is untouched.
	assert.Equal(t, "a", in[0].ExternalID)

	assert.Len(t, Rank(in, 0.85, 0), 4, "threshold is inclusive and topK <= 0 means no cap")
}

func TestRank_RaisingThresholdNeverAddsCandidates(t *testing.T) {
	in := []types.FoodCandidate{
		cand(types.SourceLocal, "a", 0.95),
		cand(types.SourceLocal, "b", 0.81),
		cand(types.SourceLocal, "c", 0.72),
		cand(types.SourceLocal, "d", 0.65),
		cand(types.SourceLocal, "e", 0.88),
	}
	prev := map[string]bool{}
	for i, th := range []float64{0.0, 0.6, 0.7, 0.725, 0.8, 0.85, 0.9, 1.0} {
		cur := map[string]bool{}
		for _, c := range Rank(in, th, 0) {
			cur[c.ExternalID] = true
			if i > 0 && !prev[c.ExternalID] {
				t.Errorf("threshold %v added %s", th, c.ExternalID)
			}
		}
		prev = cur
	}
}

func TestSearch_FanOutThresholdsAndErrors(t *testing.T) {
	sources := []Source{
		&mockSource{name: types.SourceUSDA, cands: []types.FoodCandidate{
			cand(types.SourceUSDA, "u1", 0.84),
			cand(types.SourceUSDA, "u2", 0.92),
		}},
		&mockSource{name: types.SourceLocal, cands: []types.FoodCandidate{
			cand(types.SourceLocal, "l1", 0.75),
		}},
		&mockSource{name: types.SourceFatSecret, err: errors.New("HTTP 500")},
	}

	out, err := Search(context.Background(), Query{Name: "avocado"}, sources, types.SearchConfig{}, nil)
	require.NoError(t, err)

	require.Len(t, out.Shortlists[types.SourceUSDA], 1)
	assert.Equal(t, "u2", out.Shortlists[types.SourceUSDA][0].ExternalID)
	require.Len(t, out.Shortlists[types.SourceLocal], 1)
	assert.Empty(t, out.Shortlists[types.SourceFatSecret])

	require.Len(t, out.Errors, 1)
	var sue *SourceUnavailableError
	require.ErrorAs(t, out.Errors[0], &sue)
	assert.Equal(t, types.SourceFatSecret, sue.Source)

	best, ok := out.Best(nil)
	require.True(t, ok)
	assert.Equal(t, "u2", best.ExternalID)

	best, ok = out.Best([]types.FoodSource{types.SourceLocal, types.SourceUSDA})
	require.True(t, ok)
	assert.Equal(t, "l1", best.ExternalID)
}

func TestSearch_ConfiguredThresholdAndTopK(t *testing.T) {
	var cands []types.FoodCandidate
	for i := range 6 {
		cands = append(cands, cand(types.SourceNutritionix, fmt.Sprint(i), 0.5+float64(i)*0.05))
	}
	cfg := types.SearchConfig{TopK: 2, Nutritionix: types.SourceConfig{Threshold: types.Ptr(0.6)}}
	out, err := Search(context.Background(), Query{Name: "x"}, []Source{&mockSource{name: types.SourceNutritionix, cands: cands}}, cfg, nil)
	require.NoError(t, err)
	list := out.Shortlists[types.SourceNutritionix]
	require.Len(t, list, 2)
	assert.Equal(t, "5", list[0].ExternalID)
	assert.Equal(t, "4", list[1].ExternalID)
}

func TestThreshold_ZeroIsAValue(t *testing.T) {
	tests := []struct {
		name string
		cfg  types.SourceConfig
		want float64
	}{
		{"unset uses default", types.SourceConfig{}, DefaultThresholds[types.SourceLocal]},
		{"zero", types.SourceConfig{Threshold: types.Ptr(0)}, 0},
		{"negative", types.SourceConfig{Threshold: types.Ptr(-0.2)}, -0.2},
		{"raised", types.SourceConfig{Threshold: types.Ptr(0.95)}, 0.95},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Threshold(types.SearchConfig{Local: tt.cfg}, types.SourceLocal))
		})
	}

	// A zero threshold keeps a candidate the default would drop.
	cands := []types.FoodCandidate{cand(types.SourceLocal, "weak", 0.1)}
	cfg := types.SearchConfig{Local: types.SourceConfig{Threshold: types.Ptr(0)}}
	out, err := Search(context.Background(), Query{Name: "x"}, []Source{&mockSource{name: types.SourceLocal, cands: cands}}, cfg, nil)
	require.NoError(t, err)
	assert.Len(t, out.Shortlists[types.SourceLocal], 1)
}

func TestSearch_NoCandidatesIsNotAnError(t *testing.T) {
	out, err := Search(context.Background(), Query{Name: "zzz"},
		[]Source{&mockSource{name: types.SourceUSDA, cands: []types.FoodCandidate{cand(types.SourceUSDA, "x", 0.1)}}},
		types.SearchConfig{}, nil)
	require.NoError(t, err)
	assert.True(t, out.Empty())
	_, ok := out.Best(nil)
	assert.False(t, ok)
}

func TestSearch_InvalidInput(t *testing.T) {
	_, err := Search(context.Background(), Query{}, []Source{&mockSource{name: types.SourceUSDA}}, types.SearchConfig{}, nil)
	assert.Error(t, err)
	_, err = Search(context.Background(), Query{Name: "x"}, nil, types.SearchConfig{}, nil)
	assert.Error(t, err)
}

func TestQueryKeywordsAndKey(t *testing.T) {
	tests := []struct {
		q        Query
		keywords string
		key      string
	}{
		{Query{Name: "milk"}, "milk", "milk"},
		{Query{Name: "Greek Yogurt", Brand: "Fage"}, "Fage Greek Yogurt", "greek yogurt - fage"},
		{Query{Name: "Fage Greek Yogurt", Brand: "fage"}, "Fage Greek Yogurt", "fage greek yogurt"},
	}
	for _, tt := range tests {
		if got := tt.q.Keywords(); got != tt.keywords {
			t.Errorf("Keywords() = %q, want %q", got, tt.keywords)
		}
		if got := tt.q.Key(); got != tt.key {
			t.Errorf("Key() = %q, want %q", got, tt.key)
		}
	}
}

func TestNewQuery(t *testing.T) {
	emb := &fakeEmbedder{vecs: map[string][]float32{"avocado": {1, 0, 0}}}
	q, err := NewQuery(context.Background(), emb, types.ModelBGEBase, types.FoodExtractionItem{SearchName: " avocado "})
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 0, 0}, q.Vector)
	assert.Equal(t, types.ModelBGEBase, q.Model)

	_, err = NewQuery(context.Background(), emb, types.ModelBGEBase, types.FoodExtractionItem{})
	assert.Error(t, err)
}

// --- USDA ---

func TestUSDASource(t *testing.T) {
	var searchParams, fetchParams map[string][]string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/foods/search":
			searchParams = r.URL.Query()
			fmt.Fprint(w, `{"totalHits":2,"foods":[
				{"fdcId":1,"description":"Avocados, raw, all commercial varieties","dataType":"SR Legacy"},
				{"fdcId":2,"description":"GUACAMOLE","dataType":"Branded","brandOwner":"Wholly"}]}`)
		case "/foods":
			fetchParams = r.URL.Query()
			fmt.Fprint(w, `[{"fdcId":1,"description":"Avocados, raw","dataType":"SR Legacy","foodNutrients":[]}]`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer ts.Close()

	old := usdaAPIBase
	usdaAPIBase = ts.URL
	defer func() { usdaAPIBase = old }()

	emb := &fakeEmbedder{vecs: map[string][]float32{
		"avocado":                                 {1, 0, 0},
		"avocados, raw, all commercial varieties": {0.95, 0.05, 0},
		"guacamole - wholly":                      {0, 1, 0},
	}}
	src := &USDASource{APIKey: "k", Client: ts.Client(), Embeddings: emb, Model: types.ModelBGEBase}
	q := Query{Name: "avocado", Vector: []float32{1, 0, 0}}

	cands, err := src.Search(context.Background(), q)
	require.NoError(t, err)
	require.Len(t, cands, 2)
	assert.Equal(t, "k", searchParams["api_key"][0])
	assert.Equal(t, "avocado", searchParams["query"][0])
	assert.Greater(t, cands[0].Similarity, 0.99)
	assert.InDelta(t, 0, cands[1].Similarity, 1e-9)
	assert.Equal(t, "Wholly", cands[1].Brand)
	assert.Equal(t, 1, emb.calls, "candidate names are embedded in one batch")

	p, err := src.Fetch(context.Background(), "1")
	require.NoError(t, err)
	assert.Equal(t, "full", fetchParams["format"][0])
	assert.Equal(t, "1", fetchParams["fdcIds"][0])
	f, ok := p.(normalize.USDAFood)
	require.True(t, ok)
	assert.Equal(t, int64(1), f.FDCID)
}

func TestUSDASource_HTTPError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		fmt.Fprint(w, `{"error":"API_KEY_INVALID"}`)
	}))
	defer ts.Close()

	old := usdaAPIBase
	usdaAPIBase = ts.URL
	defer func() { usdaAPIBase = old }()

	src := &USDASource{Client: ts.Client(), Embeddings: &fakeEmbedder{}}
	_, err := src.Search(context.Background(), Query{Name: "x", Vector: []float32{1}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")
}

// --- Nutritionix ---

func TestNutritionixSource(t *testing.T) {
	var naturalQuery string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("x-app-id") != "app" || r.Header.Get("x-app-key") != "key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/search/instant":
			fmt.Fprint(w, `{"common":[{"food_name":"avocado","tag_id":"1"},{"food_name":"avocado","tag_id":"2"}],
				"branded":[{"food_name":"Avocado Oil","brand_name":"Chosen","nix_item_id":"abc"}]}`)
		case "/natural/nutrients":
			var body map[string]string
			_ = json.NewDecoder(r.Body).Decode(&body)
			naturalQuery = body["query"]
			fmt.Fprint(w, `{"foods":[{"food_name":"avocado","serving_qty":1,"serving_unit":"fruit","serving_weight_grams":201,"nf_calories":322}]}`)
		case "/search/item":
			fmt.Fprint(w, `{"foods":[{"food_name":"Avocado Oil","nix_item_id":"abc","nf_calories":120}]}`)
		}
	}))
	defer ts.Close()

	old := nutritionixAPIBase
	nutritionixAPIBase = ts.URL
	defer func() { nutritionixAPIBase = old }()

	src := &NutritionixSource{AppID: "app", AppKey: "key", Client: ts.Client(), Embeddings: &fakeEmbedder{
		vecs: map[string][]float32{"avocado": {1, 0}},
	}}
	cands, err := src.Search(context.Background(), Query{Name: "avocado", Vector: []float32{1, 0}})
	require.NoError(t, err)
	require.Len(t, cands, 2, "duplicate common names collapse")
	assert.Equal(t, "name:avocado", cands[0].ExternalID)
	assert.InDelta(t, 1, cands[0].Similarity, 1e-9)
	assert.Equal(t, "abc", cands[1].ExternalID)

	p, err := src.Fetch(context.Background(), "name:avocado")
	require.NoError(t, err)
	assert.Equal(t, "avocado", naturalQuery)
	item, err := normalize.Normalize(p)
	require.NoError(t, err)
	assert.Equal(t, 201.0, *item.DefaultServingWeightGram)

	p, err = src.Fetch(context.Background(), "abc")
	require.NoError(t, err)
	assert.Equal(t, "abc", p.(normalize.NutritionixFood).NixItemID)
}

// --- FatSecret ---

func TestFatSecretSource_TokenCachedAndSingleHit(t *testing.T) {
	var tokenCalls atomic.Int32
	tokenSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenCalls.Add(1)
		user, pass, ok := r.BasicAuth()
		body, _ := io.ReadAll(r.Body)
		if !ok || user != "id" || pass != "secret" || !strings.Contains(string(body), "grant_type=client_credentials") {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"access_token":"tok-%d","token_type":"Bearer","expires_in":86400}`, tokenCalls.Load())
	}))
	defer tokenSrv.Close()

	var auths []string
	apiSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auths = append(auths, r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Query().Get("method") {
		case "foods.search":
			fmt.Fprint(w, `{"foods":{"food":{"food_id":"33","food_name":"Oat Milk","brand_name":"Oatly"}}}`)
		case "food.get.v2":
			fmt.Fprint(w, `{"food":{"food_id":"33","food_name":"Oat Milk","servings":{"serving":{"serving_description":"1 cup","metric_serving_amount":"240","metric_serving_unit":"ml","calories":"120"}}}}`)
		}
	}))
	defer apiSrv.Close()

	oldTok, oldAPI := fatSecretTokenURL, fatSecretAPIURL
	fatSecretTokenURL, fatSecretAPIURL = tokenSrv.URL, apiSrv.URL
	defer func() { fatSecretTokenURL, fatSecretAPIURL = oldTok, oldAPI }()

	tokens := &TokenSource{ClientID: "id", ClientSecret: "secret", Client: resty.New()}
	src := &FatSecretSource{Tokens: tokens, Client: apiSrv.Client(), Embeddings: &fakeEmbedder{}}
	q := Query{Name: "oat milk", Brand: "oatly", Vector: []float32{1, 0, 0}}

	cands, err := src.Search(context.Background(), q)
	require.NoError(t, err)
	require.Len(t, cands, 1)
	assert.Equal(t, "33", cands[0].ExternalID)

	p, err := src.Fetch(context.Background(), "33")
	require.NoError(t, err)
	require.Len(t, p.(normalize.FatSecretFood).Servings, 1)

	assert.Equal(t, int32(1), tokenCalls.Load())
	assert.Equal(t, []string{"Bearer tok-1", "Bearer tok-1"}, auths)

	// An expired token is refreshed.
	tokens.now = func() time.Time { return time.Now().Add(48 * time.Hour) }
	tok, err := tokens.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tok-2", tok)
}

func TestFatSecretSource_APIError(t *testing.T) {
	apiSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"error":{"code":21,"message":"Invalid IP address detected"}}`)
	}))
	defer apiSrv.Close()
	old := fatSecretAPIURL
	fatSecretAPIURL = apiSrv.URL
	defer func() { fatSecretAPIURL = old }()

	tokens := &TokenSource{token: "cached", expiry: time.Now().Add(time.Hour)}
	src := &FatSecretSource{Tokens: tokens, Client: apiSrv.Client(), Embeddings: &fakeEmbedder{}}
	_, err := src.Search(context.Background(), Query{Name: "x", Vector: []float32{1}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Invalid IP")
}

// --- local mirror ---

func TestLocalSource(t *testing.T) {
	st, err := store.Open(types.StoreConfig{Path: filepath.Join(t.TempDir(), "foods.db")})
	require.NoError(t, err)
	defer st.Close()

	ctx := context.Background()
	avocado := &types.CanonicalFoodItem{Name: "Avocado", Source: types.SourceUSDA, ExternalID: "171705", KcalPerServing: 160}
	id, err := st.SaveFood(ctx, types.ModelBGEBase, avocado, []float32{1, 0, 0})
	require.NoError(t, err)
	_, err = st.SaveFood(ctx, types.ModelBGEBase, &types.CanonicalFoodItem{Name: "Bread", Source: types.SourceUSDA, ExternalID: "1"}, []float32{0, 1, 0})
	require.NoError(t, err)

	src := &LocalSource{Mirror: st}
	cands, err := src.Search(ctx, Query{Name: "avocado", Vector: []float32{0.9, 0.1, 0}})
	require.NoError(t, err)
	require.Len(t, cands, 2)
	assert.Equal(t, fmt.Sprint(id), cands[0].ExternalID)
	assert.Greater(t, cands[0].Similarity, 0.9)

	// Mirror vectors are looked up under the query's model.
	none, err := src.Search(ctx, Query{Name: "avocado", Model: types.ModelAda, Vector: []float32{0.9, 0.1, 0}})
	require.NoError(t, err)
	assert.Empty(t, none)

	p, err := src.Fetch(ctx, cands[0].ExternalID)
	require.NoError(t, err)
	item, err := normalize.Normalize(p)
	require.NoError(t, err)
	assert.Equal(t, types.SourceLocal, item.Source)
	assert.Equal(t, 160.0, item.KcalPerServing)

	_, err = src.Fetch(ctx, "999")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestNewSources(t *testing.T) {
	cfg := types.SearchConfig{
		USDA:        types.SourceConfig{Enabled: true, APIKey: "k"},
		Nutritionix: types.SourceConfig{Enabled: true, AppID: "a"},
		FatSecret:   types.SourceConfig{Enabled: false, ClientID: "c", ClientSecret: "s"},
		Local:       types.SourceConfig{Enabled: true},
	}
	sources := NewSources(cfg, nil, &fakeEmbedder{}, types.ModelBGEBase, nil)
	require.Len(t, sources, 1)
	assert.Equal(t, types.SourceUSDA, sources[0].Name())
}
