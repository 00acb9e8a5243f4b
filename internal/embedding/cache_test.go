// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package embedding

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/food-resolver/internal/store"
	"github.com/pdiddy/food-resolver/pkg/types"
)

// --- mock embedder ---

type mockEmbedder struct {
	model types.EmbeddingModel
	calls [][]string
	err   error
}

func (m *mockEmbedder) Model() types.EmbeddingModel { return m.model }

func (m *mockEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	m.calls = append(m.calls, append([]string(nil), texts...))
	if m.err != nil {
		return nil, m.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{float32(len(t)), 1}
	}
	return out, nil
}

func newTestCache(t *testing.T, e Embedder) *Cache {
	t.Helper()
	s, err := store.Open(types.StoreConfig{Path: filepath.Join(t.TempDir(), "cache.db")})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return NewCache(s, nil, e)
}

func TestGetEmbeddings_RepeatedTextHitsCache(t *testing.T) {
	emb := &mockEmbedder{model: types.ModelBGEBase}
	c := newTestCache(t, emb)
	ctx := context.Background()

	first, err := c.GetEmbeddings(ctx, types.ModelBGEBase, []string{"avocado"})
	require.NoError(t, err)
	second, err := c.GetEmbeddings(ctx, types.ModelBGEBase, []string{"avocado"})
	require.NoError(t, err)

	assert.Len(t, emb.calls, 1, "second lookup must not call the provider")
	assert.Equal(t, first[0].Vector, second[0].Vector)
	assert.Equal(t, first[0].CacheID, second[0].CacheID)
	assert.False(t, first[0].Cached)
	assert.True(t, second[0].Cached)
}

func TestGetEmbeddings_PreservesOrderAndBatchesMisses(t *testing.T) {
	emb := &mockEmbedder{model: types.ModelBGEBase}
	c := newTestCache(t, emb)
	ctx := context.Background()

	_, err := c.GetEmbeddings(ctx, types.ModelBGEBase, []string{"egg"})
	require.NoError(t, err)

	texts := []string{"banana", "egg", "kiwi fruit", "banana"}
	got, err := c.GetEmbeddings(ctx, types.ModelBGEBase, texts)
	require.NoError(t, err)
	require.Len(t, got, len(texts))

	for i, r := range got {
		assert.Equal(t, texts[i], r.Text)
		assert.Equal(t, float32(len(texts[i])), r.Vector[0])
	}
	assert.Equal(t, got[0], got[3])

	require.Len(t, emb.calls, 2)
	assert.ElementsMatch(t, []string{"banana", "kiwi fruit"}, emb.calls[1], "only distinct misses are fetched")
}

func TestGetEmbeddings_ProviderFailure(t *testing.T) {
	emb := &mockEmbedder{model: types.ModelBGEBase}
	c := newTestCache(t, emb)
	ctx := context.Background()

	_, err := c.GetEmbeddings(ctx, types.ModelBGEBase, []string{"egg"})
	require.NoError(t, err)

	emb.err = errors.New("upstream down")
	_, err = c.GetEmbeddings(ctx, types.ModelBGEBase, []string{"egg", "toast"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "upstream down")

	// Hits are unaffected by the failed batch.
	got, err := c.GetEmbeddings(ctx, types.ModelBGEBase, []string{"egg"})
	require.NoError(t, err)
	assert.True(t, got[0].Cached)
}

func TestGetEmbeddings_NoEmbedderForModel(t *testing.T) {
	c := newTestCache(t, &mockEmbedder{model: types.ModelBGEBase})
	_, err := c.GetEmbeddings(context.Background(), types.ModelAda, []string{"egg"})
	assert.ErrorContains(t, err, "no embedder registered")
}

func TestGetEmbeddingID(t *testing.T) {
	emb := &mockEmbedder{model: types.ModelBGEBase}
	c := newTestCache(t, emb)
	ctx := context.Background()

	id, ok, err := c.GetEmbeddingID(ctx, types.ModelBGEBase, "Greek Yogurt", "Fage")
	require.NoError(t, err)
	require.True(t, ok)
	assert.NotZero(t, id)
	require.Len(t, emb.calls, 1)
	assert.Equal(t, []string{"greek yogurt - fage"}, emb.calls[0])

	again, ok, err := c.GetEmbeddingID(ctx, types.ModelBGEBase, "greek yogurt", "FAGE")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, id, again)
	assert.Len(t, emb.calls, 1)
}

func TestFoodKey(t *testing.T) {
	tests := []struct {
		name, brand, want string
	}{
		{"Avocado", "", "avocado"},
		{"Protein Shake", "Fairlife", "protein shake - fairlife"},
		{"Fairlife Protein Shake", "fairlife", "fairlife protein shake"},
		{"  Milk ", "  ", "milk"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FoodKey(tt.name, tt.brand))
	}
}

// --- HTTP providers ---

func TestOpenAIEmbedder_SortsByIndex(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		var req openAIEmbeddingRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, adaModelName, req.Model)
		w.Write([]byte(`{"data":[{"index":1,"embedding":[0.2]},{"index":0,"embedding":[0.1]}]}`))
	}))
	defer ts.Close()

	old := openAIEmbeddingsURL
	openAIEmbeddingsURL = ts.URL
	defer func() { openAIEmbeddingsURL = old }()

	e := &OpenAIEmbedder{APIKey: "sk-test", Client: ts.Client()}
	got, err := e.Embed(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{0.1}, {0.2}}, got)
}

func TestOpenAIEmbedder_HTTPError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer ts.Close()

	old := openAIEmbeddingsURL
	openAIEmbeddingsURL = ts.URL
	defer func() { openAIEmbeddingsURL = old }()

	e := &OpenAIEmbedder{Client: ts.Client()}
	_, err := e.Embed(context.Background(), []string{"a"})
	assert.ErrorContains(t, err, "HTTP 401")
}

func TestCloudflareEmbedder_SplitsBatches(t *testing.T) {
	var batches []int
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/acct/ai/run/@cf/baai/bge-base-en-v1.5"))
		var req map[string][]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		batches = append(batches, len(req["text"]))

		data := make([][]float32, len(req["text"]))
		for i := range data {
			data[i] = []float32{1}
		}
		json.NewEncoder(w).Encode(map[string]any{"success": true, "result": map[string]any{"data": data}})
	}))
	defer ts.Close()

	old := cloudflareAIBase
	cloudflareAIBase = ts.URL
	defer func() { cloudflareAIBase = old }()

	texts := make([]string, cloudflareMaxBatch+5)
	for i := range texts {
		texts[i] = "t"
	}
	e := &CloudflareEmbedder{AccountID: "acct", Client: ts.Client()}
	got, err := e.Embed(context.Background(), texts)
	require.NoError(t, err)
	assert.Len(t, got, len(texts))
	assert.Equal(t, []int{cloudflareMaxBatch, 5}, batches)
}

func TestCloudflareEmbedder_Unsuccessful(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"success":false,"errors":[{"message":"bad token"}]}`))
	}))
	defer ts.Close()

	old := cloudflareAIBase
	cloudflareAIBase = ts.URL
	defer func() { cloudflareAIBase = old }()

	e := &CloudflareEmbedder{AccountID: "acct", Client: ts.Client()}
	_, err := e.Embed(context.Background(), []string{"a"})
	assert.ErrorContains(t, err, "bad token")
}
