package qdrant

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shopassist/internal/domain"
)

// fakeQdrant records requests and serves a single collection.
type fakeQdrant struct {
	mu      sync.Mutex
	exists  bool
	created map[string]any
	points  []map[string]any
	apiKey  string
}

func (f *fakeQdrant) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.apiKey = r.Header.Get("api-key")
	switch {
	case r.Method == http.MethodGet && r.URL.Path == "/collections/items":
		if !f.exists {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte(`{"result":{}}`))
	case r.Method == http.MethodPut && r.URL.Path == "/collections/items":
		_ = json.NewDecoder(r.Body).Decode(&f.created)
		f.exists = true
		_, _ = w.Write([]byte(`{"result":true}`))
	case r.Method == http.MethodPut && r.URL.Path == "/collections/items/points":
		var body struct {
			Points []map[string]any `json:"points"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.points = append(f.points, body.Points...)
		_, _ = w.Write([]byte(`{"result":{"status":"completed"}}`))
	case r.Method == http.MethodPost && r.URL.Path == "/collections/items/points/search":
		_, _ = w.Write([]byte(`{"result":[{"id":"a","score":0.93,"payload":{"id":"a","file_name":"shirt.jpg","description":"pink t-shirt","price":100}}]}`))
	case r.Method == http.MethodDelete && r.URL.Path == "/collections/items":
		if !f.exists {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		f.exists = false
		_, _ = w.Write([]byte(`{"result":true}`))
	default:
		w.WriteHeader(http.StatusBadRequest)
	}
}

func TestInitCreatesMissingCollection(t *testing.T) {
	fake := &fakeQdrant{}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	s := NewStorage(Config{URL: srv.URL, APIKey: "secret", Collection: "items"})
	require.NoError(t, s.Init(context.Background(), 512))

	vectors := fake.created["vectors"].(map[string]any)
	assert.EqualValues(t, 512, vectors["size"])
	assert.Equal(t, "Cosine", vectors["distance"])
	assert.Equal(t, "secret", fake.apiKey)

	// second init sees the existing collection and does not recreate it
	fake.created = nil
	require.NoError(t, s.Init(context.Background(), 512))
	assert.Nil(t, fake.created)
}

func TestUpsertSendsCatalogPayload(t *testing.T) {
	fake := &fakeQdrant{exists: true}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	s := NewStorage(Config{URL: srv.URL, Collection: "items"})
	items := []domain.CatalogItem{{ID: "a", FileName: "shirt.jpg", Description: "pink t-shirt", Price: 100}}
	require.NoError(t, s.Upsert(context.Background(), items, [][]float64{{0.1, 0.2}}))

	require.Len(t, fake.points, 1)
	assert.Equal(t, "a", fake.points[0]["id"])
	payload := fake.points[0]["payload"].(map[string]any)
	assert.Equal(t, "shirt.jpg", payload["file_name"])
	assert.Equal(t, "pink t-shirt", payload["description"])
	assert.EqualValues(t, 100, payload["price"])

	assert.Error(t, s.Upsert(context.Background(), items, nil))
}

func TestSearchDecodesPayload(t *testing.T) {
	srv := httptest.NewServer(&fakeQdrant{exists: true})
	defer srv.Close()

	s := NewStorage(Config{URL: srv.URL, Collection: "items"})
	res, err := s.Search(context.Background(), []float64{0.1, 0.2}, 3)
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, domain.SearchResult{ID: "a", Filename: "shirt.jpg", Description: "pink t-shirt", Price: 100, Score: 0.93}, res[0])
}

func TestClearToleratesMissingCollection(t *testing.T) {
	srv := httptest.NewServer(&fakeQdrant{})
	defer srv.Close()

	s := NewStorage(Config{URL: srv.URL, Collection: "items"})
	assert.NoError(t, s.Clear(context.Background()))
}

func TestSearchPropagatesServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := NewStorage(Config{URL: srv.URL}).Search(context.Background(), []float64{1}, 1)
	assert.Error(t, err)
}
