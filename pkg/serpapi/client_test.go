package serpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pactwatch/contract-cli/internal/resilience"
)

func TestSearch_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/search.json", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "google", q.Get("engine"))
		assert.Equal(t, "cloud storage pricing", q.Get("q"))
		assert.Equal(t, "5", q.Get("num"))
		assert.Equal(t, "en", q.Get("hl"))
		assert.Equal(t, "us", q.Get("gl"))
		assert.Equal(t, "active", q.Get("safe"))
		assert.Equal(t, "test-key", q.Get("api_key"))

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"search_metadata": map[string]string{"status": "Success"},
			"organic_results": []OrganicResult{
				{Position: 1, Title: "Acme Cloud", Link: "https://acme.example", Snippet: "Storage plans"},
				{Position: 2, Title: "Box Co", Link: "https://box.example", Snippet: "Compare tiers"},
			},
		})
	}))
	defer srv.Close()

	client := NewClient("test-key", WithBaseURL(srv.URL))
	results, err := client.Search(context.Background(), "cloud storage pricing", 5)

	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "Acme Cloud", results[0].Title)
	assert.Equal(t, "https://box.example", results[1].Link)
}

func TestSearch_NoOrganicResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"search_metadata": {"status": "Success"}}`))
	}))
	defer srv.Close()

	client := NewClient("test-key", WithBaseURL(srv.URL))
	results, err := client.Search(context.Background(), "obscure query", 5)

	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSearch_TransientStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	client := NewClient("test-key", WithBaseURL(srv.URL))
	_, err := client.Search(context.Background(), "anything", 5)

	require.Error(t, err)
	assert.True(t, resilience.IsTransient(err))
}

func TestSearch_TerminalStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error": "invalid api key"}`))
	}))
	defer srv.Close()

	client := NewClient("bad-key", WithBaseURL(srv.URL))
	_, err := client.Search(context.Background(), "anything", 5)

	require.Error(t, err)
	assert.False(t, resilience.IsTransient(err))
	assert.Contains(t, err.Error(), "401")
}
