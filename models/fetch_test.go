package models

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kiro-gateway/auth"
)

func TestFetcher_Refill_MergesFallbackMetadata(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"models":[{"modelId":"claude-opus-4.5"},{"modelId":"brand-new-model"}]}`))
	}))
	defer srv.Close()

	mgr := fetcherTestManager(t)
	fallback := []Info{{ID: "claude-opus-4.5", MaxInputTokens: 200000, DefaultCreditsUsed: 1.5}}
	f := NewFetcher(mgr, fallback)
	f.endpointURL = srv.URL

	records, err := f.Refill(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, Info{ID: "claude-opus-4.5", MaxInputTokens: 200000, DefaultCreditsUsed: 1.5}, records[0])
	assert.Equal(t, "brand-new-model", records[1].ID)
	assert.Equal(t, DefaultMaxInputTokens, records[1].MaxInputTokens)
}

func TestFetcher_Refill_PropagatesUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	f := NewFetcher(fetcherTestManager(t), nil)
	f.endpointURL = srv.URL

	_, err := f.Refill(context.Background())
	require.Error(t, err)
}

func fetcherTestManager(t *testing.T) *auth.Manager {
	t.Helper()
	future := time.Now().Add(time.Hour)
	creds := &auth.Credentials{
		AccessToken: "tok",
		ExpiresAt:   &future,
		Region:      "us-east-1",
	}
	return auth.NewManager(creds, auth.Config{Threshold: 600 * time.Second}, nil)
}
