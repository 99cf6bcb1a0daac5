package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T, creds *Credentials) *Manager {
	t.Helper()
	return NewManager(creds, Config{Threshold: 600 * time.Second}, logrus.NewEntry(logrus.New()))
}

func TestAccessToken_ReturnsCachedTokenWhenFresh(t *testing.T) {
	future := time.Now().Add(time.Hour)
	mgr := newTestManager(t, &Credentials{AccessToken: "fresh", ExpiresAt: &future})

	tok, err := mgr.AccessToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "fresh", tok)
}

func TestAccessToken_RefreshesWhenPastThreshold(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		json.NewEncoder(w).Encode(map[string]string{"accessToken": "new-token"})
	}))
	defer srv.Close()

	past := time.Now().Add(-time.Minute)
	mgr := newTestManager(t, &Credentials{AccessToken: "stale", RefreshToken: "rt", ExpiresAt: &past})
	overrideRefreshHost(t, mgr, srv)

	tok, err := mgr.AccessToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "new-token", tok)
	assert.Equal(t, int32(1), calls.Load())
}

func TestForceRefresh_BypassesFreshnessCheck(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		json.NewEncoder(w).Encode(map[string]string{"accessToken": "forced-token"})
	}))
	defer srv.Close()

	future := time.Now().Add(time.Hour) // looks fresh
	mgr := newTestManager(t, &Credentials{AccessToken: "looks-fine", RefreshToken: "rt", ExpiresAt: &future})
	overrideRefreshHost(t, mgr, srv)

	err := mgr.ForceRefresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(1), calls.Load())

	tok, err := mgr.AccessToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "forced-token", tok)
}

func TestRefresh_ConcurrentCallersCoalesce(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		time.Sleep(10 * time.Millisecond)
		json.NewEncoder(w).Encode(map[string]string{"accessToken": "coalesced"})
	}))
	defer srv.Close()

	past := time.Now().Add(-time.Minute)
	mgr := newTestManager(t, &Credentials{AccessToken: "stale", RefreshToken: "rt", ExpiresAt: &past})
	overrideRefreshHost(t, mgr, srv)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := mgr.AccessToken(context.Background())
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
}

func TestRefresh_NoRefreshTokenIsAnError(t *testing.T) {
	past := time.Now().Add(-time.Minute)
	mgr := newTestManager(t, &Credentials{AccessToken: "stale", ExpiresAt: &past})

	_, err := mgr.AccessToken(context.Background())
	require.Error(t, err)
}

// overrideRefreshHost points mgr's refresh calls at srv instead of the
// real region-derived host, the same override-field pattern the models
// package's Fetcher tests use.
func overrideRefreshHost(t *testing.T, mgr *Manager, srv *httptest.Server) {
	t.Helper()
	mgr.testRefreshURLOverride = srv.URL
}
