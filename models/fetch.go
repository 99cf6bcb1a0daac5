package models

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"kiro-gateway/auth"
	"kiro-gateway/ids"
)

// listAvailableModelsResponse is the upstream's ListAvailableModels
// reply, decoded tolerantly since it doesn't fully control the wire
// shape — falling back to the static catalog's richer metadata
// (max_input_tokens, default_credits_used) for any model ID it already
// knows about.
type listAvailableModelsResponse struct {
	Models []struct {
		ModelID string `json:"modelId"`
	} `json:"models"`
}

// Fetcher calls the upstream's ListAvailableModels endpoint and turns the
// reply into model-info records, used to wire Cache's refill (C4).
type Fetcher struct {
	mgr         *auth.Manager
	fallback    map[string]Info
	endpointURL string // overridable for tests; empty means derive from mgr.QHost()
}

// NewFetcher builds a Fetcher. fallback supplies max_input_tokens and
// default_credits_used for model IDs the upstream lists but doesn't
// describe in detail.
func NewFetcher(mgr *auth.Manager, fallback []Info) *Fetcher {
	byID := make(map[string]Info, len(fallback))
	for _, info := range fallback {
		byID[info.ID] = info
	}
	return &Fetcher{mgr: mgr, fallback: byID}
}

func (f *Fetcher) endpoint() string {
	if f.endpointURL != "" {
		return f.endpointURL
	}
	return fmt.Sprintf("https://%s/ListAvailableModels", f.mgr.QHost())
}

// Refill implements RefillFunc: it fetches the live model catalog and
// merges in known context-window/cost metadata by ID.
func (f *Fetcher) Refill(ctx context.Context) ([]Info, error) {
	url := f.endpoint()

	token, err := f.mgr.AccessToken(ctx)
	if err != nil {
		return nil, fmt.Errorf("access token: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("User-Agent", f.mgr.UserAgent())
	req.Header.Set("amz-sdk-invocation-id", ids.InvocationID())

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("list models request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read list models response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("list models returned status %d: %s", resp.StatusCode, body)
	}

	var parsed listAvailableModelsResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("parse list models response: %w", err)
	}

	records := make([]Info, 0, len(parsed.Models))
	for _, m := range parsed.Models {
		if m.ModelID == "" {
			continue
		}
		if known, ok := f.fallback[m.ModelID]; ok {
			records = append(records, known)
			continue
		}
		records = append(records, Info{
			ID:                 m.ModelID,
			MaxInputTokens:     DefaultMaxInputTokens,
			DefaultCreditsUsed: 1.0,
		})
	}
	return records, nil
}
