package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"kiro-gateway/ids"
	"kiro-gateway/kerrors"
)

// refreshRequest is the body posted to the region-scoped refresh host.
type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// refreshResponse is the upstream's refresh reply. ExpiresAt is permitted
// to be absent (§4.3 step 3).
type refreshResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken,omitempty"`
	ExpiresAt    string `json:"expiresAt,omitempty"`
}

// refreshHost returns the region-scoped refresh endpoint host.
func refreshHost(region string) string {
	return fmt.Sprintf("prod.%s.auth.desktop.kiro.dev", region)
}

// ChatHost returns the region-scoped generateAssistantResponse host.
func ChatHost(region string) string {
	return fmt.Sprintf("codewhisperer.%s.amazonaws.com", region)
}

// ListHost returns the region-scoped ListAvailableModels host.
func ListHost(region string) string {
	return fmt.Sprintf("q.%s.amazonaws.com", region)
}

// doRefresh POSTs the refresh token once, with one internal retry for
// transient (timeout/5xx) failures per §4.3's failure model. A 401 or a
// body containing "invalid_grant" is terminal and classified AuthInvalid;
// other 4xx responses are classified UpstreamPermanent and, like an
// unparseable 200 reply, are not retried.
func (m *Manager) doRefresh(ctx context.Context, refreshToken string) (*refreshResponse, error) {
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		resp, err := m.postRefresh(ctx, refreshToken)
		if err == nil {
			return resp, nil
		}
		if ke, ok := err.(*kerrors.Error); !ok || ke.Kind != kerrors.UpstreamTransient {
			return nil, err
		}
		lastErr = err
		if attempt == 0 {
			m.log.WithError(err).Warn("transient refresh failure, retrying once")
		}
	}
	return nil, lastErr
}

func (m *Manager) postRefresh(ctx context.Context, refreshToken string) (*refreshResponse, error) {
	body, err := json.Marshal(refreshRequest{RefreshToken: refreshToken})
	if err != nil {
		return nil, fmt.Errorf("marshal refresh request: %w", err)
	}

	url := m.testRefreshURLOverride
	if url == "" {
		url = fmt.Sprintf("https://%s/refreshToken", refreshHost(m.region))
	} else {
		url += "/refreshToken"
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build refresh request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", m.userAgent())
	req.Header.Set("amz-sdk-invocation-id", ids.InvocationID())

	client := &http.Client{Timeout: m.refreshTimeout}
	resp, err := client.Do(req)
	if err != nil {
		return nil, kerrors.New(kerrors.UpstreamTransient, fmt.Errorf("refresh request: %w", err))
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, kerrors.New(kerrors.UpstreamTransient, fmt.Errorf("read refresh response: %w", err))
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		var out refreshResponse
		if err := json.Unmarshal(respBody, &out); err != nil {
			return nil, fmt.Errorf("parse refresh response: %w", err)
		}
		return &out, nil
	case resp.StatusCode == http.StatusUnauthorized || bytes.Contains(respBody, []byte("invalid_grant")):
		return nil, kerrors.New(kerrors.AuthInvalid, fmt.Errorf("refresh rejected: status %d: %s", resp.StatusCode, respBody))
	case resp.StatusCode >= 500:
		return nil, kerrors.New(kerrors.UpstreamTransient, fmt.Errorf("refresh transient failure: status %d", resp.StatusCode))
	default:
		return nil, kerrors.New(kerrors.UpstreamPermanent, fmt.Errorf("refresh failed: status %d: %s", resp.StatusCode, respBody))
	}
}

func parseExpiresAt(s string) *time.Time {
	if s == "" {
		return nil
	}
	if t, err := time.Parse(isoMilli, s); err == nil {
		return &t
	}
	return nil
}
