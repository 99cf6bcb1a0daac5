// Package auth implements the credential store and token manager (C3):
// loading/persisting Kiro OAuth credentials and refreshing them with
// mutual exclusion, proactively before expiry and reactively on 403.
package auth

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Credentials is the in-memory credential record (§3 Data Model).
type Credentials struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    *time.Time // nil means "unknown", per §4.3 step 3
	ProfileARN   string
	Region       string
}

// fileShape holds the persisted credentials JSON keys this gateway reads.
// Unknown keys are not kept here; SaveToFile preserves them by re-reading
// the existing file into a generic map before writing.
type fileShape struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresAt    string `json:"expiresAt,omitempty"`
	ProfileARN   string `json:"profileArn,omitempty"`
	Region       string `json:"region,omitempty"`
}

const isoMilli = "2006-01-02T15:04:05.000Z"

// LoadFromFile reads a credentials JSON file, tolerating a missing
// expiresAt (recorded as "unknown"/nil).
func LoadFromFile(path string) (*Credentials, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read credentials file: %w", err)
	}

	var fs fileShape
	if err := json.Unmarshal(data, &fs); err != nil {
		return nil, fmt.Errorf("parse credentials file: %w", err)
	}

	creds := &Credentials{
		AccessToken:  fs.AccessToken,
		RefreshToken: fs.RefreshToken,
		ProfileARN:   fs.ProfileARN,
		Region:       fs.Region,
	}
	if fs.ExpiresAt != "" {
		if t, err := time.Parse(isoMilli, fs.ExpiresAt); err == nil {
			creds.ExpiresAt = &t
		}
	}
	return creds, nil
}

// SaveToFile rewrites path with the current credentials, preserving any
// keys the file already had that this gateway doesn't understand (the
// persistence invariant in §3 and §6). Non-fatal failures here must not
// roll back the in-memory record; callers log and continue.
func SaveToFile(path string, creds *Credentials) error {
	existing := map[string]interface{}{}
	if data, err := os.ReadFile(path); err == nil {
		_ = json.Unmarshal(data, &existing)
	}

	existing["accessToken"] = creds.AccessToken
	existing["refreshToken"] = creds.RefreshToken
	if creds.ExpiresAt != nil {
		existing["expiresAt"] = creds.ExpiresAt.UTC().Format(isoMilli)
	}
	if creds.ProfileARN != "" {
		existing["profileArn"] = creds.ProfileARN
	}
	if creds.Region != "" {
		existing["region"] = creds.Region
	}

	data, err := json.MarshalIndent(existing, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal credentials: %w", err)
	}

	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("create credentials directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write credentials file: %w", err)
	}
	return nil
}

// NeedsRefresh reports whether the token is missing, expired, or within
// threshold of expiring. An unknown (nil) ExpiresAt is treated as "needs
// refresh" per §4.3 step 2's conservative default.
func (c *Credentials) NeedsRefresh(threshold time.Duration) bool {
	if c == nil || c.AccessToken == "" {
		return true
	}
	if c.ExpiresAt == nil {
		return true
	}
	return time.Until(*c.ExpiresAt) <= threshold
}

// Clone returns a shallow copy, safe to hand to a reader outside the lock.
func (c *Credentials) Clone() *Credentials {
	if c == nil {
		return nil
	}
	cp := *c
	return &cp
}
