package auth

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"kiro-gateway/ids"
	"kiro-gateway/metrics"
)

// Manager is the credential store and token manager (C3): one per
// process, shared across request tasks, protected by a single mutex with
// at-most-one refresh in flight (§5).
type Manager struct {
	mu    sync.RWMutex
	creds *Credentials

	region         string
	threshold      time.Duration
	refreshTimeout time.Duration
	filePath       string // empty if credentials came from env only
	fingerprint    string
	log            *logrus.Entry

	refreshMu sync.Mutex

	testRefreshURLOverride string // overridable for tests; empty means derive from region
}

// Config configures a new Manager.
type Config struct {
	Region         string
	Threshold      time.Duration // T_threshold
	RefreshTimeout time.Duration
	FilePath       string
}

// NewManager constructs a Manager from an already-loaded credential
// record (loaded by the caller from env or a JSON file per §3's
// lifecycle — "Singletons -> explicit handles", §9).
func NewManager(creds *Credentials, cfg Config, log *logrus.Entry) *Manager {
	if cfg.Threshold <= 0 {
		cfg.Threshold = 600 * time.Second
	}
	if cfg.RefreshTimeout <= 0 {
		cfg.RefreshTimeout = 15 * time.Second
	}
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}
	return &Manager{
		creds:          creds,
		region:         cfg.Region,
		threshold:      cfg.Threshold,
		refreshTimeout: cfg.RefreshTimeout,
		filePath:       cfg.FilePath,
		fingerprint:    ids.MachineFingerprint(),
		log:            log,
	}
}

// AccessToken returns a currently-valid access token, refreshing first if
// the token is missing or within T_threshold of expiry. Concurrent
// callers during a refresh join the single in-flight refresh (§4.3).
func (m *Manager) AccessToken(ctx context.Context) (string, error) {
	m.mu.RLock()
	creds := m.creds
	m.mu.RUnlock()

	if !creds.NeedsRefresh(m.threshold) {
		return creds.AccessToken, nil
	}
	if err := m.refresh(ctx, false); err != nil {
		return "", err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.creds.AccessToken, nil
}

// ForceRefresh performs an unconditional refresh, used reactively on an
// upstream 403 (§4.3, §8 property 9): a 403 means the current token is
// bad regardless of what its expiry looks like, so the staleness check
// that gates a proactive refresh is skipped. Same single-flight
// discipline as a proactive refresh.
func (m *Manager) ForceRefresh(ctx context.Context) error {
	return m.refresh(ctx, true)
}

// refresh implements the single-flight refresh critical section: acquire
// the lock, re-check expiry (another caller may have already refreshed
// while we waited — skipped when force is true, since a 403 means the
// caller needs a genuinely new token regardless), refresh, replace
// atomically, persist, release.
func (m *Manager) refresh(ctx context.Context, force bool) error {
	m.mu.RLock()
	observed := m.creds
	m.mu.RUnlock()

	m.refreshMu.Lock()
	defer m.refreshMu.Unlock()

	m.mu.RLock()
	current := m.creds
	m.mu.RUnlock()

	// Re-check: another caller may have refreshed while we waited for the
	// refresh lock (this is what makes proactive refresh calls that raced
	// in behind another proactive refresh cheap). A replaced record counts
	// as refreshed even when its expiry is unknown; force_refresh always
	// proceeds regardless.
	if !force && (current != observed || !current.NeedsRefresh(m.threshold)) {
		return nil
	}
	if current.RefreshToken == "" {
		return fmt.Errorf("no refresh token available")
	}

	resp, err := m.doRefresh(ctx, current.RefreshToken)
	if err != nil {
		return err
	}

	trigger := "proactive"
	if force {
		trigger = "reactive"
	}
	metrics.TokenRefreshesTotal.WithLabelValues(trigger).Inc()

	next := &Credentials{
		AccessToken:  resp.AccessToken,
		RefreshToken: current.RefreshToken,
		ProfileARN:   current.ProfileARN,
		Region:       current.Region,
		ExpiresAt:    parseExpiresAt(resp.ExpiresAt),
	}
	if resp.RefreshToken != "" {
		next.RefreshToken = resp.RefreshToken
	}

	m.mu.Lock()
	m.creds = next
	m.mu.Unlock()

	if m.filePath != "" {
		if err := SaveToFile(m.filePath, next); err != nil {
			// Non-fatal: the in-memory state is still updated (§4.3 failure model).
			if m.log != nil {
				m.log.WithError(err).Warn("failed to persist refreshed credentials")
			}
		}
	}
	return nil
}

// ProfileARN, Region, Fingerprint are read-only accessors; safe to read
// outside the lock because Credentials is replaced atomically (§5).
func (m *Manager) ProfileARN() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.creds.ProfileARN
}

func (m *Manager) Region() string { return m.region }

func (m *Manager) APIHost() string { return ChatHost(m.region) }

func (m *Manager) QHost() string { return ListHost(m.region) }

func (m *Manager) Fingerprint() string { return m.fingerprint }

// UserAgent is the standard header value sent with every upstream call,
// carrying the fingerprint (§4.3 "Header set for upstream calls").
func (m *Manager) userAgent() string {
	return fmt.Sprintf("kiro-gateway/1.0 (%s)", m.fingerprint)
}

// UserAgent exposes userAgent to other packages that build upstream
// requests (C8's driver needs the same header set as the refresh call).
func (m *Manager) UserAgent() string { return m.userAgent() }
