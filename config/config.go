// Package config loads the gateway's environment-driven configuration,
// in the same style as the .env-aware loader this codebase has always
// used: real environment variables win, a local .env file fills gaps,
// and every resolved value is logged (secrets masked) as it is applied.
package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// Config holds every environment-configurable knob named in §6.
type Config struct {
	Port string

	ProxyAPIKey string

	RefreshToken  string
	ProfileARN    string
	KiroRegion    string
	KiroCredsFile string

	TokenRefreshThreshold time.Duration
	MaxRetries            int
	BaseRetryDelay        time.Duration

	ModelCacheTTL         time.Duration
	DefaultMaxInputTokens int
	ToolDescriptionMaxLen int

	UpstreamTimeout time.Duration
	RefreshTimeout  time.Duration
	ConnectTimeout  time.Duration

	DebugLastRequest bool
	DebugDir         string

	FakeReasoningEnabled   bool
	FakeReasoningMaxTokens int

	ModelsFallbackFile string
}

// Default returns a Config populated with every spec-named default,
// suitable for tests that don't care about environment wiring.
func Default() *Config {
	return &Config{
		Port:                   "8080",
		KiroRegion:             "us-east-1",
		TokenRefreshThreshold:  600 * time.Second,
		MaxRetries:             3,
		BaseRetryDelay:         1 * time.Second,
		ModelCacheTTL:          3600 * time.Second,
		DefaultMaxInputTokens:  200000,
		ToolDescriptionMaxLen:  10000,
		UpstreamTimeout:        300 * time.Second,
		RefreshTimeout:         15 * time.Second,
		ConnectTimeout:         10 * time.Second,
		FakeReasoningMaxTokens: 4000,
	}
}

// Load reads real environment variables, falling back to a local .env
// file (if present) for anything unset, and returns a fully-populated
// Config. PROXY_API_KEY and REFRESH_TOKEN are required; everything else
// has a spec-named default.
func Load(log *logrus.Entry) (*Config, error) {
	envFile, _ := loadEnvFile(".env") // optional; missing .env is not an error

	get := func(key string) (string, bool) {
		if v := os.Getenv(key); v != "" {
			return v, true
		}
		if v, ok := envFile[key]; ok && v != "" {
			return v, true
		}
		return "", false
	}

	cfg := Default()

	proxyKey, ok := get("PROXY_API_KEY")
	if !ok {
		return nil, fmt.Errorf("PROXY_API_KEY must be set")
	}
	cfg.ProxyAPIKey = proxyKey
	log.WithField("PROXY_API_KEY", maskSecret(proxyKey)).Info("config value set")

	refreshToken, ok := get("REFRESH_TOKEN")
	if !ok {
		return nil, fmt.Errorf("REFRESH_TOKEN must be set")
	}
	cfg.RefreshToken = refreshToken
	log.WithField("REFRESH_TOKEN", maskSecret(refreshToken)).Info("config value set")

	if v, ok := get("PROFILE_ARN"); ok {
		cfg.ProfileARN = v
		log.WithField("PROFILE_ARN", v).Info("config value set")
	}
	if v, ok := get("KIRO_REGION"); ok {
		cfg.KiroRegion = v
	}
	log.WithField("KIRO_REGION", cfg.KiroRegion).Info("config value set")

	if v, ok := get("KIRO_CREDS_FILE"); ok {
		cfg.KiroCredsFile = v
		log.WithField("KIRO_CREDS_FILE", v).Info("config value set")
	}

	if v, ok := get("TOKEN_REFRESH_THRESHOLD"); ok {
		if secs, err := strconv.Atoi(v); err == nil {
			cfg.TokenRefreshThreshold = time.Duration(secs) * time.Second
		}
	}
	if v, ok := get("MAX_RETRIES"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxRetries = n
		}
	}
	if v, ok := get("BASE_RETRY_DELAY"); ok {
		if secs, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.BaseRetryDelay = time.Duration(secs * float64(time.Second))
		}
	}
	if v, ok := get("MODEL_CACHE_TTL"); ok {
		if secs, err := strconv.Atoi(v); err == nil {
			cfg.ModelCacheTTL = time.Duration(secs) * time.Second
		}
	}
	if v, ok := get("DEFAULT_MAX_INPUT_TOKENS"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.DefaultMaxInputTokens = n
		}
	}
	if v, ok := get("TOOL_DESCRIPTION_MAX_LENGTH"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.ToolDescriptionMaxLen = n
		}
	}
	if v, ok := get("DEBUG_LAST_REQUEST"); ok {
		cfg.DebugLastRequest = strings.EqualFold(v, "true") || v == "1"
	}
	if v, ok := get("DEBUG_DIR"); ok {
		cfg.DebugDir = v
	}
	if v, ok := get("FAKE_REASONING_ENABLED"); ok {
		cfg.FakeReasoningEnabled = strings.EqualFold(v, "true") || v == "1"
	}
	if v, ok := get("FAKE_REASONING_MAX_TOKENS"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.FakeReasoningMaxTokens = n
		}
	}
	if v, ok := get("PORT"); ok {
		cfg.Port = v
	}
	if v, ok := get("KIRO_MODELS_FALLBACK_FILE"); ok {
		cfg.ModelsFallbackFile = v
	}

	log.WithFields(logrus.Fields{
		"MAX_RETRIES":                 cfg.MaxRetries,
		"BASE_RETRY_DELAY":            cfg.BaseRetryDelay,
		"MODEL_CACHE_TTL":             cfg.ModelCacheTTL,
		"TOOL_DESCRIPTION_MAX_LENGTH": cfg.ToolDescriptionMaxLen,
		"TOKEN_REFRESH_THRESHOLD":     cfg.TokenRefreshThreshold,
		"DEFAULT_MAX_INPUT_TOKENS":    cfg.DefaultMaxInputTokens,
		"DEBUG_LAST_REQUEST":          cfg.DebugLastRequest,
		"DEBUG_DIR":                   cfg.DebugDir,
		"FAKE_REASONING_ENABLED":      cfg.FakeReasoningEnabled,
		"FAKE_REASONING_MAX_TOKENS":   cfg.FakeReasoningMaxTokens,
		"PORT":                        cfg.Port,
		"KIRO_MODELS_FALLBACK_FILE":   cfg.ModelsFallbackFile,
	}).Info("config value set")

	return cfg, nil
}

func maskSecret(s string) string {
	if len(s) <= 8 {
		return "***"
	}
	return s[:4] + "..." + s[len(s)-4:]
}

// loadEnvFile parses a simple KEY=VALUE .env file: blank lines and lines
// starting with # are skipped, and inline # comments are stripped.
func loadEnvFile(path string) (map[string]string, error) {
	vars := make(map[string]string)

	file, err := os.Open(path)
	if err != nil {
		return vars, err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])
		if idx := strings.Index(value, "#"); idx != -1 {
			value = strings.TrimSpace(value[:idx])
		}
		vars[key] = value
	}
	return vars, scanner.Err()
}
