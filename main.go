package main

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"kiro-gateway/auth"
	"kiro-gateway/config"
	"kiro-gateway/debugdump"
	"kiro-gateway/driver"
	"kiro-gateway/logger"
	"kiro-gateway/models"
	"kiro-gateway/proxy"
)

func main() {
	fmt.Println(GetBuildInfo())
	fmt.Println()

	log := logger.New()
	bootLog := logger.ForComponent(log, "boot")

	cfg, err := config.Load(bootLog)
	if err != nil {
		bootLog.WithError(err).Fatal("failed to load config")
	}

	creds, err := loadCredentials(cfg)
	if err != nil {
		bootLog.WithError(err).Fatal("failed to load credentials")
	}

	mgr := auth.NewManager(creds, auth.Config{
		Region:         cfg.KiroRegion,
		Threshold:      cfg.TokenRefreshThreshold,
		RefreshTimeout: cfg.RefreshTimeout,
		FilePath:       cfg.KiroCredsFile,
	}, logger.ForComponent(log, logger.ComponentAuth))

	fallback, err := models.LoadFallback(cfg.ModelsFallbackFile)
	if err != nil {
		bootLog.WithError(err).Fatal("failed to load fallback model list")
	}
	fetcher := models.NewFetcher(mgr, fallback)
	cache := models.NewCacheWithTTL(fallback, fetcher.Refill, logger.ForComponent(log, logger.ComponentCache), cfg.ModelCacheTTL)

	drv := driver.New(mgr, driver.Config{
		MaxRetries:      cfg.MaxRetries,
		BaseRetryDelay:  cfg.BaseRetryDelay,
		UpstreamTimeout: cfg.UpstreamTimeout,
		ConnectTimeout:  cfg.ConnectTimeout,
	}, logger.ForComponent(log, logger.ComponentDriver))

	var dumper *debugdump.Dumper
	if cfg.DebugLastRequest {
		dumper = debugdump.New(cfg.DebugDir, logger.ForComponent(log, logger.ComponentHTTP))
	}

	handler := proxy.NewHandler(cfg, mgr, cache, drv, dumper, log)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /", handler.Root)
	mux.HandleFunc("GET /health", handler.Health)
	mux.HandleFunc("GET /v1/models", handler.Models)
	mux.HandleFunc("POST /v1/chat/completions", handler.ChatCompletions)
	mux.Handle("GET /metrics", promhttp.Handler())

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: cfg.UpstreamTimeout + 30*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	bootLog.WithFields(logrus.Fields{
		"port":    cfg.Port,
		"region":  cfg.KiroRegion,
		"version": GetVersionInfo(),
	}).Info("kiro gateway starting")

	if err := server.ListenAndServe(); err != nil {
		bootLog.WithError(err).Fatal("server failed to start")
	}
}

// loadCredentials builds the initial credential record: from
// KIRO_CREDS_FILE if set (per §3's persistence format), otherwise from
// the REFRESH_TOKEN/PROFILE_ARN environment values, leaving AccessToken
// unset so the first AccessToken call performs a proactive refresh.
func loadCredentials(cfg *config.Config) (*auth.Credentials, error) {
	if cfg.KiroCredsFile != "" {
		creds, err := auth.LoadFromFile(cfg.KiroCredsFile)
		if err == nil {
			return creds, nil
		}
	}
	return &auth.Credentials{
		RefreshToken: cfg.RefreshToken,
		ProfileARN:   cfg.ProfileARN,
		Region:       cfg.KiroRegion,
	}, nil
}
