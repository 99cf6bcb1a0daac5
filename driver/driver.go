// Package driver implements the retrying request driver (C8): it owns
// the upstream HTTP call, the 403-triggers-force-refresh coordination,
// and the exponential-backoff retry policy. The transformer and parser
// never retry on their own (§7 propagation policy) — this package does.
package driver

import (
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/sirupsen/logrus"

	"kiro-gateway/auth"
	"kiro-gateway/ids"
	"kiro-gateway/kerrors"
	"kiro-gateway/metrics"
)

// Config carries the driver's retry policy knobs (§4.8, §6).
type Config struct {
	MaxRetries      int
	BaseRetryDelay  time.Duration
	UpstreamTimeout time.Duration
	ConnectTimeout  time.Duration
}

// Driver sends the generateAssistantResponse request with the upstream's
// retry and re-authentication policy applied.
type Driver struct {
	mgr     *auth.Manager
	cfg     Config
	log     *logrus.Entry
	breaker *circuitBreaker
	client  *http.Client
}

// New builds a Driver bound to mgr for re-authentication and cfg's retry
// policy.
func New(mgr *auth.Manager, cfg Config, log *logrus.Entry) *Driver {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.BaseRetryDelay <= 0 {
		cfg.BaseRetryDelay = 1 * time.Second
	}
	if cfg.UpstreamTimeout <= 0 {
		cfg.UpstreamTimeout = 300 * time.Second
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 10 * time.Second
	}

	dialer := &net.Dialer{Timeout: cfg.ConnectTimeout}
	client := &http.Client{
		Timeout: cfg.UpstreamTimeout,
		Transport: &http.Transport{
			DialContext: dialer.DialContext,
		},
	}

	return &Driver{mgr: mgr, cfg: cfg, log: log, breaker: newCircuitBreaker(DefaultCircuitConfig(), log), client: client}
}

// Result is the successful outcome of a driver call: the caller owns
// closing Body once it has consumed the response.
type Result struct {
	Body       io.ReadCloser
	StatusCode int
}

// Do sends body to url, retrying per §4.8's policy, and returns a
// decompressed, readable response body on success.
//
// A 403 triggers exactly one ForceRefresh-and-retry, counted as one of
// the attempts. 429/5xx/timeouts sleep BASE_DELAY*2^attempt and retry up
// to MaxRetries total attempts. Other 4xx responses are wrapped as
// UpstreamPermanent and never retried. Retries never re-read body past
// what was buffered by the caller, since body is a []byte here, not a
// stream: callers must not invoke Do for a request whose body has
// already started streaming to the client.
func (d *Driver) Do(ctx context.Context, url string, body []byte) (*Result, error) {
	if !d.breaker.allow() {
		return nil, kerrors.New(kerrors.UpstreamTransient, fmt.Errorf("circuit open: upstream presumed down"))
	}

	result, err := d.do(ctx, url, body)
	if err != nil {
		if ke, ok := err.(*kerrors.Error); ok && ke.Kind.Retryable() {
			d.breaker.recordFailure()
		}
		return nil, err
	}
	d.breaker.recordSuccess()
	return result, nil
}

func (d *Driver) do(ctx context.Context, url string, body []byte) (*Result, error) {
	usedForceRefresh := false

	for attempt := 0; attempt < d.cfg.MaxRetries; attempt++ {
		if ctx.Err() != nil {
			return nil, kerrors.New(kerrors.ClientDisconnected, ctx.Err())
		}

		resp, err := d.attempt(ctx, url, body)
		if err != nil {
			metrics.UpstreamRequestsTotal.WithLabelValues("connect_error").Inc()
			if attempt == d.cfg.MaxRetries-1 {
				return nil, kerrors.New(kerrors.UpstreamTransient, err)
			}
			metrics.RetryAttemptsTotal.WithLabelValues("connect_error").Inc()
			d.sleep(ctx, attempt)
			continue
		}

		switch {
		case resp.StatusCode == http.StatusOK:
			metrics.UpstreamRequestsTotal.WithLabelValues("2xx").Inc()
			reader, derr := decompress(resp)
			if derr != nil {
				resp.Body.Close()
				return nil, fmt.Errorf("decompress response: %w", derr)
			}
			return &Result{Body: reader, StatusCode: resp.StatusCode}, nil

		case resp.StatusCode == http.StatusForbidden && !usedForceRefresh:
			metrics.UpstreamRequestsTotal.WithLabelValues("403").Inc()
			resp.Body.Close()
			usedForceRefresh = true
			if err := d.mgr.ForceRefresh(ctx); err != nil {
				return nil, kerrors.New(kerrors.UpstreamAuth, fmt.Errorf("force refresh after 403: %w", err))
			}
			metrics.RetryAttemptsTotal.WithLabelValues("403").Inc()
			if attempt == d.cfg.MaxRetries-1 {
				return nil, kerrors.New(kerrors.UpstreamAuth, fmt.Errorf("403 persisted after force refresh"))
			}
			continue

		case resp.StatusCode == http.StatusForbidden:
			metrics.UpstreamRequestsTotal.WithLabelValues("403").Inc()
			respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
			resp.Body.Close()
			return nil, kerrors.Upstream(kerrors.UpstreamAuth, resp.StatusCode, string(respBody))

		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			metrics.UpstreamRequestsTotal.WithLabelValues("5xx_or_429").Inc()
			resp.Body.Close()
			if attempt == d.cfg.MaxRetries-1 {
				return nil, kerrors.New(kerrors.UpstreamTransient, fmt.Errorf("upstream status %d after %d attempts", resp.StatusCode, d.cfg.MaxRetries))
			}
			metrics.RetryAttemptsTotal.WithLabelValues("transient").Inc()
			d.sleep(ctx, attempt)
			continue

		default:
			metrics.UpstreamRequestsTotal.WithLabelValues("4xx").Inc()
			respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
			resp.Body.Close()
			return nil, kerrors.Upstream(kerrors.UpstreamPermanent, resp.StatusCode, string(respBody))
		}
	}

	return nil, kerrors.New(kerrors.UpstreamTransient, fmt.Errorf("exhausted %d attempts", d.cfg.MaxRetries))
}

func (d *Driver) attempt(ctx context.Context, url string, body []byte) (*http.Response, error) {
	token, err := d.mgr.AccessToken(ctx)
	if err != nil {
		return nil, fmt.Errorf("access token: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("User-Agent", d.mgr.UserAgent())
	req.Header.Set("amz-sdk-invocation-id", ids.InvocationID())
	req.Header.Set("Accept-Encoding", "gzip, br")

	return d.client.Do(req)
}

func (d *Driver) sleep(ctx context.Context, attempt int) {
	delay := d.cfg.BaseRetryDelay * time.Duration(1<<uint(attempt))
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

// decompress wraps resp.Body according to its Content-Encoding header.
func decompress(resp *http.Response) (io.ReadCloser, error) {
	switch resp.Header.Get("Content-Encoding") {
	case "br":
		return readCloser{io.NopCloser(brotli.NewReader(resp.Body)), resp.Body}, nil
	case "gzip":
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, err
		}
		return readCloser{gz, resp.Body}, nil
	default:
		return resp.Body, nil
	}
}

// readCloser pairs a decoding reader with the underlying body so closing
// it also releases the network connection.
type readCloser struct {
	io.Reader
	underlying io.Closer
}

func (r readCloser) Close() error { return r.underlying.Close() }
