package driver

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// CircuitConfig controls the driver's cross-request circuit breaker: this
// gateway has exactly one upstream, so there is nothing to fail over to,
// but a persistently failing upstream still shouldn't make every new
// request pay its own full retry budget before giving up.
type CircuitConfig struct {
	FailureThreshold   int
	BackoffDuration    time.Duration
	MaxBackoffDuration time.Duration
}

// DefaultCircuitConfig opens the circuit after two consecutive Do()
// failures, backing off for 30s, doubling up to a 5 minute ceiling.
func DefaultCircuitConfig() CircuitConfig {
	return CircuitConfig{
		FailureThreshold:   2,
		BackoffDuration:    30 * time.Second,
		MaxBackoffDuration: 5 * time.Minute,
	}
}

// circuitBreaker tracks the single upstream's health across requests,
// independent of any one Do() call's own retry loop.
type circuitBreaker struct {
	mu sync.RWMutex

	cfg          CircuitConfig
	failureCount int
	open         bool
	nextRetryAt  time.Time
	log          *logrus.Entry
}

func newCircuitBreaker(cfg CircuitConfig, log *logrus.Entry) *circuitBreaker {
	return &circuitBreaker{cfg: cfg, log: log}
}

// allow reports whether a new Do() call should even attempt the upstream.
// An open circuit past its backoff window lets exactly one probe through
// (the circuit doesn't close until that probe calls recordSuccess).
func (b *circuitBreaker) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.open {
		return true
	}
	if !time.Now().After(b.nextRetryAt) {
		return false
	}
	// Hold back further calls until this probe reports its outcome.
	b.nextRetryAt = time.Now().Add(b.cfg.BackoffDuration)
	return true
}

// recordFailure counts one failed Do() call, opening the circuit once
// FailureThreshold is reached and extending the backoff on every
// failure after that (exponential, capped at MaxBackoffDuration).
func (b *circuitBreaker) recordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failureCount++
	if b.failureCount < b.cfg.FailureThreshold {
		return
	}

	over := b.failureCount - b.cfg.FailureThreshold + 1
	backoff := b.cfg.BackoffDuration
	for i := 1; i < over && backoff < b.cfg.MaxBackoffDuration; i++ {
		backoff *= 2
	}
	if backoff > b.cfg.MaxBackoffDuration {
		backoff = b.cfg.MaxBackoffDuration
	}

	b.open = true
	b.nextRetryAt = time.Now().Add(backoff)
	if b.log != nil {
		b.log.WithField("retry_in", backoff).Warn("circuit breaker opened for upstream")
	}
}

// recordSuccess closes the circuit and resets the failure count.
func (b *circuitBreaker) recordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.open && b.log != nil {
		b.log.Info("circuit breaker closed, upstream recovered")
	}
	b.open = false
	b.failureCount = 0
}
