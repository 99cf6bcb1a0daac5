// Package metrics defines the gateway's Prometheus instrumentation,
// served at GET /metrics via promhttp.Handler.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// UpstreamRequestsTotal counts each upstream generateAssistantResponse
// attempt by its outcome class (C8).
var UpstreamRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "kiro_gateway_upstream_requests_total",
	Help: "Upstream requests by outcome class.",
}, []string{"status_class"})

// RetryAttemptsTotal counts every retry C8 performs, by the reason that
// triggered it.
var RetryAttemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "kiro_gateway_retry_attempts_total",
	Help: "Retry attempts performed by the request driver, by trigger.",
}, []string{"trigger"})

// TokenRefreshesTotal counts credential refreshes by whether they were
// proactive (near expiry) or reactive (triggered by a 403).
var TokenRefreshesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "kiro_gateway_token_refreshes_total",
	Help: "Credential refreshes performed, by trigger.",
}, []string{"trigger"})

// StreamingResponseDuration observes how long a single streaming request
// spends between the upstream call starting and its final chunk.
var StreamingResponseDuration = promauto.NewHistogram(prometheus.HistogramOpts{
	Name:    "kiro_gateway_streaming_response_duration_seconds",
	Help:    "Duration of streaming chat-completion responses.",
	Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
})
