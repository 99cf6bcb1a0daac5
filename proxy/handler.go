// Package proxy wires the gateway's components (C1-C9) into the public
// HTTP surface: GET /, GET /health, GET /v1/models and POST
// /v1/chat/completions. GET /metrics is registered in main.go.
package proxy

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"kiro-gateway/auth"
	"kiro-gateway/config"
	"kiro-gateway/convert"
	"kiro-gateway/debugdump"
	"kiro-gateway/driver"
	"kiro-gateway/kerrors"
	"kiro-gateway/logger"
	"kiro-gateway/metrics"
	"kiro-gateway/models"
	"kiro-gateway/parser"
	"kiro-gateway/transcode"
	"kiro-gateway/types"
)

const maxRequestBodyBytes = 10 << 20 // 10MiB

// Version is the gateway's reported version string (§6).
const Version = "1.0.0"

// Handler serves the gateway's routes. One Handler is shared by every
// request; everything it touches (the credential manager, the model-info
// cache, the driver) is itself safe for concurrent use (§5).
type Handler struct {
	cfg    *config.Config
	mgr    *auth.Manager
	cache  *models.Cache
	drv    *driver.Driver
	dumper *debugdump.Dumper
	log    *logrus.Logger

	upstreamURLOverride string // overridable for tests; empty means derive from mgr.APIHost()
}

// NewHandler builds a Handler bound to its collaborators.
func NewHandler(cfg *config.Config, mgr *auth.Manager, cache *models.Cache, drv *driver.Driver, dumper *debugdump.Dumper, log *logrus.Logger) *Handler {
	return &Handler{cfg: cfg, mgr: mgr, cache: cache, drv: drv, dumper: dumper, log: log}
}

// Root serves GET /.
func (h *Handler) Root(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"message": "Kiro gateway",
		"version": Version,
	})
}

// Health serves GET /health.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"version":   Version,
	})
}

// Models serves GET /v1/models (Bearer-authed). On a cache miss it
// triggers a single coalesced refill before answering (§4.4).
func (h *Handler) Models(w http.ResponseWriter, r *http.Request) {
	if !h.checkBearer(r) {
		writeError(w, kerrors.New(kerrors.ProxyAuthMissing, errors.New("missing or invalid bearer token")))
		return
	}

	if h.cache.IsEmpty() || h.cache.IsStale() {
		h.cache.EnsureFresh(r.Context())
	}

	ids := h.cache.AllIDs()
	now := time.Now().Unix()
	data := make([]types.Model, 0, len(ids))
	for _, id := range ids {
		data = append(data, types.Model{
			ID:      id,
			Object:  "model",
			Created: now,
			OwnedBy: "kiro",
		})
	}
	writeJSON(w, http.StatusOK, types.ModelList{Object: "list", Data: data})
}

// ChatCompletions serves POST /v1/chat/completions (Bearer-authed),
// running the full C2/C4/C5/C8/C6/C7/C9 pipeline described in §2.
func (h *Handler) ChatCompletions(w http.ResponseWriter, r *http.Request) {
	if !h.checkBearer(r) {
		writeError(w, kerrors.New(kerrors.ProxyAuthMissing, errors.New("missing or invalid bearer token")))
		return
	}

	requestID := generateRequestID()
	ctx := withRequestID(r.Context(), requestID)
	log := logger.WithContext(ctx, logger.ForComponent(h.log, logger.ComponentHTTP))

	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, kerrors.New(kerrors.Validation, err))
		return
	}

	h.dumper.PrepareNewRequest()
	h.dumper.LogRequestBody(body)

	var req types.ChatCompletionRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, kerrors.New(kerrors.Validation, err))
		return
	}

	payload, err := convert.Transform(req, h.cfg, log)
	if err != nil {
		writeError(w, kerrors.New(kerrors.Validation, err))
		return
	}

	upstreamBody, err := json.Marshal(payload)
	if err != nil {
		writeError(w, kerrors.New(kerrors.Validation, err))
		return
	}
	h.dumper.LogKiroRequestBody(upstreamBody)

	modelID := payload.ConversationState.CurrentMessage.UserInputMessage.ModelID
	maxInputTokens := h.cache.GetMaxInputTokens(modelID)

	result, err := h.drv.Do(ctx, h.upstreamURL(), upstreamBody)
	if err != nil {
		log.WithError(err).Warn("upstream call failed")
		writeError(w, err)
		return
	}
	defer result.Body.Close()

	if req.Stream {
		h.streamResponse(ctx, w, result.Body, modelID, maxInputTokens)
		return
	}
	h.collectResponse(w, result.Body, modelID, maxInputTokens)
}

// streamResponse drives C6/C7 chunk-by-chunk, flushing each rendered SSE
// line to the client as it is produced. Per §7's propagation policy, once
// the first chunk has been flushed no error can be surfaced as an HTTP
// status; a mid-stream failure truncates the stream and still terminates
// it with the DONE marker so the client's parser doesn't hang.
func (h *Handler) streamResponse(ctx context.Context, w http.ResponseWriter, body io.Reader, modelID string, maxInputTokens int) {
	start := time.Now()
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	flusher, _ := w.(http.Flusher)
	p := parser.New()
	t := transcode.New(modelID, time.Now().Unix(), maxInputTokens)

	emit := func(chunks []types.StreamChunk) bool {
		for _, chunk := range chunks {
			line, err := transcode.RenderSSE(chunk)
			if err != nil {
				continue
			}
			h.dumper.LogModifiedChunk(line)
			if _, err := w.Write(line); err != nil {
				return false
			}
			if flusher != nil {
				flusher.Flush()
			}
		}
		return true
	}

	buf := make([]byte, 32*1024)
	for {
		select {
		case <-ctx.Done():
			w.Write([]byte(transcode.DoneLine))
			metrics.StreamingResponseDuration.Observe(time.Since(start).Seconds())
			return
		default:
		}

		n, readErr := body.Read(buf)
		if n > 0 {
			chunk := buf[:n]
			h.dumper.LogRawChunk(chunk)
			events := p.Feed(chunk)
			for _, ev := range events {
				if !emit(t.Consume(ev)) {
					metrics.StreamingResponseDuration.Observe(time.Since(start).Seconds())
					return
				}
			}
		}
		if readErr != nil {
			break
		}
	}

	for _, ev := range p.End() {
		if !emit(t.Consume(ev)) {
			break
		}
	}
	w.Write([]byte(transcode.DoneLine))
	if flusher != nil {
		flusher.Flush()
	}
	metrics.StreamingResponseDuration.Observe(time.Since(start).Seconds())
}

// collectResponse drains the upstream event-stream fully before replying,
// using the same parser/transcoder pipeline and C9's Collect to assemble
// one non-streaming response (§4.9).
func (h *Handler) collectResponse(w http.ResponseWriter, body io.Reader, modelID string, maxInputTokens int) {
	raw, err := io.ReadAll(body)
	if err != nil {
		writeError(w, kerrors.New(kerrors.StreamParseError, err))
		return
	}
	h.dumper.LogRawChunk(raw)

	p := parser.New()
	t := transcode.New(modelID, time.Now().Unix(), maxInputTokens)

	var chunks []types.StreamChunk
	for _, ev := range p.Feed(raw) {
		chunks = append(chunks, t.Consume(ev)...)
	}
	for _, ev := range p.End() {
		chunks = append(chunks, t.Consume(ev)...)
	}

	resp, err := transcode.Collect(chunks, p.CleanedContent(), true)
	if err != nil {
		writeError(w, kerrors.New(kerrors.StreamParseError, err))
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// checkBearer validates the Authorization header against the configured
// proxy key in constant time, so a wrong guess can't be timed apart from
// a right one.
func (h *Handler) checkBearer(r *http.Request) bool {
	const prefix = "Bearer "
	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(header, prefix) {
		return false
	}
	got := strings.TrimPrefix(header, prefix)
	return subtle.ConstantTimeCompare([]byte(got), []byte(h.cfg.ProxyAPIKey)) == 1
}

func (h *Handler) upstreamURL() string {
	if h.upstreamURLOverride != "" {
		return h.upstreamURLOverride
	}
	return "https://" + h.mgr.APIHost() + "/generateAssistantResponse"
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// errorEnvelope is the client-visible error body (§6/§7).
type errorEnvelope struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// writeError classifies err via the kerrors taxonomy and writes the
// matching status and envelope. Any error that wraps
// context.DeadlineExceeded surfaces as 504, whether bare or classified
// (kerrors.Error unwraps to its cause), per §6's "timeout surfacing".
func writeError(w http.ResponseWriter, err error) {
	if errors.Is(err, context.DeadlineExceeded) {
		writeErrorEnvelope(w, http.StatusGatewayTimeout, err.Error())
		return
	}

	var ke *kerrors.Error
	if errors.As(err, &ke) {
		body := ke.Error()
		if ke.Body != "" {
			body = ke.Body
		}
		writeErrorEnvelope(w, ke.Kind.Status(), body)
		return
	}

	writeErrorEnvelope(w, http.StatusInternalServerError, err.Error())
}

func writeErrorEnvelope(w http.ResponseWriter, status int, message string) {
	var env errorEnvelope
	env.Error.Message = message
	env.Error.Type = http.StatusText(status)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(env)
}
