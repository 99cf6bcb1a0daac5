// Package logger wires github.com/sirupsen/logrus into a small
// context-aware API: every call site gets a component-tagged entry with
// the request ID already attached. MaskSecrets redacts bearer tokens from
// a string; it is not applied to log fields automatically.
package logger

import (
	"context"
	"os"
	"regexp"

	"github.com/sirupsen/logrus"

	"kiro-gateway/internal"
)

// Component labels used consistently across the gateway's packages.
const (
	ComponentAuth       = "auth"
	ComponentTransform  = "transform"
	ComponentParser     = "parser"
	ComponentTranscoder = "transcoder"
	ComponentDriver     = "driver"
	ComponentCache      = "model_cache"
	ComponentHTTP       = "http"
)

type contextKey string

const loggerContextKey contextKey = "logger_entry"

// New builds the process-wide logrus.Logger, JSON-formatted for log
// aggregation, matching the service's existing observability style.
func New() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(os.Stdout)
	log.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
		FieldMap: logrus.FieldMap{
			logrus.FieldKeyTime:  "timestamp",
			logrus.FieldKeyLevel: "level",
			logrus.FieldKeyMsg:   "message",
		},
	})
	log.SetLevel(logrus.InfoLevel)
	return log.WithField("service", "kiro-gateway").Logger
}

// ForComponent returns an entry tagged with component, with no request ID
// yet attached (use WithContext once a request ID is known).
func ForComponent(log *logrus.Logger, component string) *logrus.Entry {
	return log.WithField("component", component)
}

// WithContext attaches the request ID from ctx, if any, to entry.
func WithContext(ctx context.Context, entry *logrus.Entry) *logrus.Entry {
	if id := internal.GetRequestID(ctx); id != "" && id != "unknown" {
		return entry.WithField("request_id", id)
	}
	return entry
}

// StoreInContext stashes entry in ctx for later retrieval by FromContext.
func StoreInContext(ctx context.Context, entry *logrus.Entry) context.Context {
	return context.WithValue(ctx, loggerContextKey, entry)
}

// FromContext retrieves a previously stored entry, or falls back to a
// bare entry off log tagged with component.
func FromContext(ctx context.Context, log *logrus.Logger, component string) *logrus.Entry {
	if entry, ok := ctx.Value(loggerContextKey).(*logrus.Entry); ok {
		return entry
	}
	return WithContext(ctx, ForComponent(log, component))
}

var secretPattern = regexp.MustCompile(`(Bearer\s+)[A-Za-z0-9\-_.]+`)

// MaskSecrets redacts the token following each "Bearer " in s. Tokens
// that do not follow "Bearer " are left as they are.
func MaskSecrets(s string) string {
	return secretPattern.ReplaceAllString(s, "${1}***")
}
