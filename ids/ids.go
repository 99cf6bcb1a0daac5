// Package ids provides the deterministic and random identifier helpers
// used throughout the gateway: a per-host machine fingerprint, and the
// random IDs stamped on completions, tool calls, and conversations.
package ids

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"os/user"

	"github.com/google/uuid"
)

// MachineFingerprint returns the hex SHA-256 digest of "{hostname}-{username}-kiro-gateway".
// It is deterministic within a host/user pair and stable across process restarts.
func MachineFingerprint() string {
	hostname, err := os.Hostname()
	if err != nil || hostname == "" {
		hostname = "unknown-host"
	}

	username := "unknown-user"
	if u, err := user.Current(); err == nil && u.Username != "" {
		username = u.Username
	} else if env := os.Getenv("USER"); env != "" {
		username = env
	}

	sum := sha256.Sum256([]byte(fmt.Sprintf("%s-%s-kiro-gateway", hostname, username)))
	return hex.EncodeToString(sum[:])
}

func randomHex(n int) string {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand failing is a fatal environment problem; fall back to
		// a zeroed-but-valid-shaped ID rather than panicking mid-request.
		return hex.EncodeToString(buf)
	}
	return hex.EncodeToString(buf)
}

// CompletionID returns a fresh "chatcmpl-" prefixed identifier shared by
// every chunk of one response.
func CompletionID() string {
	return "chatcmpl-" + randomHex(32)
}

// ToolCallID returns a fresh "call_" prefixed identifier for a tool call
// that the upstream did not itself label with a client-facing ID.
func ToolCallID() string {
	return "call_" + randomHex(8)
}

// ConversationID returns a freshly generated random UUID v4 for the
// upstream conversationState.conversationId field.
func ConversationID() string {
	return uuid.New().String()
}

// InvocationID returns a freshly generated random UUID v4 suitable for the
// amz-sdk-invocation-id header sent with every upstream call.
func InvocationID() string {
	return uuid.New().String()
}
