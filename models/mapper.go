// Package models holds the model-ID mapper (C2) and the TTL-gated
// model-info cache (C4).
package models

// internalIDTable is the authoritative external->internal model mapping.
// Keys are external (client-facing) model names; values are the internal
// IDs the upstream expects in generateAssistantResponse/modelId.
var internalIDTable = map[string]string{
	"claude-opus-4-5":            "claude-opus-4.5",
	"claude-opus-4-5-20251101":   "claude-opus-4.5",
	"claude-haiku-4-5":           "claude-haiku-4.5",
	"claude-haiku-4.5":           "claude-haiku-4.5",
	"claude-sonnet-4-5":          "CLAUDE_SONNET_4_5_20250929_V1_0",
	"claude-sonnet-4-5-20250929": "CLAUDE_SONNET_4_5_20250929_V1_0",
	"claude-sonnet-4":            "CLAUDE_SONNET_4_20250514_V1_0",
	"claude-sonnet-4-20250514":   "CLAUDE_SONNET_4_20250514_V1_0",
	"claude-3-7-sonnet-20250219": "CLAUDE_3_7_SONNET_20250219_V1_0",
	"auto":                       "claude-sonnet-4.5",
}

// InternalID maps an external (client-supplied) model name to the
// upstream's internal model ID. It never fails: unknown names pass
// through unchanged, since the upstream itself is the final authority
// on whether a model ID is valid.
func InternalID(external string) string {
	if internal, ok := internalIDTable[external]; ok {
		return internal
	}
	return external
}
