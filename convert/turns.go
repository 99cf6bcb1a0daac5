package convert

import (
	"encoding/json"
	"strings"

	"kiro-gateway/types"
)

// turn is the transformer's internal normalized message: a role plus
// whatever content that role carries. Building every OpenAI role
// (including "tool") into this shape first lets mergeAdjacent operate
// uniformly, matching merge_adjacent_messages' two-pass approach.
type turn struct {
	role        string // "user" or "assistant" after foldToolMessages
	text        string
	toolCalls   []types.ToolCall // assistant-only
	toolResults []toolResultItem // user-only, synthesized from role="tool" messages
}

type toolResultItem struct {
	toolUseID string
	text      string
}

// extractSystemPrompt concatenates every leading-or-interleaved system
// message's text and returns the remaining non-system messages in order
// (§4.5 step 2).
func extractSystemPrompt(messages []types.Message) (string, []types.Message) {
	var sb strings.Builder
	rest := make([]types.Message, 0, len(messages))
	for _, m := range messages {
		if m.Role == "system" {
			if sb.Len() > 0 {
				sb.WriteString("\n")
			}
			sb.WriteString(types.ExtractText(m.Content))
		} else {
			rest = append(rest, m)
		}
	}
	return strings.TrimSpace(sb.String()), rest
}

// foldToolMessages converts every role="tool" message into a pending
// tool-result accumulator, flushed as a synthetic user turn whenever a
// non-tool message is encountered or the list ends. This mirrors
// merge_adjacent_messages' first pass before its same-role merge pass.
func foldToolMessages(messages []types.Message) []turn {
	turns := make([]turn, 0, len(messages))
	var pending []toolResultItem

	flush := func() {
		if len(pending) > 0 {
			turns = append(turns, turn{role: "user", toolResults: pending})
			pending = nil
		}
	}

	for _, m := range messages {
		if m.Role == "tool" {
			text := types.ExtractText(m.Content)
			if text == "" {
				text = "(empty result)"
			}
			pending = append(pending, toolResultItem{toolUseID: m.ToolCallID, text: text})
			continue
		}
		flush()
		turns = append(turns, turn{
			role:      m.Role,
			text:      types.ExtractText(m.Content),
			toolCalls: m.ToolCalls,
		})
	}
	flush()
	return turns
}

// mergeAdjacent merges consecutive same-role turns: text is concatenated
// with a newline separator, tool results and tool calls are unioned in
// order. Applying it twice is a no-op (§8 property 4) because there are
// never two adjacent turns of the same role left in its own output.
func mergeAdjacent(turns []turn) []turn {
	if len(turns) == 0 {
		return turns
	}
	merged := make([]turn, 0, len(turns))
	for _, t := range turns {
		if len(merged) == 0 {
			merged = append(merged, t)
			continue
		}
		last := &merged[len(merged)-1]
		if last.role != t.role {
			merged = append(merged, t)
			continue
		}
		if last.text == "" {
			last.text = t.text
		} else if t.text != "" {
			last.text = last.text + "\n" + t.text
		}
		last.toolResults = append(last.toolResults, t.toolResults...)
		if t.role == "assistant" {
			last.toolCalls = append(last.toolCalls, t.toolCalls...)
		}
	}
	return merged
}

// decodeToolArgs parses an OpenAI tool_call's JSON-string arguments into
// a structured map, falling back to {"raw": arguments} on decode failure
// (§4.5 edge cases).
func decodeToolArgs(arguments string) map[string]interface{} {
	var out map[string]interface{}
	if err := json.Unmarshal([]byte(arguments), &out); err == nil {
		return out
	}
	return map[string]interface{}{"raw": arguments}
}
