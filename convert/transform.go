package convert

import (
	"strings"

	"github.com/sirupsen/logrus"

	"kiro-gateway/config"
	"kiro-gateway/ids"
	"kiro-gateway/models"
	"kiro-gateway/types"
)

const (
	chatTriggerType = "MANUAL"
	originAIEditor  = "AI_EDITOR"
)

// Transform builds the upstream conversationState payload from a validated
// OpenAI chat-completions request (C5, §4.5). It defaults around missing
// or empty content (a request with no usable content yields a "Continue"
// current message) and currently always returns a nil error.
func Transform(req types.ChatCompletionRequest, cfg *config.Config, log *logrus.Entry) (*Payload, error) {
	modelID := models.InternalID(req.Model)

	systemPrompt, rest := extractSystemPrompt(req.Messages)

	processedTools, longNames, longDocs := processToolsWithLongDescriptions(req.Tools, cfg.ToolDescriptionMaxLen)
	if extra := renderExtraDocs(longNames, longDocs); extra != "" {
		if systemPrompt == "" {
			systemPrompt = extra
		} else {
			systemPrompt = systemPrompt + "\n\n" + extra
		}
		if log != nil {
			log.WithField("tools", longNames).Debug("relocated oversized tool descriptions into system prompt")
		}
	}

	if addition := thinkingSystemPromptAddition(cfg.FakeReasoningEnabled); addition != "" {
		if systemPrompt == "" {
			systemPrompt = strings.TrimSpace(addition)
		} else {
			systemPrompt += addition
		}
	}

	turns := mergeAdjacent(foldToolMessages(rest))

	// Leave the placeholder's text empty rather than defaulting it to
	// "Continue" here: when a system prompt exists it must become the
	// current message verbatim (the fold below), not have "Continue"
	// concatenated onto it. The Continue default below still applies once
	// there is neither a real turn nor a system prompt to fall back on.
	if len(turns) == 0 {
		turns = []turn{{role: "user"}}
	}

	current := turns[len(turns)-1]
	history := turns[:len(turns)-1]

	// If there's a system prompt, add it to the first user message in
	// history.
	systemLanded := false
	if systemPrompt != "" {
		for i := range history {
			if history[i].role == "user" {
				history[i].text = joinSystemAndText(systemPrompt, history[i].text)
				systemLanded = true
				break
			}
		}
	}

	historyEntries := make([]HistoryEntry, 0, len(history))
	for _, t := range history {
		historyEntries = append(historyEntries, toHistoryEntry(t, modelID))
	}

	// If a system prompt exists but history holds no user turn to take it,
	// it has nowhere else to land: fold it into the current turn's text
	// now, before the assistant-lift and empty-content defaults below run.
	if systemPrompt != "" && !systemLanded {
		current.text = joinSystemAndText(systemPrompt, current.text)
	}

	// If the lifted-out current turn is assistant-authored, the upstream's
	// envelope still requires currentMessage to be a userInputMessage: push
	// the actual turn (system prompt and all, if it landed here) into
	// history as an assistantResponseMessage, and replace current with a
	// fresh placeholder user turn (§D.5 supplemented feature).
	if current.role == "assistant" {
		historyEntries = append(historyEntries, toHistoryEntry(current, modelID))
		current = turn{role: "user"}
	}

	if current.text == "" {
		current.text = "Continue"
	}

	specEntries := buildToolSpecEntries(processedTools)
	hasToolResults := len(current.toolResults) > 0

	// Inject thinking tags only into the current/last user message, after
	// the empty-content default runs (so a "Continue" placeholder turn gets
	// them too) and never alongside toolResults, which the upstream rejects
	// outright.
	if cfg.FakeReasoningEnabled {
		if !hasToolResults {
			current.text = injectThinkingTags(current.text, cfg.FakeReasoningMaxTokens)
		} else if log != nil {
			log.Debug("skipping thinking tag injection: toolResults present in current message")
		}
	}

	currentMsg := UserInputMessage{
		Content: current.text,
		ModelID: modelID,
		Origin:  originAIEditor,
	}
	if len(specEntries) > 0 || hasToolResults {
		currentMsg.UserInputMessageContext = &UserInputMessageContext{
			Tools:       specEntries,
			ToolResults: buildToolResults(current.toolResults),
		}
	}

	payload := &Payload{
		ConversationState: ConversationState{
			ChatTriggerType: chatTriggerType,
			ConversationID:  ids.ConversationID(),
			CurrentMessage:  CurrentMessage{UserInputMessage: &currentMsg},
			History:         historyEntries,
		},
		ProfileARN: cfg.ProfileARN,
	}
	return payload, nil
}

func joinSystemAndText(system, text string) string {
	if text == "" {
		return system
	}
	return system + "\n\n" + text
}

func toHistoryEntry(t turn, modelID string) HistoryEntry {
	if t.role == "assistant" {
		return HistoryEntry{AssistantResponseMessage: &AssistantResponseMessage{
			Content:  t.text,
			ToolUses: toToolUses(t.toolCalls),
		}}
	}
	msg := UserInputMessage{
		Content: t.text,
		ModelID: modelID,
		Origin:  originAIEditor,
	}
	if len(t.toolResults) > 0 {
		msg.UserInputMessageContext = &UserInputMessageContext{
			ToolResults: buildToolResults(t.toolResults),
		}
	}
	return HistoryEntry{UserInputMessage: &msg}
}

func toToolUses(calls []types.ToolCall) []ToolUse {
	if len(calls) == 0 {
		return nil
	}
	out := make([]ToolUse, 0, len(calls))
	for _, c := range calls {
		id := c.ID
		if id == "" {
			id = ids.ToolCallID()
		}
		out = append(out, ToolUse{
			Name:      c.Function.Name,
			Input:     decodeToolArgs(c.Function.Arguments),
			ToolUseID: id,
		})
	}
	return out
}

func buildToolResults(items []toolResultItem) []ToolResult {
	if len(items) == 0 {
		return nil
	}
	out := make([]ToolResult, 0, len(items))
	for _, item := range items {
		out = append(out, ToolResult{
			Content:   []ToolResultContent{{Text: item.text}},
			Status:    "success",
			ToolUseID: item.toolUseID,
		})
	}
	return out
}
