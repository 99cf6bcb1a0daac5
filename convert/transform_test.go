package convert

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kiro-gateway/config"
	"kiro-gateway/types"
)

func rawString(s string) json.RawMessage {
	b, _ := json.Marshal(s)
	return b
}

func msg(role, text string) types.Message {
	return types.Message{Role: role, Content: rawString(text)}
}

func TestTransform_SimpleUserMessage(t *testing.T) {
	req := types.ChatCompletionRequest{
		Model:    "claude-sonnet-4-5",
		Messages: []types.Message{msg("user", "hello there")},
	}
	payload, err := Transform(req, config.Default(), nil)
	require.NoError(t, err)

	cur := payload.ConversationState.CurrentMessage.UserInputMessage
	require.NotNil(t, cur)
	assert.Equal(t, "hello there", cur.Content)
	assert.Equal(t, "CLAUDE_SONNET_4_5_20250929_V1_0", cur.ModelID)
	assert.Empty(t, payload.ConversationState.History)
}

func TestTransform_SystemPromptPrependedToFirstHistoryUserMessage(t *testing.T) {
	req := types.ChatCompletionRequest{
		Model: "auto",
		Messages: []types.Message{
			msg("system", "be terse"),
			msg("user", "first"),
			msg("assistant", "ack"),
			msg("user", "second"),
		},
	}
	payload, err := Transform(req, config.Default(), nil)
	require.NoError(t, err)

	require.Len(t, payload.ConversationState.History, 2)
	first := payload.ConversationState.History[0].UserInputMessage
	require.NotNil(t, first)
	assert.True(t, strings.HasPrefix(first.Content, "be terse\n\nfirst"))

	cur := payload.ConversationState.CurrentMessage.UserInputMessage
	assert.Equal(t, "second", cur.Content)
}

func TestTransform_SystemPromptFoldedIntoCurrentWhenHistoryEmpty(t *testing.T) {
	req := types.ChatCompletionRequest{
		Model:    "auto",
		Messages: []types.Message{msg("system", "be terse"), msg("user", "hi")},
	}
	payload, err := Transform(req, config.Default(), nil)
	require.NoError(t, err)
	assert.Empty(t, payload.ConversationState.History)
	cur := payload.ConversationState.CurrentMessage.UserInputMessage
	assert.Equal(t, "be terse\n\nhi", cur.Content)
}

func TestTransform_SystemPromptOnlyBecomesCurrentMessageVerbatim(t *testing.T) {
	req := types.ChatCompletionRequest{
		Model:    "auto",
		Messages: []types.Message{msg("system", "sp")},
	}
	payload, err := Transform(req, config.Default(), nil)
	require.NoError(t, err)
	assert.Empty(t, payload.ConversationState.History)
	cur := payload.ConversationState.CurrentMessage.UserInputMessage
	assert.Equal(t, "sp", cur.Content, "a lone system prompt must become the current message verbatim, not \"sp\\n\\nContinue\"")
}

func TestTransform_TrailingAssistantTurnLiftedToHistoryWithContinuePlaceholder(t *testing.T) {
	req := types.ChatCompletionRequest{
		Model:    "auto",
		Messages: []types.Message{msg("user", "hi"), msg("assistant", "response text")},
	}
	payload, err := Transform(req, config.Default(), nil)
	require.NoError(t, err)

	require.Len(t, payload.ConversationState.History, 2)
	last := payload.ConversationState.History[1].AssistantResponseMessage
	require.NotNil(t, last)
	assert.Equal(t, "response text", last.Content)

	cur := payload.ConversationState.CurrentMessage.UserInputMessage
	require.NotNil(t, cur)
	assert.Equal(t, "Continue", cur.Content)
}

func TestTransform_EmptyContentDefaultsToContinue(t *testing.T) {
	req := types.ChatCompletionRequest{
		Model:    "auto",
		Messages: []types.Message{msg("user", "")},
	}
	payload, err := Transform(req, config.Default(), nil)
	require.NoError(t, err)
	cur := payload.ConversationState.CurrentMessage.UserInputMessage
	assert.Equal(t, "Continue", cur.Content)
}

func TestTransform_ToolResultFoldedIntoUserTurnWithDefaultText(t *testing.T) {
	req := types.ChatCompletionRequest{
		Model: "auto",
		Messages: []types.Message{
			msg("user", "run the tool"),
			{Role: "assistant", Content: rawString(""), ToolCalls: []types.ToolCall{
				{ID: "call_1", Type: "function", Function: types.ToolCallFunction{Name: "get_weather", Arguments: `{"city":"nyc"}`}},
			}},
			{Role: "tool", ToolCallID: "call_1", Content: rawString("")},
		},
	}
	payload, err := Transform(req, config.Default(), nil)
	require.NoError(t, err)

	cur := payload.ConversationState.CurrentMessage.UserInputMessage
	require.NotNil(t, cur.UserInputMessageContext)
	require.Len(t, cur.UserInputMessageContext.ToolResults, 1)
	assert.Equal(t, "(empty result)", cur.UserInputMessageContext.ToolResults[0].Content[0].Text)
	assert.Equal(t, "call_1", cur.UserInputMessageContext.ToolResults[0].ToolUseID)

	require.Len(t, payload.ConversationState.History, 2)
	assistantEntry := payload.ConversationState.History[1].AssistantResponseMessage
	require.NotNil(t, assistantEntry)
	require.Len(t, assistantEntry.ToolUses, 1)
	assert.Equal(t, "get_weather", assistantEntry.ToolUses[0].Name)
	assert.Equal(t, "nyc", assistantEntry.ToolUses[0].Input["city"])
}

func TestTransform_ThinkingTagsSkippedWhenToolResultsPresent(t *testing.T) {
	cfg := config.Default()
	cfg.FakeReasoningEnabled = true
	req := types.ChatCompletionRequest{
		Model: "auto",
		Messages: []types.Message{
			msg("user", "run the tool"),
			{Role: "assistant", Content: rawString(""), ToolCalls: []types.ToolCall{
				{ID: "call_1", Type: "function", Function: types.ToolCallFunction{Name: "get_weather", Arguments: `{}`}},
			}},
			{Role: "tool", ToolCallID: "call_1", Content: rawString("42")},
		},
	}
	payload, err := Transform(req, cfg, nil)
	require.NoError(t, err)
	cur := payload.ConversationState.CurrentMessage.UserInputMessage
	assert.False(t, strings.Contains(cur.Content, "<thinking_mode>"))
	assert.Equal(t, "Continue", cur.Content)
}

func TestTransform_ThinkingTagsInjectedWhenEnabledAndNoToolResults(t *testing.T) {
	cfg := config.Default()
	cfg.FakeReasoningEnabled = true
	req := types.ChatCompletionRequest{
		Model:    "auto",
		Messages: []types.Message{msg("user", "explain recursion")},
	}
	payload, err := Transform(req, cfg, nil)
	require.NoError(t, err)
	cur := payload.ConversationState.CurrentMessage.UserInputMessage
	assert.True(t, strings.HasPrefix(cur.Content, "<thinking_mode>enabled</thinking_mode>"))
	assert.True(t, strings.HasSuffix(cur.Content, "explain recursion"))
}

func TestProcessToolsWithLongDescriptions_RewritesOversizedDescription(t *testing.T) {
	longDesc := strings.Repeat("x", 50)
	tools := []types.Tool{
		{Type: "function", Function: types.ToolFunction{Name: "big_tool", Description: longDesc}},
	}
	out, names, docs := processToolsWithLongDescriptions(tools, 10)
	require.Len(t, names, 1)
	assert.Equal(t, "big_tool", names[0])
	assert.Equal(t, longDesc, docs["big_tool"])
	assert.NotEqual(t, longDesc, out[0].Function.Description)

	rendered := renderExtraDocs(names, docs)
	assert.Equal(t, "## Tool: big_tool\n"+longDesc, rendered)
}

func TestProcessToolsWithLongDescriptions_EmptyDescriptionGetsPlaceholder(t *testing.T) {
	tools := []types.Tool{
		{Type: "function", Function: types.ToolFunction{Name: "quiet_tool", Description: "  "}},
	}
	out, names, _ := processToolsWithLongDescriptions(tools, 10000)
	assert.Empty(t, names)
	assert.Equal(t, "Tool: quiet_tool", out[0].Function.Description)
}

func TestSanitizeJSONSchema_StripsEmptyRequiredAndAdditionalProperties(t *testing.T) {
	schema := map[string]interface{}{
		"type":                 "object",
		"required":             []interface{}{},
		"additionalProperties": false,
		"properties": map[string]interface{}{
			"nested": map[string]interface{}{
				"type":                 "object",
				"additionalProperties": true,
				"required":             []interface{}{"x"},
			},
		},
	}
	out := sanitizeJSONSchema(schema)
	_, hasRequired := out["required"]
	_, hasAdditional := out["additionalProperties"]
	assert.False(t, hasRequired)
	assert.False(t, hasAdditional)

	nested := out["properties"].(map[string]interface{})["nested"].(map[string]interface{})
	_, nestedHasAdditional := nested["additionalProperties"]
	assert.False(t, nestedHasAdditional)
	assert.Equal(t, []interface{}{"x"}, nested["required"])
}

func TestMergeAdjacent_IsIdempotent(t *testing.T) {
	req := types.ChatCompletionRequest{
		Model: "auto",
		Messages: []types.Message{
			msg("user", "a"),
			msg("user", "b"),
			msg("assistant", "c"),
			msg("assistant", "d"),
		},
	}
	_, rest := extractSystemPrompt(req.Messages)
	once := mergeAdjacent(foldToolMessages(rest))
	twice := mergeAdjacent(once)
	require.Equal(t, len(once), len(twice))
	for i := range once {
		assert.Equal(t, once[i].text, twice[i].text)
		assert.Equal(t, once[i].role, twice[i].role)
	}
}
