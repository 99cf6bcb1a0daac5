// Package convert implements the request transformer (C5): turning a
// validated OpenAI chat-completions request into the upstream's
// conversationState/history payload shape.
package convert

// Payload is the full body POSTed to generateAssistantResponse.
type Payload struct {
	ConversationState ConversationState `json:"conversationState"`
	ProfileARN         string            `json:"profileArn,omitempty"`
}

// ConversationState is the upstream's top-level conversation envelope.
type ConversationState struct {
	ChatTriggerType string         `json:"chatTriggerType"`
	ConversationID  string         `json:"conversationId"`
	CurrentMessage  CurrentMessage `json:"currentMessage"`
	History         []HistoryEntry `json:"history,omitempty"`
}

// CurrentMessage wraps the lifted last turn.
type CurrentMessage struct {
	UserInputMessage *UserInputMessage `json:"userInputMessage"`
}

// HistoryEntry is one alternating history turn: exactly one of the two
// fields is set.
type HistoryEntry struct {
	UserInputMessage         *UserInputMessage         `json:"userInputMessage,omitempty"`
	AssistantResponseMessage *AssistantResponseMessage `json:"assistantResponseMessage,omitempty"`
}

// UserInputMessage is a user-role turn.
type UserInputMessage struct {
	Content               string                   `json:"content"`
	ModelID               string                   `json:"modelId"`
	Origin                string                   `json:"origin"`
	UserInputMessageContext *UserInputMessageContext `json:"userInputMessageContext,omitempty"`
}

// UserInputMessageContext carries tool specifications and tool results
// attached to a user turn.
type UserInputMessageContext struct {
	Tools       []ToolSpecEntry `json:"tools,omitempty"`
	ToolResults []ToolResult    `json:"toolResults,omitempty"`
}

// ToolSpecEntry wraps one tool specification.
type ToolSpecEntry struct {
	ToolSpecification ToolSpecification `json:"toolSpecification"`
}

// ToolSpecification is a tool definition in the upstream's shape (§3).
type ToolSpecification struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	InputSchema InputSchema `json:"inputSchema"`
}

// InputSchema wraps the sanitized JSON Schema under the "json" key.
type InputSchema struct {
	JSON map[string]interface{} `json:"json"`
}

// ToolResult is a tool-result block attached to a user turn.
type ToolResult struct {
	Content   []ToolResultContent `json:"content"`
	Status    string              `json:"status"`
	ToolUseID string              `json:"toolUseId"`
}

// ToolResultContent is one text block of a tool result.
type ToolResultContent struct {
	Text string `json:"text"`
}

// AssistantResponseMessage is an assistant-role turn.
type AssistantResponseMessage struct {
	Content  string    `json:"content"`
	ToolUses []ToolUse `json:"toolUses,omitempty"`
}

// ToolUse is an assistant's tool invocation in upstream shape.
type ToolUse struct {
	Name      string                 `json:"name"`
	Input     map[string]interface{} `json:"input"`
	ToolUseID string                 `json:"toolUseId"`
}
