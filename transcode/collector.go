package transcode

import (
	"fmt"
	"strings"

	"kiro-gateway/types"
)

// Collect reconstructs a single non-streaming chat-completion response
// from the chunk sequence C7 would have emitted, concatenating content
// and rebuilding tool calls by index (C9, §4.9), the same way the
// gateway's earlier streaming-response reconstruction worked.
//
// cleaned reports whether cleanedContent came from the parser's post-hoc
// bracket-call text removal (parser.Parser.CleanedContent); when true,
// cleanedContent replaces the chunk-concatenated content outright, even
// if cleanedContent is itself empty (a response consisting of nothing
// but a single bracket-style tool call cleans down to ""). Unlike a live
// SSE stream, a non-streaming response is never sent until it's fully
// assembled, so this post-hoc pass can still take effect here.
func Collect(chunks []types.StreamChunk, cleanedContent string, cleaned bool) (*types.ChatCompletionResponse, error) {
	if len(chunks) == 0 {
		return nil, fmt.Errorf("no chunks to collect")
	}

	first := chunks[0]
	response := &types.ChatCompletionResponse{
		ID:      first.ID,
		Object:  "chat.completion",
		Created: first.Created,
		Model:   first.Model,
	}

	var contentParts []string
	var toolCalls []types.ToolCall
	var finishReason *string
	var usage types.Usage

	for _, chunk := range chunks {
		if chunk.Usage != nil {
			usage = *chunk.Usage
			continue
		}
		if len(chunk.Choices) == 0 {
			continue
		}

		choice := chunk.Choices[0]
		if choice.Delta.Content != "" {
			contentParts = append(contentParts, choice.Delta.Content)
		}

		for _, tc := range choice.Delta.ToolCalls {
			idx := tc.Index
			for len(toolCalls) <= idx {
				toolCalls = append(toolCalls, types.ToolCall{Type: "function"})
			}
			if tc.ID != "" {
				toolCalls[idx].ID = tc.ID
			}
			if tc.Type != "" {
				toolCalls[idx].Type = tc.Type
			}
			if tc.Function.Name != "" {
				toolCalls[idx].Function.Name = tc.Function.Name
			}
			toolCalls[idx].Function.Arguments += tc.Function.Arguments
		}

		if choice.FinishReason != nil {
			finishReason = choice.FinishReason
		}
	}

	content := strings.Join(contentParts, "")
	if cleaned {
		content = cleanedContent
	}
	message := types.ResponseMessage{
		Role:    "assistant",
		Content: content,
	}
	if len(toolCalls) > 0 {
		message.ToolCalls = toolCalls
	}

	response.Choices = []types.Choice{{
		Index:        0,
		Message:      message,
		FinishReason: finishReason,
	}}
	response.Usage = usage
	return response, nil
}
