// Package transcode drives the event-stream parser (C6) and turns its
// events into the client-facing OpenAI stream chunk sequence (C7), or
// collects them into a single non-streaming response (C9).
package transcode

import (
	"strings"

	"kiro-gateway/ids"
	"kiro-gateway/models"
	"kiro-gateway/parser"
	"kiro-gateway/types"
)

// Transcoder drives one response's worth of parser events into OpenAI
// stream chunks. One instance serves one request; it is not safe for
// concurrent use.
type Transcoder struct {
	completionID string
	created      int64
	model        string
	maxInputTok  int

	emittedRole bool
	toolIndex   map[string]int // toolUseId -> tool_calls index
	nextIndex   int
	anyToolCall bool

	totalChars          int
	contentText         strings.Builder
	contextUsagePercent *float64
	creditsUsed         *float64
}

// New builds a Transcoder for one response. created is a Unix timestamp
// supplied by the caller (the transcoder never reads the clock itself).
func New(model string, created int64, maxInputTokens int) *Transcoder {
	return &Transcoder{
		completionID: ids.CompletionID(),
		created:      created,
		model:        model,
		maxInputTok:  maxInputTokens,
		toolIndex:    make(map[string]int),
	}
}

// CompletionID returns the id every chunk (and the eventual non-stream
// response) shares.
func (t *Transcoder) CompletionID() string { return t.completionID }

func (t *Transcoder) baseChunk() types.StreamChunk {
	return types.StreamChunk{
		ID:      t.completionID,
		Object:  "chat.completion.chunk",
		Created: t.created,
		Model:   t.model,
		Choices: []types.StreamChoice{{Index: 0}},
	}
}

// Consume turns one parser.Event into zero or more stream chunks.
func (t *Transcoder) Consume(ev parser.Event) []types.StreamChunk {
	var chunks []types.StreamChunk

	if !t.emittedRole {
		t.emittedRole = true
		chunk := t.baseChunk()
		chunk.Choices[0].Delta = types.StreamDelta{Role: "assistant"}
		chunks = append(chunks, chunk)
	}

	switch ev.Kind {
	case parser.EventContent:
		t.totalChars += len(ev.Text)
		t.contentText.WriteString(ev.Text)
		chunk := t.baseChunk()
		chunk.Choices[0].Delta = types.StreamDelta{Content: ev.Text}
		chunks = append(chunks, chunk)

	case parser.EventToolStart:
		idx, seen := t.toolIndex[ev.ToolID]
		if !seen {
			idx = t.nextIndex
			t.nextIndex++
			t.toolIndex[ev.ToolID] = idx
		}
		t.anyToolCall = true
		id := ev.ToolID
		if id == "" {
			id = ids.ToolCallID()
		}
		chunk := t.baseChunk()
		chunk.Choices[0].Delta = types.StreamDelta{ToolCalls: []types.ToolCall{{
			Index: idx,
			ID:    id,
			Type:  "function",
			Function: types.ToolCallFunction{
				Name:      ev.ToolName,
				Arguments: "",
			},
		}}}
		chunks = append(chunks, chunk)

	case parser.EventToolInput:
		idx, seen := t.toolIndex[ev.ToolID]
		if !seen {
			// A fragment without an explicit start is self-starting at a
			// fresh index, matching ToolStart's own lazy allocation.
			idx = t.nextIndex
			t.nextIndex++
			t.toolIndex[ev.ToolID] = idx
		}
		chunk := t.baseChunk()
		chunk.Choices[0].Delta = types.StreamDelta{ToolCalls: []types.ToolCall{{
			Index:    idx,
			Function: types.ToolCallFunction{Arguments: ev.Text},
		}}}
		chunks = append(chunks, chunk)

	case parser.EventToolStop:
		// No chunk: arguments are already complete by the time Stop fires.

	case parser.EventContextUsage:
		percent := ev.ContextUsagePercent
		t.contextUsagePercent = &percent

	case parser.EventUsage:
		credits := ev.Credits
		t.creditsUsed = &credits

	case parser.EventEnd:
		finishReason := "stop"
		if t.anyToolCall {
			finishReason = "tool_calls"
		}
		chunk := t.baseChunk()
		chunk.Choices[0].Delta = types.StreamDelta{}
		chunk.Choices[0].FinishReason = &finishReason
		chunks = append(chunks, chunk)

		if usageChunk, ok := t.usageChunk(); ok {
			chunks = append(chunks, usageChunk)
		}
	}

	return chunks
}

// usageChunk builds the terminal usage chunk when credits or context
// usage were observed during the stream (§4.7 step 7).
func (t *Transcoder) usageChunk() (types.StreamChunk, bool) {
	if t.contextUsagePercent == nil && t.creditsUsed == nil {
		return types.StreamChunk{}, false
	}

	completionTokens := estimateCompletionTokens(t.contentText.String(), t.totalChars)

	promptTokens := 0
	if t.contextUsagePercent != nil {
		maxTok := t.maxInputTok
		if maxTok <= 0 {
			maxTok = models.DefaultMaxInputTokens
		}
		promptTokens = int(*t.contextUsagePercent*float64(maxTok)/100 + 0.5)
	}

	usage := &types.Usage{
		PromptTokens:     promptTokens,
		CompletionTokens: completionTokens,
		TotalTokens:      promptTokens + completionTokens,
		CreditsUsed:      t.creditsUsed,
	}

	chunk := types.StreamChunk{
		ID:      t.completionID,
		Object:  "chat.completion.chunk",
		Created: t.created,
		Model:   t.model,
		Choices: []types.StreamChoice{},
		Usage:   usage,
	}
	return chunk, true
}

// DoneLine is the SSE terminal marker emitted after every chunk.
const DoneLine = "data: [DONE]\n\n"
