package parser

import (
	"crypto/sha256"
	"encoding/json"
	"strings"
)

// toolCallState accumulates one in-flight tool call's input fragments
// until its ToolStop arrives.
type toolCallState struct {
	name       string
	inputParts strings.Builder
}

// Parser recovers typed events from the upstream's byte-stream framing.
// It is not safe for concurrent use; one Parser serves one request.
type Parser struct {
	buffer string
	cursor int

	lastContentHash [32]byte
	hasLastContent  bool

	openToolCalls map[string]*toolCallState

	plainText strings.Builder // full recovered Content text, for the post-End bracket-call scan
}

// New returns a Parser ready to Feed chunks.
func New() *Parser {
	return &Parser{openToolCalls: make(map[string]*toolCallState)}
}

type rawPayload struct {
	Content                *string          `json:"content"`
	ToolUseID               string           `json:"toolUseId"`
	Name                    string           `json:"name"`
	Input                   json.RawMessage  `json:"input"`
	Stop                    *bool            `json:"stop"`
	ContextUsagePercentage  *float64         `json:"contextUsagePercentage"`
	CreditsUsed             *float64         `json:"creditsUsed"`
}

// Feed appends a newly received byte chunk and returns every event that
// could be fully recovered from the buffer so far. Partial objects at the
// buffer's end are retained for the next call.
func (p *Parser) Feed(chunk []byte) []Event {
	p.buffer += string(chunk)

	var events []Event
	for {
		if payload, consumed, ok := tryEventStreamFrame([]byte(p.buffer[p.cursor:])); ok {
			events = append(events, p.classify(string(payload))...)
			p.buffer = p.buffer[p.cursor+consumed:]
			p.cursor = 0
			continue
		}

		idx := strings.IndexByte(p.buffer[p.cursor:], '{')
		if idx == -1 {
			break
		}
		start := p.cursor + idx
		end := findMatchingBrace(p.buffer, start)
		if end == -1 {
			// Incomplete object: keep from start onward, wait for more bytes.
			if start > 0 {
				p.buffer = p.buffer[start:]
				p.cursor = 0
			}
			break
		}

		obj := p.buffer[start : end+1]
		p.cursor = 0
		p.buffer = p.buffer[end+1:]

		events = append(events, p.classify(obj)...)
	}
	return events
}

// classify parses one recovered JSON object and emits zero or more
// events for it.
func (p *Parser) classify(obj string) []Event {
	var raw rawPayload
	if err := json.Unmarshal([]byte(obj), &raw); err != nil {
		return nil
	}

	var out []Event

	switch {
	case raw.Content != nil:
		text := *raw.Content
		hash := sha256.Sum256([]byte(text))
		if p.hasLastContent && hash == p.lastContentHash {
			break
		}
		p.lastContentHash = hash
		p.hasLastContent = true
		p.plainText.WriteString(text)
		out = append(out, Event{Kind: EventContent, Text: text})

	case raw.ToolUseID != "":
		p.hasLastContent = false
		if _, seen := p.openToolCalls[raw.ToolUseID]; !seen {
			p.openToolCalls[raw.ToolUseID] = &toolCallState{name: raw.Name}
			out = append(out, Event{Kind: EventToolStart, ToolID: raw.ToolUseID, ToolName: raw.Name})
		}
		if len(raw.Input) > 0 {
			frag := unwrapInputFragment(raw.Input)
			p.openToolCalls[raw.ToolUseID].inputParts.WriteString(frag)
			out = append(out, Event{Kind: EventToolInput, ToolID: raw.ToolUseID, Text: frag})
		}
		if raw.Stop != nil && *raw.Stop {
			out = append(out, Event{Kind: EventToolStop, ToolID: raw.ToolUseID})
		}

	case raw.ContextUsagePercentage != nil:
		p.hasLastContent = false
		out = append(out, Event{Kind: EventContextUsage, ContextUsagePercent: *raw.ContextUsagePercentage})

	case raw.CreditsUsed != nil:
		p.hasLastContent = false
		out = append(out, Event{Kind: EventUsage, Credits: *raw.CreditsUsed})
	}

	return out
}

// unwrapInputFragment returns input as a literal JSON-fragment string:
// if it was sent as a JSON string (the common case for streamed partial
// JSON), its decoded text is returned; otherwise the raw bytes are
// returned verbatim.
func unwrapInputFragment(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

// End signals the stream closed cleanly. It runs the post-hoc
// bracket-style tool call extraction over the accumulated plain text and
// returns the trailing events, in order: any synthesized tool-call
// triples (deduplicated against ones already seen structurally), then
// the terminal End event.
//
// Bracket-style calls are only recognizable once their JSON argument
// object is fully buffered, by which point any Content chunks carrying
// that literal text may already have reached a streaming client; this
// parser does not retract them. CleanedContent is offered for callers
// (the non-stream collector) that still have the chance to use the
// edited text instead of the raw accumulation.
func (p *Parser) End() []Event {
	_, calls := extractBracketToolCalls(p.plainText.String())

	seen := make(map[string]bool, len(p.openToolCalls))
	for _, st := range p.openToolCalls {
		seen[dedupeKey(st.name, st.inputParts.String())] = true
	}

	var out []Event
	for _, call := range calls {
		key := dedupeKey(call.name, call.canonicalInput)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out,
			Event{Kind: EventToolStart, ToolID: call.id, ToolName: call.name},
			Event{Kind: EventToolInput, ToolID: call.id, Text: call.rawInput},
			Event{Kind: EventToolStop, ToolID: call.id},
		)
	}

	out = append(out, Event{Kind: EventEnd})
	return out
}

// CleanedContent returns the full accumulated plain text with every
// recognized bracket-style tool call removed, for callers that build
// their final content after the stream has ended.
func (p *Parser) CleanedContent() string {
	cleaned, _ := extractBracketToolCalls(p.plainText.String())
	return cleaned
}
