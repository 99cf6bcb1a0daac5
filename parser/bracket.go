package parser

import (
	"encoding/json"
	"regexp"
	"strings"

	"kiro-gateway/ids"
)

type bracketCall struct {
	id             string
	name           string
	rawInput       string // the JSON fragment exactly as it appeared
	canonicalInput string // for dedup comparison against structured tool uses
}

var bracketCallHead = regexp.MustCompile(`\[Called ([A-Za-z0-9_\-]+)(?: with args)?: `)

// extractBracketToolCalls finds every `[Called <name>(?: with args)?:
// {…}]` inline tool call in text, brace-balancing the embedded JSON
// object with findMatchingBrace, and returns the text with every
// matched span removed alongside the recovered calls in order.
func extractBracketToolCalls(text string) (string, []bracketCall) {
	var calls []bracketCall
	var out strings.Builder

	pos := 0
	for pos < len(text) {
		loc := bracketCallHead.FindStringSubmatchIndex(text[pos:])
		if loc == nil {
			out.WriteString(text[pos:])
			break
		}

		headStart := pos + loc[0]
		headEnd := pos + loc[1]
		name := text[pos+loc[2] : pos+loc[3]]

		braceEnd := findMatchingBrace(text, headEnd)
		if braceEnd == -1 {
			// No balanced object follows; not a real match, copy through
			// the head literally and keep scanning after it.
			out.WriteString(text[pos:headEnd])
			pos = headEnd
			continue
		}

		closeIdx := braceEnd + 1
		if closeIdx >= len(text) || text[closeIdx] != ']' {
			out.WriteString(text[pos:headEnd])
			pos = headEnd
			continue
		}

		rawInput := text[headEnd : braceEnd+1]
		out.WriteString(text[pos:headStart])
		calls = append(calls, bracketCall{
			id:             ids.ToolCallID(),
			name:           name,
			rawInput:       rawInput,
			canonicalInput: canonicalizeJSON(rawInput),
		})
		pos = closeIdx + 1
	}

	return out.String(), calls
}

// canonicalizeJSON re-serializes a JSON object so two structurally-equal
// objects compare equal regardless of source key order or whitespace,
// for deduplicate_tool_calls-style comparisons. encoding/json always
// marshals map keys in sorted order, so a decode/re-encode round trip is
// sufficient canonicalization at every nesting level.
func canonicalizeJSON(raw string) string {
	var v interface{}
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return raw
	}
	b, err := json.Marshal(v)
	if err != nil {
		return raw
	}
	return string(b)
}

// dedupeKey builds the (name, canonical(input)) comparison key
// deduplicate_tool_calls uses to collapse a structured tool use and a
// bracket-style one that describe the same call.
func dedupeKey(name, input string) string {
	return name + "\x00" + canonicalizeJSON(input)
}
