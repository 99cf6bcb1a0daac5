package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func kinds(events []Event) []EventKind {
	out := make([]EventKind, len(events))
	for i, e := range events {
		out[i] = e.Kind
	}
	return out
}

func TestFindMatchingBrace_Simple(t *testing.T) {
	text := `{"a":1}rest`
	assert.Equal(t, 6, findMatchingBrace(text, 0))
}

func TestFindMatchingBrace_NestedAndEscapedQuotes(t *testing.T) {
	text := `{"a":"he said \"hi\"","b":{"c":1}}tail`
	end := findMatchingBrace(text, 0)
	require.NotEqual(t, -1, end)
	assert.Equal(t, byte('}'), text[end])
	assert.Equal(t, "tail", text[end+1:])
}

func TestFindMatchingBrace_Incomplete(t *testing.T) {
	text := `{"a":{"b":1}`
	assert.Equal(t, -1, findMatchingBrace(text, 0))
}

func TestParser_ContentEvent(t *testing.T) {
	p := New()
	events := p.Feed([]byte(`{"content":"hello"}`))
	require.Len(t, events, 1)
	assert.Equal(t, EventContent, events[0].Kind)
	assert.Equal(t, "hello", events[0].Text)
}

func TestParser_AdjacentDuplicateContentDropped(t *testing.T) {
	p := New()
	events := p.Feed([]byte(`{"content":"same"}{"content":"same"}`))
	require.Len(t, events, 1)
}

func TestParser_NonAdjacentDuplicateContentKept(t *testing.T) {
	p := New()
	events := p.Feed([]byte(`{"content":"same"}{"content":"other"}{"content":"same"}`))
	require.Len(t, events, 3)
	assert.Equal(t, "same", events[0].Text)
	assert.Equal(t, "other", events[1].Text)
	assert.Equal(t, "same", events[2].Text)
}

func TestParser_PartialChunkAcrossFeeds(t *testing.T) {
	p := New()
	events := p.Feed([]byte(`{"cont`))
	assert.Empty(t, events)
	events = p.Feed([]byte(`ent":"resumed"}`))
	require.Len(t, events, 1)
	assert.Equal(t, "resumed", events[0].Text)
}

func TestParser_ToolUseFragmentsConcatenateByID(t *testing.T) {
	p := New()
	var events []Event
	events = append(events, p.Feed([]byte(`{"toolUseId":"t1","name":"search","input":"{\"q"}`))...)
	events = append(events, p.Feed([]byte(`{"toolUseId":"t1","input":"\":\"cats\"}"}`))...)
	events = append(events, p.Feed([]byte(`{"toolUseId":"t1","stop":true}`))...)

	require.Equal(t, []EventKind{EventToolStart, EventToolInput, EventToolInput, EventToolStop}, kinds(events))
	assert.Equal(t, "search", events[0].ToolName)
	assert.Equal(t, `{"q`, events[1].Text)
	assert.Equal(t, `":"cats"}`, events[2].Text)
}

func TestParser_ContextUsageAndCreditsEvents(t *testing.T) {
	p := New()
	events := p.Feed([]byte(`{"contextUsagePercentage":42.5}{"creditsUsed":0.5}`))
	require.Len(t, events, 2)
	assert.Equal(t, EventContextUsage, events[0].Kind)
	assert.InDelta(t, 42.5, events[0].ContextUsagePercent, 0.001)
	assert.Equal(t, EventUsage, events[1].Kind)
	assert.InDelta(t, 0.5, events[1].Credits, 0.001)
}

func TestParser_DuplicateContentSeparatedByOtherEventKept(t *testing.T) {
	p := New()
	events := p.Feed([]byte(`{"content":"same"}{"toolUseId":"t1","name":"search"}{"content":"same"}`))
	var contents []Event
	for _, e := range events {
		if e.Kind == EventContent {
			contents = append(contents, e)
		}
	}
	require.Len(t, contents, 2, "an intervening ToolStart must not let identical Content events collapse")
	assert.Equal(t, "same", contents[0].Text)
	assert.Equal(t, "same", contents[1].Text)
}

func TestParser_EndEmitsTerminalEvent(t *testing.T) {
	p := New()
	p.Feed([]byte(`{"content":"hi"}`))
	events := p.End()
	require.NotEmpty(t, events)
	assert.Equal(t, EventEnd, events[len(events)-1].Kind)
}

func TestExtractBracketToolCalls_RecoversSyntheticTriple(t *testing.T) {
	text := `Sure, let me check that. [Called get_weather with args: {"city":"nyc"}] Done.`
	cleaned, calls := extractBracketToolCalls(text)
	require.Len(t, calls, 1)
	assert.Equal(t, "get_weather", calls[0].name)
	assert.Equal(t, `{"city":"nyc"}`, calls[0].rawInput)
	assert.Equal(t, "Sure, let me check that.  Done.", cleaned)
}

func TestParser_EndDedupesBracketCallAgainstStructuredOne(t *testing.T) {
	p := New()
	p.Feed([]byte(`{"toolUseId":"t1","name":"get_weather","input":"{\"city\":\"nyc\"}"}`))
	p.Feed([]byte(`{"toolUseId":"t1","stop":true}`))
	p.Feed([]byte(`{"content":"[Called get_weather: {\"city\":\"nyc\"}]"}`))

	events := p.End()
	for _, e := range events {
		assert.NotEqual(t, EventToolStart, e.Kind, "bracket-derived duplicate of a structured tool use must be dropped")
	}
}

func TestParser_EndRecoversBracketCallNotSeenStructurally(t *testing.T) {
	p := New()
	p.Feed([]byte(`{"content":"[Called lookup: {\"id\":7}]"}`))

	events := p.End()
	require.Equal(t, []EventKind{EventToolStart, EventToolInput, EventToolStop, EventEnd}, kinds(events))
	assert.Equal(t, "lookup", events[0].ToolName)
}

func TestParser_EndAssignsDistinctIDsToMultipleBracketCalls(t *testing.T) {
	p := New()
	p.Feed([]byte(`{"content":"[Called lookup: {\"id\":7}] and [Called lookup: {\"id\":8}]"}`))

	events := p.End()
	var starts []Event
	for _, e := range events {
		if e.Kind == EventToolStart {
			starts = append(starts, e)
		}
	}
	require.Len(t, starts, 2)
	assert.NotEmpty(t, starts[0].ToolID)
	assert.NotEmpty(t, starts[1].ToolID)
	assert.NotEqual(t, starts[0].ToolID, starts[1].ToolID, "distinct bracket-style calls must not collide on tool_call index")
}
