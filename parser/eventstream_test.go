package parser

import (
	"bytes"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws/protocol/eventstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encodeFrame(t *testing.T, payload string) []byte {
	t.Helper()
	var buf bytes.Buffer
	enc := eventstream.NewEncoder()
	require.NoError(t, enc.Encode(&buf, eventstream.Message{Payload: []byte(payload)}))
	return buf.Bytes()
}

func TestTryEventStreamFrame_DecodesValidFrame(t *testing.T) {
	frame := encodeFrame(t, `{"content":"hi"}`)
	payload, consumed, ok := tryEventStreamFrame(frame)
	require.True(t, ok)
	assert.Equal(t, len(frame), consumed)
	assert.Equal(t, `{"content":"hi"}`, string(payload))
}

func TestTryEventStreamFrame_PlainJSONTextIsRejected(t *testing.T) {
	// A leading '{' byte makes the first 4 bytes interpretable as an
	// enormous big-endian length, which the plausibility bound rejects,
	// letting the caller fall back to scanning as text.
	_, _, ok := tryEventStreamFrame([]byte(`{"content":"hi"}`))
	assert.False(t, ok)
}

func TestTryEventStreamFrame_IncompleteFrameWaitsForMore(t *testing.T) {
	frame := encodeFrame(t, `{"content":"hello world"}`)
	_, _, ok := tryEventStreamFrame(frame[:len(frame)-3])
	assert.False(t, ok)
}

func TestParser_DecodesBinaryFramedContent(t *testing.T) {
	p := New()
	frame := encodeFrame(t, `{"content":"framed"}`)
	events := p.Feed(frame)
	require.Len(t, events, 1)
	assert.Equal(t, EventContent, events[0].Kind)
	assert.Equal(t, "framed", events[0].Text)
}

func TestParser_FallsBackToTextScanWhenNotFramed(t *testing.T) {
	p := New()
	events := p.Feed([]byte(`{"content":"plain"}`))
	require.Len(t, events, 1)
	assert.Equal(t, "plain", events[0].Text)
}
