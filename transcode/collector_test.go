package transcode

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kiro-gateway/types"
)

func chunkWithContent(text string) types.StreamChunk {
	return types.StreamChunk{
		ID:      "chatcmpl-1",
		Created: 1000,
		Model:   "m",
		Choices: []types.StreamChoice{{Delta: types.StreamDelta{Content: text}}},
	}
}

func TestCollect_UsesRawConcatenationWhenNotCleaned(t *testing.T) {
	resp, err := Collect([]types.StreamChunk{chunkWithContent("hello")}, "", false)
	require.NoError(t, err)
	assert.Equal(t, "hello", resp.Choices[0].Message.Content)
}

func TestCollect_EmptyCleanedContentOverridesRawWhenCleaned(t *testing.T) {
	// A response consisting of nothing but a bracket-style tool call cleans
	// down to "" — that must still override the raw bracket-literal text.
	resp, err := Collect([]types.StreamChunk{chunkWithContent(`[Called lookup: {"id":1}]`)}, "", true)
	require.NoError(t, err)
	assert.Equal(t, "", resp.Choices[0].Message.Content)
}

func TestCollect_NonEmptyCleanedContentOverridesRaw(t *testing.T) {
	resp, err := Collect([]types.StreamChunk{chunkWithContent(`before [Called lookup: {"id":1}] after`)}, "before  after", true)
	require.NoError(t, err)
	assert.Equal(t, "before  after", resp.Choices[0].Message.Content)
}
