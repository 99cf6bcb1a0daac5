package debugdump

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDumper_DisabledIsNoOp(t *testing.T) {
	var d *Dumper
	assert.NotPanics(t, func() {
		d.PrepareNewRequest()
		d.LogRequestBody([]byte("x"))
		d.LogRawChunk([]byte("y"))
	})
}

func TestDumper_WritesAndAppends(t *testing.T) {
	dir := t.TempDir()
	d := New(dir, nil)
	require.NotNil(t, d)

	d.PrepareNewRequest()
	d.LogRequestBody([]byte(`{"a":1}`))
	d.LogRawChunk([]byte("chunk1"))
	d.LogRawChunk([]byte("chunk2"))

	body, err := os.ReadFile(filepath.Join(dir, "request_body.json"))
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, string(body))

	raw, err := os.ReadFile(filepath.Join(dir, "response_stream_raw.txt"))
	require.NoError(t, err)
	assert.Equal(t, "chunk1\nchunk2\n", string(raw))
}

func TestDumper_PrepareNewRequestTruncatesPriorAppends(t *testing.T) {
	dir := t.TempDir()
	d := New(dir, nil)

	d.LogRawChunk([]byte("stale"))
	d.PrepareNewRequest()
	_, err := os.ReadFile(filepath.Join(dir, "response_stream_raw.txt"))
	assert.True(t, os.IsNotExist(err))
}
