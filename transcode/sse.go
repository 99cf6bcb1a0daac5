package transcode

import (
	"encoding/json"
	"fmt"

	"kiro-gateway/types"
)

// RenderSSE formats one stream chunk as an SSE "data:" line.
func RenderSSE(chunk types.StreamChunk) ([]byte, error) {
	body, err := json.Marshal(chunk)
	if err != nil {
		return nil, fmt.Errorf("marshal stream chunk: %w", err)
	}
	return append(append([]byte("data: "), body...), []byte("\n\n")...), nil
}
