package transcode

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// tokenEstimator counts completion tokens for the terminal usage chunk.
// A real cl100k_base encoding is preferred; the encoder is loaded once
// per process and falls back to a char/4 heuristic if it cannot be
// loaded at all.
var (
	encodingOnce sync.Once
	encoding     *tiktoken.Tiktoken
)

func loadEncoding() *tiktoken.Tiktoken {
	encodingOnce.Do(func() {
		enc, err := tiktoken.GetEncoding("cl100k_base")
		if err == nil {
			encoding = enc
		}
	})
	return encoding
}

// estimateCompletionTokens counts text's tokens with cl100k_base,
// falling back to the char/4 heuristic when the encoder is unavailable.
func estimateCompletionTokens(text string, totalChars int) int {
	if enc := loadEncoding(); enc != nil {
		return len(enc.Encode(text, nil, nil))
	}
	return totalChars / 4
}
