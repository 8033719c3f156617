// Package chunker turns extracted document text into the semantic
// chunks spec.md §4.5 calls for: a token-bounded sliding window over
// the raw text, each window handed to the chat LLM to split into
// titled, summarized chunks, with overlapping windows' chunks
// deduplicated afterward.
//
// The sliding-window walk is adapted directly from the teacher's
// internal/pipeline.CreateSubChunks (same word-token regex, same
// step = windowTokens - overlapTokens walk), so window membership is
// decided by those regex word tokens. tiktoken-go is wired in only for
// the token counts reported in chunk metrics, since the regex tokens are
// only an approximation of what the remote LLM's tokenizer will actually
// see.
package chunker

import (
	"regexp"

	"github.com/pkoukk/tiktoken-go"
)

var wordToken = regexp.MustCompile(`\w+(?:[-_]\w+)*|\S`)

// Window is one slice of the document text to hand to the chunking
// LLM call, bounded to roughly WindowTokens tokens of context.
type Window struct {
	Text      string
	StartChar int
	EndChar   int
}

// TokenCounter counts tokens the way the configured chat model would,
// used to report chunk-level token counts. Window sizing does not use it.
type TokenCounter struct {
	enc *tiktoken.Tiktoken
}

// NewTokenCounter loads the cl100k_base encoding, the right family for
// the OpenAI-API-compatible chat models this service talks to.
func NewTokenCounter() (*TokenCounter, error) {
	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		return nil, err
	}
	return &TokenCounter{enc: enc}, nil
}

// Count returns the number of model tokens in text.
func (t *TokenCounter) Count(text string) int {
	return len(t.enc.Encode(text, nil, nil))
}

// SlidingWindows walks text in windows of approximately windowTokens
// word-tokens, stepping by windowTokens-overlapTokens so consecutive
// windows share a tail of overlapTokens tokens. Window boundaries are
// word-token boundaries, matching the teacher's CreateSubChunks.
func SlidingWindows(text string, windowTokens, overlapTokens int) []Window {
	if windowTokens <= 0 {
		windowTokens = 1800
	}
	if overlapTokens >= windowTokens {
		overlapTokens = windowTokens / 10
	}

	indices := wordToken.FindAllStringIndex(text, -1)
	if len(indices) == 0 {
		return nil
	}

	step := windowTokens - overlapTokens
	total := len(indices)

	var windows []Window
	for i := 0; i < total; i += step {
		end := i + windowTokens
		if end > total {
			end = total
		}

		startByte := indices[i][0]
		endByte := indices[end-1][1]

		windows = append(windows, Window{
			Text:      text[startByte:endByte],
			StartChar: startByte,
			EndChar:   endByte,
		})

		if end == total {
			break
		}
	}
	return windows
}
