package chunker

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolveOffsetsUsesValidOffsets(t *testing.T) {
	start, end, ok := resolveOffsets(Proposed{StartChar: 2, EndChar: 7}, "0123456789", 10)
	assert.True(t, ok)
	assert.Equal(t, 2, start)
	assert.Equal(t, 7, end)
}

func TestResolveOffsetsFallsBackToText(t *testing.T) {
	start, end, ok := resolveOffsets(Proposed{StartChar: -1, Text: "jumps over"}, "the quick fox jumps over the lazy dog", 38)
	assert.True(t, ok)
	assert.Equal(t, "jumps over", "the quick fox jumps over the lazy dog"[start:end])
}

func TestResolveOffsetsSkipsWhenNeitherWorks(t *testing.T) {
	_, _, ok := resolveOffsets(Proposed{StartChar: -1, Text: "not present anywhere"}, "the quick fox", 13)
	assert.False(t, ok)
}

func TestResolveOffsetsSkipsOutOfBoundsOffsets(t *testing.T) {
	_, _, ok := resolveOffsets(Proposed{StartChar: 5, EndChar: 50}, "short text", 10)
	assert.False(t, ok)
}
