package chunker

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func words(n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = "word"
	}
	return strings.Join(parts, " ")
}

func TestSlidingWindowsCoversWholeText(t *testing.T) {
	text := words(100)
	windows := SlidingWindows(text, 30, 5)
	require.NotEmpty(t, windows)

	// last window must reach the end of the text
	last := windows[len(windows)-1]
	assert.Equal(t, len(text), last.EndChar)

	// first window starts at 0
	assert.Equal(t, 0, windows[0].StartChar)
}

func TestSlidingWindowsOverlap(t *testing.T) {
	text := words(50)
	windows := SlidingWindows(text, 20, 5)
	require.Greater(t, len(windows), 1)

	// consecutive windows should overlap: window[i+1] starts before window[i] ends
	for i := 0; i < len(windows)-1; i++ {
		assert.Less(t, windows[i+1].StartChar, windows[i].EndChar)
	}
}

func TestSlidingWindowsEmptyText(t *testing.T) {
	assert.Nil(t, SlidingWindows("", 100, 10))
	assert.Nil(t, SlidingWindows("   ", 100, 10))
}

func TestSlidingWindowsOverlapClampedBelowWindow(t *testing.T) {
	// overlap >= windowTokens should be clamped rather than looping forever
	windows := SlidingWindows(words(40), 10, 10)
	require.NotEmpty(t, windows)
}

func TestDedupDropsHighOverlapChunks(t *testing.T) {
	chunks := []Chunk{
		{StartChar: 0, EndChar: 100, Text: "a"},
		{StartChar: 10, EndChar: 105, Text: "b"}, // >80% overlap with the first
		{StartChar: 200, EndChar: 300, Text: "c"},
	}
	deduped := Dedup(chunks)
	require.Len(t, deduped, 2)
	assert.Equal(t, 0, deduped[0].StartChar)
	assert.Equal(t, 200, deduped[1].StartChar)
}

func TestDedupKeepsDistinctChunks(t *testing.T) {
	chunks := []Chunk{
		{StartChar: 0, EndChar: 50, Text: "a"},
		{StartChar: 60, EndChar: 110, Text: "b"},
	}
	assert.Len(t, Dedup(chunks), 2)
}

func TestValidateWindowTokens(t *testing.T) {
	assert.NoError(t, ValidateWindowTokens(1800, 200))
	assert.Error(t, ValidateWindowTokens(50, 10))
	assert.Error(t, ValidateWindowTokens(1800, 1800))
	assert.Error(t, ValidateWindowTokens(1800, -1))
}
