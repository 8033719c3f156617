package extract

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSynthesizePagesSplitsAtFixedSize(t *testing.T) {
	text := strings.Repeat("a", pseudoPageChars*2+5)
	pages := synthesizePages(text)
	require.Len(t, pages, 3)
	assert.Equal(t, Page{Number: 1, StartChar: 0, EndChar: pseudoPageChars}, pages[0])
	assert.Equal(t, Page{Number: 2, StartChar: pseudoPageChars, EndChar: pseudoPageChars * 2}, pages[1])
	assert.Equal(t, Page{Number: 3, StartChar: pseudoPageChars * 2, EndChar: pseudoPageChars*2 + 5}, pages[2])
}

func TestSynthesizePagesShortTextIsOnePage(t *testing.T) {
	pages := synthesizePages("hello world")
	require.Len(t, pages, 1)
	assert.Equal(t, 1, pages[0].Number)
	assert.Equal(t, 0, pages[0].StartChar)
	assert.Equal(t, 11, pages[0].EndChar)
}

func TestSynthesizePagesEmptyTextStillHasOnePage(t *testing.T) {
	pages := synthesizePages("")
	require.Len(t, pages, 1)
	assert.Equal(t, 1, pages[0].Number)
}

func TestExtractTextFileHasNonEmptyPages(t *testing.T) {
	doc, err := extractText(writeTemp(t, "hello world, this is a plain text document."))
	require.NoError(t, err)
	require.NotEmpty(t, doc.Pages)
	assert.Equal(t, 1, doc.PageAt(0))
}

func writeTemp(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "doc.txt")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}
