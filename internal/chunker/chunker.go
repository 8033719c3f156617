package chunker

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/ragline/ragline/internal/extract"
	"github.com/ragline/ragline/internal/ragerr"
	"github.com/ragline/ragline/internal/remote"
)

// Proposed is one chunk as proposed by the LLM for a single window,
// offsets relative to that window's text. Text is an optional fallback:
// when the model omits or botches start_char/end_char, Split locates
// this substring in the window instead of discarding the proposal.
type Proposed struct {
	StartChar    int    `json:"start_char"`
	EndChar      int    `json:"end_char"`
	Text         string `json:"text,omitempty"`
	Title        string `json:"title"`
	Section      string `json:"section"`
	Summary      string `json:"summary"`
	WhyThisChunk string `json:"why_this_chunk"`
}

type proposedSet struct {
	Chunks []Proposed `json:"chunks"`
}

// Chunk is a finished, absolute-offset chunk ready to be embedded and
// stored, before a ChunkID/DocID/scope has been stamped onto it by the
// caller.
type Chunk struct {
	StartChar    int
	EndChar      int
	Title        string
	Section      string
	Summary      string
	WhyThisChunk string
	Text         string
	Pages        []int
	Tokens       int
}

const systemPrompt = `You split a window of a larger document into coherent chunks for retrieval.
Respond with a single JSON object: {"chunks": [{"start_char": int, "end_char": int, "title": string, "section": string, "summary": string, "why_this_chunk": string}, ...]}.
Offsets are character offsets into the window text you were given, start_char inclusive and end_char exclusive.
If you cannot determine exact offsets, include the chunk's exact "text" instead and omit start_char/end_char.
Prefer chunks of a few paragraphs. Every chunk needs a one-sentence summary and a one-sentence note on why it stands on its own.`

// Split runs the window through the chat LLM and returns chunks with
// offsets rebased onto the full document. A proposal whose offsets fall
// outside the window is not trimmed: it falls back to locating its text,
// and is skipped if that fails too.
func Split(ctx context.Context, chat remote.Chat, counter *TokenCounter, doc extract.Document, w Window) ([]Chunk, error) {
	raw, err := chat.CompleteJSON(ctx, systemPrompt, w.Text)
	if err != nil {
		return nil, err
	}

	var parsed proposedSet
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return nil, ragerr.Wrap(ragerr.MalformedUpstream, "chunker: parse llm chunk response", err)
	}

	windowLen := len(w.Text)
	chunks := make([]Chunk, 0, len(parsed.Chunks))
	for _, p := range parsed.Chunks {
		startChar, endChar, ok := resolveOffsets(p, w.Text, windowLen)
		if !ok {
			continue // neither valid offsets nor a locatable text fallback, skip rather than fail the whole window
		}
		text := w.Text[startChar:endChar]
		absStart := w.StartChar + startChar
		absEnd := w.StartChar + endChar

		chunks = append(chunks, Chunk{
			StartChar:    absStart,
			EndChar:      absEnd,
			Title:        p.Title,
			Section:      p.Section,
			Summary:      p.Summary,
			WhyThisChunk: p.WhyThisChunk,
			Text:         text,
			Pages:        pagesInRange(doc, absStart, absEnd),
			Tokens:       counter.Count(text),
		})
	}
	return chunks, nil
}

// resolveOffsets validates p's offsets against windowText, falling back
// to locating p.Text as a substring when the offsets are missing or
// invalid, per spec.md §4.5 step 4.
func resolveOffsets(p Proposed, windowText string, windowLen int) (start, end int, ok bool) {
	if p.StartChar >= 0 && p.EndChar <= windowLen && p.StartChar < p.EndChar {
		return p.StartChar, p.EndChar, true
	}
	if p.Text == "" {
		return 0, 0, false
	}
	idx := strings.Index(windowText, p.Text)
	if idx < 0 {
		return 0, 0, false
	}
	return idx, idx + len(p.Text), true
}

func pagesInRange(doc extract.Document, start, end int) []int {
	if len(doc.Pages) == 0 {
		return nil
	}
	seen := map[int]bool{}
	var pages []int
	for pos := start; pos < end; pos++ {
		p := doc.PageAt(pos)
		if p == 0 || seen[p] {
			continue
		}
		seen[p] = true
		pages = append(pages, p)
	}
	sort.Ints(pages)
	return pages
}

// Dedup drops chunks whose [start,end) span overlaps an
// already-kept chunk by more than 80%, the overlap spec.md §4.5
// expects between chunks proposed from neighboring, overlapping
// windows. Chunks are processed in document order so the earlier
// window's chunk wins.
func Dedup(chunks []Chunk) []Chunk {
	sort.Slice(chunks, func(i, j int) bool { return chunks[i].StartChar < chunks[j].StartChar })

	var kept []Chunk
	for _, c := range chunks {
		duplicate := false
		for _, k := range kept {
			if overlapFraction(c, k) > 0.8 {
				duplicate = true
				break
			}
		}
		if !duplicate {
			kept = append(kept, c)
		}
	}
	return kept
}

func overlapFraction(a, b Chunk) float64 {
	start := max(a.StartChar, b.StartChar)
	end := min(a.EndChar, b.EndChar)
	if end <= start {
		return 0
	}
	overlap := float64(end - start)
	shorter := float64(min(a.EndChar-a.StartChar, b.EndChar-b.StartChar))
	if shorter <= 0 {
		return 0
	}
	return overlap / shorter
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// ValidateWindowTokens rejects a window smaller than 100 tokens and an
// overlap outside [0, windowTokens).
func ValidateWindowTokens(windowTokens, overlapTokens int) error {
	if windowTokens < 100 {
		return fmt.Errorf("chunker: window_tokens must be >= 100, got %d", windowTokens)
	}
	if overlapTokens < 0 || overlapTokens >= windowTokens {
		return fmt.Errorf("chunker: overlap_tokens must be in [0, window_tokens)")
	}
	return nil
}
