package rag

import (
	"errors"
	"fmt"
)

// ErrChunkConfig reports an invalid chunk size / overlap combination.
var ErrChunkConfig = errors.New("invalid chunking configuration")

// Span is one chunking window over the source text. Start and End are rune
// offsets, End exclusive.
type Span struct {
	Text  string
	Start int
	End   int
}

// ChunkText splits text into windows of size runes where consecutive windows
// overlap by overlap runes. The final window may be shorter. Every rune of
// the input appears in at least one window, and identical input and
// configuration always produce identical output.
func ChunkText(text string, size, overlap int) ([]Span, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: chunk size must be positive, got %d", ErrChunkConfig, size)
	}
	if overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("%w: overlap must satisfy 0 <= overlap < size, got overlap=%d size=%d",
			ErrChunkConfig, overlap, size)
	}

	runes := []rune(text)
	n := len(runes)
	if n == 0 {
		return nil, nil
	}

	step := size - overlap
	var spans []Span
	for start := 0; ; start += step {
		end := start + size
		if end >= n {
			spans = append(spans, Span{Text: string(runes[start:n]), Start: start, End: n})
			break
		}
		spans = append(spans, Span{Text: string(runes[start:end]), Start: start, End: end})
	}
	return spans, nil
}
