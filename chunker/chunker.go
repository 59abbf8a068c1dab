package chunker

import (
	"strings"
	"unicode"
)

const (
	// DefaultTargetWords is the default window size in words.
	DefaultTargetWords = 512
	// DefaultOverlapWords is the default overlap between consecutive windows.
	DefaultOverlapWords = 50
)

// Record is one chunk produced by the sliding window, with word offsets into
// the normalized token stream.
type Record struct {
	Text      string
	WordCount int
	StartWord int
	EndWord   int // exclusive
}

// Chunk splits text into overlapping fixed-size word windows.
//
// The algorithm is a greedy sliding window over whitespace tokens: each window
// holds up to targetWords words and the window start advances by
// (targetWords - overlapWords) per step. A trailing partial window is kept if
// non-empty. Empty or whitespace-only input yields zero chunks; text shorter
// than targetWords yields exactly one chunk.
//
// Control characters are stripped before windowing because the store may
// reject them. Identical (text, parameters) always produce identical output,
// which is what makes re-ingestion idempotent.
func Chunk(text string, targetWords, overlapWords int) []Record {
	if targetWords <= 0 {
		targetWords = DefaultTargetWords
	}
	if overlapWords < 0 {
		overlapWords = 0
	}
	// Overlap must leave the window a positive step.
	if overlapWords >= targetWords {
		overlapWords = targetWords - 1
	}

	words := strings.Fields(stripControl(text))
	if len(words) == 0 {
		return nil
	}

	step := targetWords - overlapWords
	records := make([]Record, 0, (len(words)+step-1)/step)

	for start := 0; start < len(words); start += step {
		end := start + targetWords
		if end > len(words) {
			end = len(words)
		}

		records = append(records, Record{
			Text:      strings.Join(words[start:end], " "),
			WordCount: end - start,
			StartWord: start,
			EndWord:   end,
		})

		if end == len(words) {
			break
		}
	}

	return records
}

// HasWords reports whether Chunk would produce at least one chunk for text,
// without tokenizing it. True iff text contains a rune that is neither
// whitespace nor a control character.
func HasWords(text string) bool {
	for _, r := range text {
		if !unicode.IsSpace(r) && !unicode.IsControl(r) {
			return true
		}
	}
	return false
}

// stripControl removes control characters, replacing them with spaces so that
// adjacent words do not merge. Tabs and newlines count as whitespace already
// but NUL and friends would otherwise survive strings.Fields.
func stripControl(text string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return ' '
		}
		return r
	}, text)
}
