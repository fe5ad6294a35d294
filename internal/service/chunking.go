package service

import (
	"strings"
	"unicode"
)

// ChunkConfig controls how ingested documents are split for embedding.
type ChunkConfig struct {
	// TargetChars is the preferred chunk length.
	TargetChars int
	// Tolerance is how far before the target a break point may land.
	Tolerance int
	// Overlap is how many trailing characters each chunk shares with the
	// next one.
	Overlap int
	// MaxChunks caps runaway documents. Zero means no cap.
	MaxChunks int
}

// DefaultChunkConfig provides sane defaults for chunking.
func DefaultChunkConfig() ChunkConfig {
	return ChunkConfig{
		TargetChars: 1000,
		Tolerance:   200,
		Overlap:     180,
		MaxChunks:   200,
	}
}

// chunkText splits text into overlapping chunks. Within the tolerance window
// before the target length it prefers a paragraph break, then a sentence end,
// then any whitespace; only when none exists does it cut mid-word. Text at or
// under the target comes back as a single chunk.
func chunkText(text string, cfg ChunkConfig) []string {
	clean := strings.TrimSpace(text)
	if clean == "" {
		return nil
	}
	if cfg.TargetChars <= 0 {
		cfg = DefaultChunkConfig()
	}
	runes := []rune(clean)
	if len(runes) <= cfg.TargetChars {
		return []string{clean}
	}

	chunks := make([]string, 0, 8)
	start := 0
	for start < len(runes) {
		if cfg.MaxChunks > 0 && len(chunks) >= cfg.MaxChunks {
			break
		}

		end := start + cfg.TargetChars
		if end >= len(runes) {
			end = len(runes)
		} else {
			minCut := end - cfg.Tolerance
			if minCut < start+1 {
				minCut = start + 1
			}
			end = findBreak(runes, minCut, end)
		}

		if end <= start {
			break
		}

		chunk := strings.TrimSpace(string(runes[start:end]))
		if chunk != "" {
			chunks = append(chunks, chunk)
		}

		if end >= len(runes) {
			break
		}

		nextStart := end
		if cfg.Overlap > 0 && end-start > cfg.Overlap {
			nextStart = end - cfg.Overlap
		}
		if nextStart <= start {
			nextStart = end
		}
		start = nextStart
	}

	return chunks
}

// findBreak picks the cut position in (minCut, end]. Paragraph breaks win
// over sentence ends, sentence ends over plain whitespace; a hard cut at end
// is the last resort.
func findBreak(runes []rune, minCut, end int) int {
	whitespace := -1
	sentence := -1
	for i := end; i > minCut; i-- {
		r := runes[i-1]
		if r == '\n' && i-2 >= 0 && runes[i-2] == '\n' {
			return i
		}
		if sentence < 0 && isSentenceEnd(runes, i) {
			sentence = i
		}
		if whitespace < 0 && unicode.IsSpace(r) {
			whitespace = i
		}
	}
	if sentence > 0 {
		return sentence
	}
	if whitespace > 0 {
		return whitespace
	}
	return end
}

// isSentenceEnd reports whether position i sits just after sentence-ending
// punctuation followed by whitespace.
func isSentenceEnd(runes []rune, i int) bool {
	if i < 2 || !unicode.IsSpace(runes[i-1]) {
		return false
	}
	switch runes[i-2] {
	case '.', '!', '?':
		return true
	}
	return false
}
