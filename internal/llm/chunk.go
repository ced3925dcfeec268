package llm

import "strings"

// DefaultChunkChars is the maximum chunk length handed to a single
// summarization prompt. A rough character budget stands in for exact token
// counting.
const DefaultChunkChars = 3000

// ChunkText splits text into chunks of at most maxChars characters,
// preferring to break at the last space before the limit so words stay
// intact. Chunks are trimmed; runs of whitespace at a split point never
// produce an empty chunk. Pure function of its input.
func ChunkText(text string, maxChars int) []string {
	if maxChars <= 0 {
		maxChars = DefaultChunkChars
	}

	var chunks []string
	start := 0
	for start < len(text) {
		end := start + maxChars
		if end >= len(text) {
			end = len(text)
		} else if i := strings.LastIndex(text[start:end], " "); i > 0 {
			end = start + i
		}

		chunk := strings.TrimSpace(text[start:end])
		if chunk != "" {
			chunks = append(chunks, chunk)
		}
		if end == start {
			break
		}
		start = end
	}
	return chunks
}
