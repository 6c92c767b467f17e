package ingest

import (
	"strings"

	"github.com/loom-ai/loom/internal/domain"
)

// splitText splits text into ordered chunks of at most size runes, each chunk
// after the first prefixed with the last overlap runes of the segment before
// it. Splitting is purely positional so repeated runs over the same input
// produce the same chunk set.
func splitText(text string, size, overlap int) ([]string, error) {
	if size <= 0 {
		return nil, domain.ErrInvalidChunkSize
	}
	if overlap < 0 || overlap >= size {
		return nil, domain.ErrInvalidChunkOverlap
	}

	clean := strings.TrimSpace(text)
	if clean == "" {
		return nil, nil
	}

	runes := []rune(clean)
	if len(runes) <= size {
		return []string{clean}, nil
	}

	chunks := make([]string, 0, len(runes)/size+1)
	for start := 0; start < len(runes); start += size {
		from := start - overlap
		if from < 0 {
			from = 0
		}
		end := start + size
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, string(runes[from:end]))
	}
	return chunks, nil
}

// classifySubtype tags a chunk by its dominant content shape so retrieval
// can treat tables and prose differently. Image-derived text is tagged at
// extraction time, not here.
func classifySubtype(content string) domain.ChunkSubtype {
	lines := strings.Split(content, "\n")
	tableLines := 0
	nonEmpty := 0
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		nonEmpty++
		if strings.HasPrefix(line, "|") && strings.HasSuffix(line, "|") {
			tableLines++
		}
	}
	if nonEmpty > 0 && tableLines*2 > nonEmpty {
		return domain.ChunkSubtypeTable
	}
	return domain.ChunkSubtypeText
}
