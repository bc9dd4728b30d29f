package processors

import (
	"strings"

	"github.com/docetl-project/docetl/internal/domain"
)

// LineSplitter emits one chunk per non-empty, trimmed line of text.
type LineSplitter struct{}

func (LineSplitter) Process(text string, parentMeta domain.Metadata, _ map[string]any) ([]*domain.Chunk, error) {
	lines := strings.Split(text, "\n")

	start := 1
	if parentMeta.LineNum != nil {
		start = *parentMeta.LineNum
	}

	var out []*domain.Chunk
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		n := start + len(out)
		meta := parentMeta.WithLineNum(n).WithChunkType(domain.ChunkTypeLine)
		out = append(out, newChunk(trimmed, meta))
	}
	return out, nil
}
