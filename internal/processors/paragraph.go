package processors

import (
	"regexp"
	"strings"

	"github.com/docetl-project/docetl/internal/domain"
)

var paragraphBoundary = regexp.MustCompile(`\n\s*\n+`)

// ParagraphSplitter emits one chunk per paragraph, where a paragraph
// boundary is two or more consecutive newlines (optionally interleaved
// with whitespace).
type ParagraphSplitter struct{}

func (ParagraphSplitter) Process(text string, parentMeta domain.Metadata, _ map[string]any) ([]*domain.Chunk, error) {
	parts := paragraphBoundary.Split(text, -1)

	derived := parentMeta.Derive().WithChunkType(domain.ChunkTypeParagraph)

	var out []*domain.Chunk
	for _, p := range parts {
		trimmed := strings.TrimSpace(p)
		if trimmed == "" {
			continue
		}
		out = append(out, newChunk(trimmed, derived))
	}
	return out, nil
}
