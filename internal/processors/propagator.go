package processors

import (
	"github.com/docetl-project/docetl/internal/domain"
	"github.com/docetl-project/docetl/internal/headerdetect"
)

// MetadataPropagator has two jobs: detecting a Document's section
// structure from its spans, and enforcing that a chunk's metadata flows
// down to its children unchanged except for line_num and chunk_type.
type MetadataPropagator struct {
	Detector *headerdetect.Detector
}

// NewMetadataPropagator builds a propagator using the given header style
// definitions for section detection.
func NewMetadataPropagator(defs []domain.HeaderStyleDefinition) *MetadataPropagator {
	return &MetadataPropagator{Detector: headerdetect.NewDetector(defs)}
}

// DetectSections populates doc.Sections from its pages' spans.
func (p *MetadataPropagator) DetectSections(doc *domain.Document) {
	p.Detector.DetectDocument(doc)
}

// Propagate enforces the carry-forward rule on children: every field
// except LineNum and ChunkType is overwritten from parentMeta, even if a
// child already carried a (stale or mismatched) value. It then
// validates the resulting chunk.
func (p *MetadataPropagator) Propagate(parent *domain.Chunk, children []*domain.Chunk) error {
	for _, child := range children {
		lineNum := child.Meta.LineNum
		chunkType := child.Meta.ChunkType
		child.Meta = parent.Meta.Derive()
		child.Meta.LineNum = lineNum
		child.Meta.ChunkType = chunkType
		id := parent.ID
		child.ParentID = &id
	}
	parent.Children = children
	return parent.Validate()
}
