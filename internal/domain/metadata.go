// Package domain holds the core types of the document-processing ETL
// engine: chunks, documents, pipeline configs, and runs. It has no
// dependency on any other internal package so that processors, loaders,
// and the executor can all depend on it without a cycle.
package domain

import "fmt"

// ChunkType classifies how a chunk was produced.
type ChunkType string

const (
	ChunkTypeLine      ChunkType = "LINE"
	ChunkTypeParagraph ChunkType = "PARAGRAPH"
	ChunkTypeSentence  ChunkType = "SENTENCE"
	ChunkTypeCustom    ChunkType = "CUSTOM"
	ChunkTypeDocument  ChunkType = "DOCUMENT"
)

// Metadata is the immutable provenance record carried by every chunk.
type Metadata struct {
	DocumentID    string    `json:"document_id"`
	SectionID     string    `json:"section_id"`
	SectionTitle  string    `json:"section_title"`
	SectionLevel  int       `json:"section_level"`
	PageNum       *int      `json:"page_num,omitempty"`
	LineNum       *int      `json:"line_num,omitempty"`
	ChunkType     ChunkType `json:"chunk_type"`
	PipelineRunID string    `json:"pipeline_run_id,omitempty"`
	SourceType    string    `json:"source_type,omitempty"`
}

// Validate enforces the field invariants.
func (m Metadata) Validate() error {
	if m.DocumentID == "" {
		return fmt.Errorf("metadata: document_id must not be empty")
	}
	if m.SectionID == "" {
		return fmt.Errorf("metadata: section_id must not be empty")
	}
	if m.SectionLevel < 1 {
		return fmt.Errorf("metadata: section_level must be >= 1, got %d", m.SectionLevel)
	}
	if m.PageNum != nil && *m.PageNum < 1 {
		return fmt.Errorf("metadata: page_num must be >= 1, got %d", *m.PageNum)
	}
	if m.LineNum != nil && *m.LineNum < 1 {
		return fmt.Errorf("metadata: line_num must be >= 1, got %d", *m.LineNum)
	}
	return nil
}

// Derive returns a copy of m suitable for a child chunk: document_id,
// section_id, section_title, section_level, page_num, pipeline_run_id,
// and source_type are carried forward unchanged; line_num and chunk_type
// are left to the caller to refine.
func (m Metadata) Derive() Metadata {
	child := m
	child.LineNum = nil
	return child
}

// WithLineNum returns a copy of m with LineNum set.
func (m Metadata) WithLineNum(n int) Metadata {
	child := m
	child.LineNum = &n
	return child
}

// WithChunkType returns a copy of m with ChunkType set.
func (m Metadata) WithChunkType(t ChunkType) Metadata {
	child := m
	child.ChunkType = t
	return child
}
