// Package processors holds the pure chunk transforms that a document
// executor step can invoke: splitters, the regex extractor, and the
// metadata propagator.
//
// Every splitter implements TextProcessor: it consumes a block of text
// plus the Metadata its parent carried, and produces child chunks that
// carry that Metadata forward unchanged except for line_num and
// chunk_type. The document executor is responsible for normalizing a
// Document into per-page texts before calling a TextProcessor, so
// processors themselves only ever see text.
package processors

import (
	"github.com/google/uuid"

	"github.com/docetl-project/docetl/internal/domain"
)

// TextProcessor splits text into child chunks, inheriting Metadata from
// the parent.
type TextProcessor interface {
	Process(text string, parentMeta domain.Metadata, params map[string]any) ([]*domain.Chunk, error)
}

// newChunk builds a child chunk with a fresh id and the given text and
// metadata; ParentID is left nil — the caller (executor) links children
// to a concrete parent chunk id where one exists (source Documents have
// no single parent chunk).
func newChunk(text string, meta domain.Metadata) *domain.Chunk {
	return &domain.Chunk{ID: uuid.NewString(), Text: text, Meta: meta}
}

// paramString reads a string parameter, returning def if absent or of
// the wrong type.
func paramString(params map[string]any, key, def string) string {
	if v, ok := params[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return def
}

// paramBool reads a bool parameter, returning def if absent or of the
// wrong type.
func paramBool(params map[string]any, key string, def bool) bool {
	if v, ok := params[key]; ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return def
}
