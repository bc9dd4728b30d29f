package domain

import "fmt"

// DisplayTextLimit is the maximum length of the truncated display text
// stored alongside a chunk's full text.
const DisplayTextLimit = 200

// Chunk is the smallest addressable text fragment carrying full
// provenance. Children, if any, point back at their parent via ParentID.
type Chunk struct {
	ID                string         `json:"id"`
	Text              string         `json:"text"`
	Meta              Metadata       `json:"meta"`
	ParentID          *string        `json:"parent_id,omitempty"`
	Children          []*Chunk       `json:"children,omitempty"`
	ExtractionResults map[string]any `json:"extraction_results,omitempty"`
}

// DisplayText returns Text truncated to DisplayTextLimit runes, appending
// an ellipsis when truncation occurred. It never mutates Text itself.
func (c *Chunk) DisplayText() string {
	r := []rune(c.Text)
	if len(r) <= DisplayTextLimit {
		return c.Text
	}
	return string(r[:DisplayTextLimit]) + "..."
}

// Validate checks the structural invariants: children's ParentID must
// reference the owning chunk, and the chunk tree must be acyclic.
func (c *Chunk) Validate() error {
	if err := c.Meta.Validate(); err != nil {
		return fmt.Errorf("chunk %s: %w", c.ID, err)
	}
	for _, child := range c.Children {
		if child.ParentID == nil || *child.ParentID != c.ID {
			return fmt.Errorf("chunk %s: child %s has mismatched parent_id", c.ID, child.ID)
		}
		if err := child.Validate(); err != nil {
			return err
		}
	}
	if err := detectCycle(c, map[string]bool{}); err != nil {
		return err
	}
	return nil
}

func detectCycle(c *Chunk, seen map[string]bool) error {
	if seen[c.ID] {
		return fmt.Errorf("chunk %s: cycle detected in chunk tree", c.ID)
	}
	seen[c.ID] = true
	for _, child := range c.Children {
		if err := detectCycle(child, seen); err != nil {
			return err
		}
	}
	delete(seen, c.ID)
	return nil
}

// ToMap renders the chunk into its dictionary wire form, preserving the
// complete original text alongside a truncated display_text field.
func (c *Chunk) ToMap() map[string]any {
	m := map[string]any{
		"id":           c.ID,
		"text":         c.Text,
		"display_text": c.DisplayText(),
		"meta": map[string]any{
			"document_id":     c.Meta.DocumentID,
			"section_id":      c.Meta.SectionID,
			"section_title":   c.Meta.SectionTitle,
			"section_level":   c.Meta.SectionLevel,
			"chunk_type":      string(c.Meta.ChunkType),
			"pipeline_run_id": c.Meta.PipelineRunID,
			"source_type":     c.Meta.SourceType,
		},
	}
	if c.Meta.PageNum != nil {
		m["meta"].(map[string]any)["page_num"] = *c.Meta.PageNum
	}
	if c.Meta.LineNum != nil {
		m["meta"].(map[string]any)["line_num"] = *c.Meta.LineNum
	}
	if c.ParentID != nil {
		m["parent_id"] = *c.ParentID
	}
	if len(c.ExtractionResults) > 0 {
		m["extraction_results"] = c.ExtractionResults
	}
	if len(c.Children) > 0 {
		children := make([]map[string]any, 0, len(c.Children))
		for _, child := range c.Children {
			children = append(children, child.ToMap())
		}
		m["children"] = children
	}
	return m
}

// ChunkFromMap reconstructs a Chunk from its dictionary wire form. The
// "text" field (never "display_text") is authoritative for the
// reconstructed Text, matching the round-trip property that the
// complete original text survives even when display text was truncated.
func ChunkFromMap(m map[string]any) (*Chunk, error) {
	id, _ := m["id"].(string)
	text, _ := m["text"].(string)
	c := &Chunk{ID: id, Text: text}

	metaRaw, ok := m["meta"].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("chunk map missing meta object")
	}
	meta := Metadata{
		DocumentID:    str(metaRaw["document_id"]),
		SectionID:     str(metaRaw["section_id"]),
		SectionTitle:  str(metaRaw["section_title"]),
		SectionLevel:  intOf(metaRaw["section_level"]),
		ChunkType:     ChunkType(str(metaRaw["chunk_type"])),
		PipelineRunID: str(metaRaw["pipeline_run_id"]),
		SourceType:    str(metaRaw["source_type"]),
	}
	if v, ok := metaRaw["page_num"]; ok {
		n := intOf(v)
		meta.PageNum = &n
	}
	if v, ok := metaRaw["line_num"]; ok {
		n := intOf(v)
		meta.LineNum = &n
	}
	c.Meta = meta

	if p, ok := m["parent_id"].(string); ok {
		c.ParentID = &p
	}
	if er, ok := m["extraction_results"].(map[string]any); ok {
		c.ExtractionResults = er
	}
	if childrenRaw, ok := m["children"].([]map[string]any); ok {
		for _, cm := range childrenRaw {
			child, err := ChunkFromMap(cm)
			if err != nil {
				return nil, err
			}
			c.Children = append(c.Children, child)
		}
	} else if childrenIface, ok := m["children"].([]any); ok {
		for _, cm := range childrenIface {
			asMap, ok := cm.(map[string]any)
			if !ok {
				continue
			}
			child, err := ChunkFromMap(asMap)
			if err != nil {
				return nil, err
			}
			c.Children = append(c.Children, child)
		}
	}
	return c, nil
}

func str(v any) string {
	s, _ := v.(string)
	return s
}

func intOf(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	default:
		return 0
	}
}
