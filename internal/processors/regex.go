package processors

import (
	"fmt"
	"regexp"

	"github.com/docetl-project/docetl/internal/domain"
)

// patternSpec is one entry of the "patterns" param, either a bare regex
// string or a named {name, pattern} record.
type patternSpec struct {
	Name    string
	Pattern string
}

// RegexExtractor emits one chunk per regex match, across every pattern
// in the "patterns" param. Each chunk's ExtractionResults carries the
// pattern (or name), the match's start/end offsets, and either its
// named capture groups or, if the pattern defines none, its numbered
// groups.
type RegexExtractor struct{}

func (RegexExtractor) Process(text string, parentMeta domain.Metadata, params map[string]any) ([]*domain.Chunk, error) {
	specs, err := parsePatternSpecs(params["patterns"])
	if err != nil {
		return nil, err
	}

	derived := parentMeta.Derive().WithChunkType(domain.ChunkTypeCustom)

	var out []*domain.Chunk
	for _, spec := range specs {
		re, err := regexp.Compile(spec.Pattern)
		if err != nil {
			return nil, fmt.Errorf("regex extractor: invalid pattern %q: %w", spec.Pattern, err)
		}
		names := re.SubexpNames()
		for _, idx := range re.FindAllStringSubmatchIndex(text, -1) {
			start, end := idx[0], idx[1]
			matched := text[start:end]

			results := map[string]any{
				"start": start,
				"end":   end,
			}
			if spec.Name != "" {
				results["name"] = spec.Name
			}
			results["pattern"] = spec.Pattern

			hasNamed := false
			for gi := 1; gi < len(names); gi++ {
				if names[gi] == "" {
					continue
				}
				hasNamed = true
				gs, ge := idx[2*gi], idx[2*gi+1]
				if gs >= 0 {
					results[names[gi]] = text[gs:ge]
				}
			}
			if !hasNamed {
				for gi := 1; gi*2+1 < len(idx); gi++ {
					gs, ge := idx[2*gi], idx[2*gi+1]
					if gs >= 0 {
						results[fmt.Sprintf("group_%d", gi)] = text[gs:ge]
					}
				}
			}

			c := newChunk(matched, derived)
			c.ExtractionResults = results
			out = append(out, c)
		}
	}
	return out, nil
}

func parsePatternSpecs(raw any) ([]patternSpec, error) {
	items, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("regex extractor: params.patterns must be a list")
	}
	specs := make([]patternSpec, 0, len(items))
	for _, item := range items {
		switch v := item.(type) {
		case string:
			specs = append(specs, patternSpec{Pattern: v})
		case map[string]any:
			pattern, _ := v["pattern"].(string)
			if pattern == "" {
				return nil, fmt.Errorf("regex extractor: pattern record missing pattern")
			}
			name, _ := v["name"].(string)
			specs = append(specs, patternSpec{Name: name, Pattern: pattern})
		default:
			return nil, fmt.Errorf("regex extractor: unsupported pattern entry of type %T", item)
		}
	}
	return specs, nil
}
