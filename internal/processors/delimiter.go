package processors

import (
	"regexp"
	"strings"

	"github.com/docetl-project/docetl/internal/domain"
)

// DelimiterSplitter splits text on a literal or regex delimiter. Params:
//
//	delimiter          string (required)
//	use_regex           bool   (default false)
//	preserve_delimiter  bool   (default false) — keep the delimiter
//	                     attached to the preceding part instead of
//	                     discarding it.
type DelimiterSplitter struct{}

func (DelimiterSplitter) Process(text string, parentMeta domain.Metadata, params map[string]any) ([]*domain.Chunk, error) {
	delim := paramString(params, "delimiter", "")
	useRegex := paramBool(params, "use_regex", false)
	preserve := paramBool(params, "preserve_delimiter", false)

	parts, err := splitOnDelimiter(text, delim, useRegex, preserve)
	if err != nil {
		return nil, err
	}

	derived := parentMeta.Derive().WithChunkType(domain.ChunkTypeCustom)

	out := make([]*domain.Chunk, 0, len(parts))
	for _, p := range parts {
		out = append(out, newChunk(p, derived))
	}
	return out, nil
}

func splitOnDelimiter(text, delim string, useRegex, preserve bool) ([]string, error) {
	if useRegex {
		re, err := regexp.Compile(delim)
		if err != nil {
			return nil, err
		}
		locs := re.FindAllStringIndex(text, -1)
		if len(locs) == 0 {
			return trimNonEmpty([]string{text}), nil
		}
		var raw []string
		last := 0
		for _, loc := range locs {
			part := text[last:loc[0]]
			if preserve {
				part += text[loc[0]:loc[1]]
			}
			raw = append(raw, part)
			last = loc[1]
		}
		raw = append(raw, text[last:])
		return trimNonEmpty(raw), nil
	}

	rawParts := strings.Split(text, delim)
	if preserve {
		for i := range rawParts {
			if i < len(rawParts)-1 {
				rawParts[i] += delim
			}
		}
	}
	return trimNonEmpty(rawParts), nil
}

func trimNonEmpty(parts []string) []string {
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		t := strings.TrimSpace(p)
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}
