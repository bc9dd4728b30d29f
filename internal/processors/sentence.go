package processors

import (
	"strings"
	"unicode"

	"github.com/docetl-project/docetl/internal/domain"
)

// sentenceAbbreviations lists trailing tokens (lowercased, including
// the period) that never end a sentence on their own.
var sentenceAbbreviations = map[string]bool{
	"mr.": true, "mrs.": true, "ms.": true, "dr.": true, "prof.": true,
	"sr.": true, "jr.": true, "st.": true, "vs.": true, "etc.": true,
	"e.g.": true, "i.e.": true, "mx.": true, "capt.": true, "gen.": true,
}

// SentenceSplitter emits one chunk per sentence. A sentence boundary is
// a run of '.', '!' or '?' followed by whitespace or end of text, unless
// the preceding token is a known abbreviation or the period sits
// between two digits (a decimal point).
type SentenceSplitter struct{}

func (SentenceSplitter) Process(text string, parentMeta domain.Metadata, _ map[string]any) ([]*domain.Chunk, error) {
	derived := parentMeta.Derive().WithChunkType(domain.ChunkTypeSentence)

	var out []*domain.Chunk
	for _, s := range splitSentences(text) {
		out = append(out, newChunk(s, derived))
	}
	return out, nil
}

func splitSentences(text string) []string {
	runes := []rune(text)
	n := len(runes)

	var sentences []string
	var cur strings.Builder

	for i := 0; i < n; i++ {
		cur.WriteRune(runes[i])
		r := runes[i]
		if r != '.' && r != '!' && r != '?' {
			continue
		}

		if r == '.' && i > 0 && i < n-1 && unicode.IsDigit(runes[i-1]) && unicode.IsDigit(runes[i+1]) {
			continue
		}
		if sentenceAbbreviations[lastTokenLower(cur.String())] {
			continue
		}
		if i < n-1 && !unicode.IsSpace(runes[i+1]) {
			continue
		}

		if trimmed := strings.TrimSpace(cur.String()); trimmed != "" {
			sentences = append(sentences, trimmed)
		}
		cur.Reset()
	}
	if trimmed := strings.TrimSpace(cur.String()); trimmed != "" {
		sentences = append(sentences, trimmed)
	}
	return sentences
}

// lastTokenLower returns the lowercased last whitespace-delimited token
// of s, used to check it against the abbreviation table.
func lastTokenLower(s string) string {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return ""
	}
	return strings.ToLower(fields[len(fields)-1])
}
