package processors

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegexExtractor_NamedGroups(t *testing.T) {
	params := map[string]any{
		"patterns": []any{
			map[string]any{"name": "date", "pattern": `(?P<year>\d{4})-(?P<month>\d{2})-(?P<day>\d{2})`},
		},
	}
	chunks, err := RegexExtractor{}.Process("logged on 2024-01-15 ok", mkMeta(), params)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "2024-01-15", chunks[0].Text)
	assert.Equal(t, "2024", chunks[0].ExtractionResults["year"])
	assert.Equal(t, "01", chunks[0].ExtractionResults["month"])
	assert.Equal(t, "15", chunks[0].ExtractionResults["day"])
	assert.Equal(t, "date", chunks[0].ExtractionResults["name"])
}

func TestRegexExtractor_BareStringPatternUsesNumberedGroups(t *testing.T) {
	params := map[string]any{
		"patterns": []any{`(\w+)@(\w+\.\w+)`},
	}
	chunks, err := RegexExtractor{}.Process("contact: a@b.com", mkMeta(), params)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "a@b.com", chunks[0].Text)
	assert.Equal(t, "a", chunks[0].ExtractionResults["group_1"])
	assert.Equal(t, "b.com", chunks[0].ExtractionResults["group_2"])
}

func TestRegexExtractor_MultipleMatches(t *testing.T) {
	params := map[string]any{"patterns": []any{`\d+`}}
	chunks, err := RegexExtractor{}.Process("a1 b22 c333", mkMeta(), params)
	require.NoError(t, err)
	require.Len(t, chunks, 3)
}
