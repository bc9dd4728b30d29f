package headerdetect

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docetl-project/docetl/internal/domain"
)

func floatPtr(f float64) *float64 { return &f }
func boolPtr(b bool) *bool        { return &b }

// TestDetector_E2EHeaderScenario exercises a full multi-level document:
// two heading levels by style, interleaved body paragraphs.
func TestDetector_E2EHeaderScenario(t *testing.T) {
	defs := []domain.HeaderStyleDefinition{
		{Level: 1, FontSize: floatPtr(16), IsBold: boolPtr(true)},
		{Level: 2, FontSize: floatPtr(14), IsBold: boolPtr(true)},
	}
	d := NewDetector(defs)

	bold := domain.FontFlagBold

	level, ok := d.Detect(Span{Text: "Introduction", FontSize: floatPtr(16), FontFlags: &bold})
	require.True(t, ok)
	assert.Equal(t, 1, level)

	level, ok = d.Detect(Span{Text: "1.1 Scope", FontSize: floatPtr(14), FontFlags: &bold})
	require.True(t, ok)
	assert.Equal(t, 2, level)

	regular := 0
	_, ok = d.Detect(Span{Text: "body", FontSize: floatPtr(11), FontFlags: &regular})
	assert.False(t, ok)
}

func TestDetector_ExactRuleWinsBeforeStyleScan(t *testing.T) {
	defs := []domain.HeaderStyleDefinition{
		{
			Level:             9,
			ExactHeadingRules: []domain.ExactHeadingRule{{HeadingText: "Appendix", Level: 3, WholeWord: true}},
		},
	}
	d := NewDetector(defs)
	level, ok := d.Detect(Span{Text: "Appendix\n"})
	require.True(t, ok)
	assert.Equal(t, 3, level)
}

func TestDetector_FontSizeTolerance(t *testing.T) {
	defs := []domain.HeaderStyleDefinition{{Level: 1, FontSize: floatPtr(16.0)}}
	d := NewDetector(defs)
	size := 16.05
	level, ok := d.Detect(Span{Text: "close enough", FontSize: &size})
	require.True(t, ok)
	assert.Equal(t, 1, level)

	tooFar := 16.2
	_, ok = d.Detect(Span{Text: "too far", FontSize: &tooFar})
	assert.False(t, ok)
}

func TestAdmitFilter_ConjunctivePredicates(t *testing.T) {
	minLen := 3
	f := &domain.HeaderFilter{
		IncludeWords: []string{"chapter"},
		ExcludeWords: []string{"draft"},
		MinLength:    &minLen,
	}
	rc := newRegexCache()
	assert.True(t, admitFilter(f, "Chapter One", rc))
	assert.False(t, admitFilter(f, "Chapter One (draft)", rc))
	assert.False(t, admitFilter(f, "Ch", rc))
	assert.False(t, admitFilter(f, "Section One", rc))
}
