package loaders

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDOCXSource struct {
	paragraphs []DOCXParagraph
}

func (f fakeDOCXSource) Decode(ctx context.Context, path string) ([]DOCXParagraph, error) {
	return f.paragraphs, nil
}

func TestDOCXLoader_FontAttributesFromFirstRun(t *testing.T) {
	source := fakeDOCXSource{paragraphs: []DOCXParagraph{
		{Runs: []DOCXRun{{Text: "Hello ", FontSize: 14}, {Text: "world"}}},
	}}
	doc, err := NewDOCXLoader(source).Load(context.Background(), "doc.docx")
	require.NoError(t, err)
	require.Len(t, doc.Pages, 1)
	require.Len(t, doc.Pages[0].Blocks, 1)
	span := doc.Pages[0].Blocks[0].Spans[0]
	assert.Equal(t, "Hello world", span.Text)
	assert.Equal(t, 14.0, span.FontSize)
}

func TestDOCXLoader_PaginatesAtParagraphLimit(t *testing.T) {
	var paragraphs []DOCXParagraph
	for i := 0; i < defaultParagraphsPerPage+5; i++ {
		paragraphs = append(paragraphs, DOCXParagraph{Runs: []DOCXRun{{Text: "p"}}})
	}
	doc, err := NewDOCXLoader(fakeDOCXSource{paragraphs: paragraphs}).Load(context.Background(), "doc.docx")
	require.NoError(t, err)
	require.Len(t, doc.Pages, 2)
	assert.Len(t, doc.Pages[0].Blocks, defaultParagraphsPerPage)
	assert.Len(t, doc.Pages[1].Blocks, 5)
}

func TestDOCXLoader_PaginatesAtCharBudget(t *testing.T) {
	big := make([]byte, defaultCharBudgetPerPage+100)
	for i := range big {
		big[i] = 'x'
	}
	paragraphs := []DOCXParagraph{
		{Runs: []DOCXRun{{Text: string(big)}}},
		{Runs: []DOCXRun{{Text: "more"}}},
	}
	doc, err := NewDOCXLoader(fakeDOCXSource{paragraphs: paragraphs}).Load(context.Background(), "doc.docx")
	require.NoError(t, err)
	require.Len(t, doc.Pages, 2)
}
