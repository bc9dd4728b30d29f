package loaders

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docetl-project/docetl/internal/domain"
	"github.com/docetl-project/docetl/internal/errs"
)

type fakePDFSource struct {
	pages []PDFPage
	err   error
}

func (f fakePDFSource) Decode(ctx context.Context, path string) ([]PDFPage, error) {
	return f.pages, f.err
}

func TestPDFLoader_PreservesSpansVerbatim(t *testing.T) {
	source := fakePDFSource{pages: []PDFPage{
		{RawText: "Title\nbody", Blocks: []PDFBlock{
			{Spans: []PDFSpan{{Text: "Title", FontSize: 18, FontFlags: domain.FontFlagBold}}},
			{Spans: []PDFSpan{{Text: "body", FontSize: 11}}},
		}},
	}}
	loader := NewPDFLoader(source)
	doc, err := loader.Load(context.Background(), "doc.pdf")
	require.NoError(t, err)
	require.Len(t, doc.Pages, 1)
	require.Len(t, doc.Pages[0].Blocks, 2)
	assert.Equal(t, 18.0, doc.Pages[0].Blocks[0].Spans[0].FontSize)
	assert.True(t, domain.IsBold(doc.Pages[0].Blocks[0].Spans[0].FontFlags))
	assert.Equal(t, domain.BlockTypeText, doc.Pages[0].Blocks[1].Type)
}

func TestPDFLoader_MissingSourceIsConfigInvalid(t *testing.T) {
	loader := &PDFLoader{}
	_, err := loader.Load(context.Background(), "doc.pdf")
	require.Error(t, err)
	assert.Equal(t, errs.KindConfigInvalid, errs.KindOf(err))
}
