package loaders

import (
	"context"

	"github.com/google/uuid"

	"github.com/docetl-project/docetl/internal/domain"
	"github.com/docetl-project/docetl/internal/errs"
)

// PDFSpan is one typed span as decoded by a concrete PDF library.
type PDFSpan struct {
	Text      string
	FontSize  float64
	FontFlags int
	BBox      domain.BBox
}

// PDFBlock groups spans the concrete decoder considers one layout block
// (e.g. a text run or an embedded image placeholder).
type PDFBlock struct {
	IsImage bool
	Spans   []PDFSpan
}

// PDFPage is one decoded page, in reading order.
type PDFPage struct {
	RawText string
	Blocks  []PDFBlock
}

// PDFSource is the seam a concrete PDF decoding library implements:
// "give me pages of typed spans." PDFLoader never parses PDF bytes
// itself; it only maps a PDFSource's output onto domain.Document.
type PDFSource interface {
	Decode(ctx context.Context, path string) ([]PDFPage, error)
}

// PDFLoader loads PDF files via a PDFSource, preserving every decoded
// span's font attributes verbatim as domain.Span records.
type PDFLoader struct {
	Source PDFSource
}

func NewPDFLoader(source PDFSource) *PDFLoader {
	return &PDFLoader{Source: source}
}

func (PDFLoader) Supports(ext string) bool { return ext == "pdf" }

func (l *PDFLoader) Load(ctx context.Context, path string) (*domain.Document, error) {
	if l.Source == nil {
		return nil, errs.New(errs.KindConfigInvalid, "pdf loader has no configured PDFSource", nil)
	}
	pages, err := l.Source.Decode(ctx, path)
	if err != nil {
		return nil, errs.New(errs.KindIOFailure, "decoding pdf: "+path, err)
	}

	doc := &domain.Document{ID: uuid.NewString(), SourceID: path}
	for i, p := range pages {
		page := domain.Page{Number: i + 1, RawText: p.RawText}
		for _, b := range p.Blocks {
			blockType := domain.BlockTypeText
			if b.IsImage {
				blockType = domain.BlockTypeImage
			}
			spans := make([]domain.Span, 0, len(b.Spans))
			for _, s := range b.Spans {
				spans = append(spans, domain.Span{
					Text:      s.Text,
					FontSize:  s.FontSize,
					FontFlags: s.FontFlags,
					BBox:      s.BBox,
				})
			}
			page.Blocks = append(page.Blocks, domain.Block{Type: blockType, Spans: spans})
		}
		doc.Pages = append(doc.Pages, page)
	}
	return doc, nil
}
