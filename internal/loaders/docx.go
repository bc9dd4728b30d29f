package loaders

import (
	"context"

	"github.com/google/uuid"

	"github.com/docetl-project/docetl/internal/domain"
	"github.com/docetl-project/docetl/internal/errs"
)

// DOCXRun is one run of text within a paragraph, carrying the run-level
// font attributes a concrete DOCX library would expose.
type DOCXRun struct {
	Text      string
	FontSize  float64
	FontFlags int
}

// DOCXParagraph is one paragraph's runs, in document order.
type DOCXParagraph struct {
	Runs []DOCXRun
}

// DOCXSource is the seam a concrete DOCX decoding library implements:
// "give me paragraphs with run-level font info."
type DOCXSource interface {
	Decode(ctx context.Context, path string) ([]DOCXParagraph, error)
}

const (
	// defaultParagraphsPerPage bounds how many paragraphs DOCXLoader
	// groups into one virtual page before the character budget does.
	defaultParagraphsPerPage = 50
	// defaultCharBudgetPerPage caps a virtual page's accumulated raw
	// text length, whichever of the two limits is hit first.
	defaultCharBudgetPerPage = 2750
)

// DOCXLoader loads DOCX files via a DOCXSource. DOCX has no native page
// boundaries once decoded to paragraphs/runs, so the loader paginates
// virtually: paragraphs accumulate onto the current page until either
// defaultParagraphsPerPage or defaultCharBudgetPerPage is reached. Each
// paragraph's font attributes are taken from its first run.
type DOCXLoader struct {
	Source DOCXSource
}

func NewDOCXLoader(source DOCXSource) *DOCXLoader {
	return &DOCXLoader{Source: source}
}

func (DOCXLoader) Supports(ext string) bool { return ext == "docx" }

func (l *DOCXLoader) Load(ctx context.Context, path string) (*domain.Document, error) {
	if l.Source == nil {
		return nil, errs.New(errs.KindConfigInvalid, "docx loader has no configured DOCXSource", nil)
	}
	paragraphs, err := l.Source.Decode(ctx, path)
	if err != nil {
		return nil, errs.New(errs.KindIOFailure, "decoding docx: "+path, err)
	}

	doc := &domain.Document{ID: uuid.NewString(), SourceID: path}
	var page domain.Page
	page.Number = 1
	charCount := 0
	paraCount := 0

	flush := func() {
		if len(page.Blocks) == 0 {
			return
		}
		doc.Pages = append(doc.Pages, page)
		page = domain.Page{Number: len(doc.Pages) + 1}
		charCount = 0
		paraCount = 0
	}

	for _, para := range paragraphs {
		if len(para.Runs) == 0 {
			continue
		}
		var text string
		for _, r := range para.Runs {
			text += r.Text
		}
		first := para.Runs[0]
		span := domain.Span{Text: text, FontSize: first.FontSize, FontFlags: first.FontFlags}
		page.Blocks = append(page.Blocks, domain.Block{Type: domain.BlockTypeText, Spans: []domain.Span{span}})
		page.RawText += text + "\n"
		charCount += len(text)
		paraCount++

		if paraCount >= defaultParagraphsPerPage || charCount >= defaultCharBudgetPerPage {
			flush()
		}
	}
	flush()

	if len(doc.Pages) == 0 {
		doc.Pages = []domain.Page{{Number: 1}}
	}
	return doc, nil
}
