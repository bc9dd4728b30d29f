// Package loaders normalizes source files of varying formats into
// domain.Document values. Concrete PDF/DOCX byte-level decoding is an
// external collaborator: this package defines the PDFSource/DOCXSource
// seams the real decoding library is expected to implement, and each
// loader's own logic — pagination, block construction, font-flag
// decoding — is independent of which concrete decoder is plugged in.
package loaders

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/docetl-project/docetl/internal/domain"
	"github.com/docetl-project/docetl/internal/errs"
)

// Loader turns a source file into a Document.
type Loader interface {
	Load(ctx context.Context, path string) (*domain.Document, error)
	Supports(ext string) bool
}

// Factory selects a Loader by file extension.
type Factory struct {
	loaders []Loader
}

// NewFactory builds a Factory over the given loaders, tried in order.
func NewFactory(loaders ...Loader) *Factory {
	return &Factory{loaders: loaders}
}

// DefaultFactory wires only the TXT loader; PDF and DOCX files resolve to
// an UnsupportedFormat error through it. Callers that need PDF/DOCX
// decoding construct PDFLoader/DOCXLoader with a concrete
// PDFSource/DOCXSource and pass them to NewFactory instead.
func DefaultFactory() *Factory {
	return NewFactory(&TXTLoader{})
}

// ForPath resolves the Loader for path's extension, or an
// UnsupportedFormat error if no loader handles it.
func (f *Factory) ForPath(path string) (Loader, error) {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
	for _, l := range f.loaders {
		if l.Supports(ext) {
			return l, nil
		}
	}
	return nil, errs.New(errs.KindUnsupportedFormat, "no loader registered for extension \""+ext+"\"", nil)
}

// Load resolves and invokes the appropriate loader for path.
func (f *Factory) Load(ctx context.Context, path string) (*domain.Document, error) {
	l, err := f.ForPath(path)
	if err != nil {
		return nil, err
	}
	return l.Load(ctx, path)
}
