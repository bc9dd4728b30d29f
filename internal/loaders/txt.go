package loaders

import (
	"bufio"
	"context"
	"os"
	"strings"

	"github.com/google/uuid"

	"github.com/docetl-project/docetl/internal/domain"
	"github.com/docetl-project/docetl/internal/errs"
)

// TXTLoader loads plain text files, emitting one block per non-empty
// line and treating the whole file as a single page.
type TXTLoader struct{}

func (TXTLoader) Supports(ext string) bool { return ext == "txt" }

func (TXTLoader) Load(ctx context.Context, path string) (*domain.Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errs.New(errs.KindIOFailure, "opening text file: "+path, err)
	}
	defer f.Close()

	var blocks []domain.Block
	var raw strings.Builder
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		line := scanner.Text()
		raw.WriteString(line)
		raw.WriteString("\n")
		if strings.TrimSpace(line) == "" {
			continue
		}
		blocks = append(blocks, domain.Block{
			Type:  domain.BlockTypeText,
			Spans: []domain.Span{{Text: line}},
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, errs.New(errs.KindIOFailure, "reading text file: "+path, err)
	}

	doc := &domain.Document{
		ID:       uuid.NewString(),
		SourceID: path,
		Pages: []domain.Page{
			{Number: 1, RawText: raw.String(), Blocks: blocks},
		},
	}
	return doc, nil
}
