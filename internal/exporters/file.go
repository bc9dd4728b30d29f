package exporters

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/klauspost/compress/gzip"

	"github.com/docetl-project/docetl/internal/domain"
	"github.com/docetl-project/docetl/internal/errs"
)

// FileFormat selects a FileExporter's on-disk layout.
type FileFormat string

const (
	FileFormatJSON FileFormat = "json"
	FileFormatCSV  FileFormat = "csv"
	FileFormatTXT  FileFormat = "txt"
)

// FileExporter streams chunks to a directory in a fixed layout,
// optionally gzip-compressed. Every BatchInsert appends to the single
// file chunks.<format> (chunks.<format>.gz with gzip) in that directory,
// so a repeated batch is written again; ExportRunMetadata overwrites
// run.json beside it.
type FileExporter struct {
	mu        sync.Mutex
	dir       string
	format    FileFormat
	gzip      bool
	connected bool
	written   int64
	lastErr   string
}

func (e *FileExporter) Connect(ctx context.Context, cfg map[string]any) error {
	dir, _ := cfg["output_path"].(string)
	if dir == "" {
		return errs.New(errs.KindConfigInvalid, "file exporter: cfg.output_path is required", nil)
	}
	format, _ := cfg["format"].(string)
	if format == "" {
		format = string(FileFormatJSON)
	}
	gz, _ := cfg["gzip"].(bool)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errs.New(errs.KindIOFailure, "creating output directory", err)
	}

	e.mu.Lock()
	e.dir = dir
	e.format = FileFormat(format)
	e.gzip = gz
	e.connected = true
	e.mu.Unlock()
	return nil
}

func (e *FileExporter) BatchInsert(ctx context.Context, chunks []*domain.Chunk) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.connected {
		return errs.New(errs.KindConfigInvalid, "file exporter: not connected", nil)
	}

	name := fmt.Sprintf("chunks.%s", e.format)
	if e.gzip {
		name += ".gz"
	}
	path := filepath.Join(e.dir, name)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		e.lastErr = err.Error()
		return errs.New(errs.KindIOFailure, "opening output file", err)
	}
	defer f.Close()

	var w writeCloserFlusher = nopFlusher{f}
	if e.gzip {
		gw := gzip.NewWriter(f)
		defer gw.Close()
		w = gw
	}

	if err := writeChunks(w, e.format, chunks); err != nil {
		e.lastErr = err.Error()
		return err
	}
	e.written += int64(len(chunks))
	return nil
}

func (e *FileExporter) ExportRunMetadata(ctx context.Context, run *domain.PipelineRun) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.connected {
		return errs.New(errs.KindConfigInvalid, "file exporter: not connected", nil)
	}
	path := filepath.Join(e.dir, "run.json")
	data, err := json.MarshalIndent(run.ToMap(), "", "  ")
	if err != nil {
		return errs.New(errs.KindIOFailure, "encoding run metadata", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		e.lastErr = err.Error()
		return errs.New(errs.KindIOFailure, "writing run metadata", err)
	}
	return nil
}

func (e *FileExporter) Close(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.connected = false
	return nil
}

func (e *FileExporter) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Status{Connected: e.connected, RowsWritten: e.written, LastError: e.lastErr}
}

// writeCloserFlusher unifies the plain and gzip-wrapped file writer so
// writeChunks doesn't need to know which one it has.
type writeCloserFlusher interface {
	Write(p []byte) (int, error)
}

type nopFlusher struct{ *os.File }

func writeChunks(w writeCloserFlusher, format FileFormat, chunks []*domain.Chunk) error {
	switch format {
	case FileFormatCSV:
		cw := csv.NewWriter(w)
		for _, c := range chunks {
			if err := cw.Write([]string{c.ID, c.Meta.DocumentID, c.Meta.SectionID, c.Text}); err != nil {
				return errs.New(errs.KindIOFailure, "writing csv row", err)
			}
		}
		cw.Flush()
		return cw.Error()
	case FileFormatTXT:
		for _, c := range chunks {
			if _, err := w.Write([]byte(c.Text + "\n")); err != nil {
				return errs.New(errs.KindIOFailure, "writing txt line", err)
			}
		}
		return nil
	default:
		enc := json.NewEncoder(w)
		for _, c := range chunks {
			if err := enc.Encode(c.ToMap()); err != nil {
				return errs.New(errs.KindIOFailure, "writing json record", err)
			}
		}
		return nil
	}
}
