package exporters

import (
	"context"
	"database/sql"
	"encoding/json"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/docetl-project/docetl/internal/domain"
	"github.com/docetl-project/docetl/internal/errs"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS chunks (
	id TEXT PRIMARY KEY,
	document_id TEXT NOT NULL,
	section_id TEXT NOT NULL,
	text TEXT NOT NULL,
	meta TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS pipeline_runs (
	id TEXT PRIMARY KEY,
	pipeline_id TEXT NOT NULL,
	status TEXT NOT NULL,
	metadata TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
`

// SQLiteExporter writes chunks and run metadata to a local SQLite file
// via database/sql, creating its schema idempotently on Connect.
type SQLiteExporter struct {
	mu        sync.Mutex
	db        *sql.DB
	connected bool
	written   int64
	lastErr   string
}

func (e *SQLiteExporter) Connect(ctx context.Context, cfg map[string]any) error {
	path, _ := cfg["path"].(string)
	if path == "" {
		return errs.New(errs.KindConfigInvalid, "sqlite exporter: cfg.path is required", nil)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return errs.New(errs.KindDatabaseError, "opening sqlite database", err)
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		return errs.New(errs.KindDatabaseError, "creating sqlite schema", err)
	}
	e.mu.Lock()
	e.db = db
	e.connected = true
	e.mu.Unlock()
	return nil
}

func (e *SQLiteExporter) BatchInsert(ctx context.Context, chunks []*domain.Chunk) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.db == nil {
		return errs.New(errs.KindConfigInvalid, "sqlite exporter: not connected", nil)
	}

	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		e.lastErr = err.Error()
		return errs.New(errs.KindDatabaseError, "beginning sqlite transaction", err)
	}
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO chunks (id, document_id, section_id, text, meta, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			document_id = excluded.document_id,
			section_id  = excluded.section_id,
			text        = excluded.text,
			meta        = excluded.meta,
			updated_at  = excluded.updated_at
	`)
	if err != nil {
		_ = tx.Rollback()
		e.lastErr = err.Error()
		return errs.New(errs.KindDatabaseError, "preparing sqlite upsert", err)
	}
	defer stmt.Close()

	now := time.Now().UTC().Format(time.RFC3339Nano)
	for _, c := range chunks {
		metaJSON, _ := json.Marshal(c.Meta)
		if _, err := stmt.ExecContext(ctx, c.ID, c.Meta.DocumentID, c.Meta.SectionID, c.Text, string(metaJSON), now); err != nil {
			_ = tx.Rollback()
			e.lastErr = err.Error()
			return errs.New(errs.KindDatabaseError, "writing chunk", err)
		}
	}
	if err := tx.Commit(); err != nil {
		e.lastErr = err.Error()
		return errs.New(errs.KindDatabaseError, "committing sqlite transaction", err)
	}
	e.written += int64(len(chunks))
	return nil
}

func (e *SQLiteExporter) ExportRunMetadata(ctx context.Context, run *domain.PipelineRun) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.db == nil {
		return errs.New(errs.KindConfigInvalid, "sqlite exporter: not connected", nil)
	}
	metaJSON, _ := json.Marshal(run.ToMap())
	_, err := e.db.ExecContext(ctx, `
		INSERT INTO pipeline_runs (id, pipeline_id, status, metadata, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status     = excluded.status,
			metadata   = excluded.metadata,
			updated_at = excluded.updated_at
	`, run.ID, run.PipelineID, string(run.Status), string(metaJSON), time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		e.lastErr = err.Error()
		return errs.New(errs.KindDatabaseError, "writing run metadata", err)
	}
	return nil
}

func (e *SQLiteExporter) Close(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.db == nil {
		return nil
	}
	err := e.db.Close()
	e.connected = false
	return err
}

func (e *SQLiteExporter) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Status{Connected: e.connected, RowsWritten: e.written, LastError: e.lastErr}
}
