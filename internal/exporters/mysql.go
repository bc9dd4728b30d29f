package exporters

import (
	"context"
	"database/sql"
	"encoding/json"
	"sync"
	"time"

	_ "github.com/go-sql-driver/mysql"

	"github.com/docetl-project/docetl/internal/domain"
	"github.com/docetl-project/docetl/internal/errs"
)

const mysqlSchema = `
CREATE TABLE IF NOT EXISTS chunks (
	id VARCHAR(64) PRIMARY KEY,
	document_id VARCHAR(64) NOT NULL,
	section_id VARCHAR(64) NOT NULL,
	text LONGTEXT NOT NULL,
	meta JSON NOT NULL,
	updated_at DATETIME NOT NULL
);
CREATE TABLE IF NOT EXISTS pipeline_runs (
	id VARCHAR(64) PRIMARY KEY,
	pipeline_id VARCHAR(64) NOT NULL,
	status VARCHAR(32) NOT NULL,
	metadata JSON NOT NULL,
	updated_at DATETIME NOT NULL
);
`

// MySQLExporter writes chunks and run metadata via database/sql and the
// go-sql-driver/mysql driver, upserting with ON DUPLICATE KEY UPDATE.
type MySQLExporter struct {
	mu        sync.Mutex
	db        *sql.DB
	connected bool
	written   int64
	lastErr   string
}

func (e *MySQLExporter) Connect(ctx context.Context, cfg map[string]any) error {
	dsn, _ := cfg["dsn"].(string)
	if dsn == "" {
		return errs.New(errs.KindConfigInvalid, "mysql exporter: cfg.dsn is required", nil)
	}
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return errs.New(errs.KindDatabaseError, "opening mysql connection", err)
	}
	for _, stmt := range splitStatements(mysqlSchema) {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return errs.New(errs.KindDatabaseError, "creating mysql schema", err)
		}
	}
	e.mu.Lock()
	e.db = db
	e.connected = true
	e.mu.Unlock()
	return nil
}

func (e *MySQLExporter) BatchInsert(ctx context.Context, chunks []*domain.Chunk) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.db == nil {
		return errs.New(errs.KindConfigInvalid, "mysql exporter: not connected", nil)
	}

	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return errs.New(errs.KindDatabaseError, "beginning mysql transaction", err)
	}
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO chunks (id, document_id, section_id, text, meta, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			document_id = VALUES(document_id),
			section_id  = VALUES(section_id),
			text        = VALUES(text),
			meta        = VALUES(meta),
			updated_at  = VALUES(updated_at)
	`)
	if err != nil {
		_ = tx.Rollback()
		return errs.New(errs.KindDatabaseError, "preparing mysql upsert", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
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
		return errs.New(errs.KindDatabaseError, "committing mysql transaction", err)
	}
	e.written += int64(len(chunks))
	return nil
}

func (e *MySQLExporter) ExportRunMetadata(ctx context.Context, run *domain.PipelineRun) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.db == nil {
		return errs.New(errs.KindConfigInvalid, "mysql exporter: not connected", nil)
	}
	metaJSON, _ := json.Marshal(run.ToMap())
	_, err := e.db.ExecContext(ctx, `
		INSERT INTO pipeline_runs (id, pipeline_id, status, metadata, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			status     = VALUES(status),
			metadata   = VALUES(metadata),
			updated_at = VALUES(updated_at)
	`, run.ID, run.PipelineID, string(run.Status), string(metaJSON), time.Now().UTC())
	if err != nil {
		e.lastErr = err.Error()
		return errs.New(errs.KindDatabaseError, "writing run metadata", err)
	}
	return nil
}

func (e *MySQLExporter) Close(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.db == nil {
		return nil
	}
	err := e.db.Close()
	e.connected = false
	return err
}

func (e *MySQLExporter) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Status{Connected: e.connected, RowsWritten: e.written, LastError: e.lastErr}
}
