package exporters

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/docetl-project/docetl/internal/domain"
	"github.com/docetl-project/docetl/internal/errs"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS chunks (
	id TEXT PRIMARY KEY,
	document_id TEXT NOT NULL,
	section_id TEXT NOT NULL,
	text TEXT NOT NULL,
	meta JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS pipeline_runs (
	id TEXT PRIMARY KEY,
	pipeline_id TEXT NOT NULL,
	status TEXT NOT NULL,
	metadata JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
`

// PostgresExporter writes chunks and run metadata via pgx, batching
// writes with pgx.Batch and upserting on the chunk id.
type PostgresExporter struct {
	mu        sync.Mutex
	pool      *pgxpool.Pool
	connected bool
	written   int64
	lastErr   string
}

func (e *PostgresExporter) Connect(ctx context.Context, cfg map[string]any) error {
	dsn, _ := cfg["dsn"].(string)
	if dsn == "" {
		return errs.New(errs.KindConfigInvalid, "postgres exporter: cfg.dsn is required", nil)
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return errs.New(errs.KindDatabaseError, "connecting to postgres", err)
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return errs.New(errs.KindDatabaseError, "creating postgres schema", err)
	}
	e.mu.Lock()
	e.pool = pool
	e.connected = true
	e.mu.Unlock()
	return nil
}

func (e *PostgresExporter) BatchInsert(ctx context.Context, chunks []*domain.Chunk) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.pool == nil {
		return errs.New(errs.KindConfigInvalid, "postgres exporter: not connected", nil)
	}

	batch := &pgx.Batch{}
	now := time.Now().UTC()
	for _, c := range chunks {
		metaJSON, _ := json.Marshal(c.Meta)
		batch.Queue(`
			INSERT INTO chunks (id, document_id, section_id, text, meta, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (id) DO UPDATE SET
				document_id = EXCLUDED.document_id,
				section_id  = EXCLUDED.section_id,
				text        = EXCLUDED.text,
				meta        = EXCLUDED.meta,
				updated_at  = EXCLUDED.updated_at
		`, c.ID, c.Meta.DocumentID, c.Meta.SectionID, c.Text, metaJSON, now)
	}

	results := e.pool.SendBatch(ctx, batch)
	defer results.Close()
	for range chunks {
		if _, err := results.Exec(); err != nil {
			e.lastErr = err.Error()
			return errs.New(errs.KindDatabaseError, "writing chunk batch", err)
		}
	}
	e.written += int64(len(chunks))
	return nil
}

func (e *PostgresExporter) ExportRunMetadata(ctx context.Context, run *domain.PipelineRun) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.pool == nil {
		return errs.New(errs.KindConfigInvalid, "postgres exporter: not connected", nil)
	}
	metaJSON, _ := json.Marshal(run.ToMap())
	_, err := e.pool.Exec(ctx, `
		INSERT INTO pipeline_runs (id, pipeline_id, status, metadata, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			status     = EXCLUDED.status,
			metadata   = EXCLUDED.metadata,
			updated_at = EXCLUDED.updated_at
	`, run.ID, run.PipelineID, string(run.Status), metaJSON, time.Now().UTC())
	if err != nil {
		e.lastErr = err.Error()
		return errs.New(errs.KindDatabaseError, "writing run metadata", err)
	}
	return nil
}

func (e *PostgresExporter) Close(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.pool == nil {
		return nil
	}
	e.pool.Close()
	e.connected = false
	return nil
}

func (e *PostgresExporter) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Status{Connected: e.connected, RowsWritten: e.written, LastError: e.lastErr}
}
