// Package store persists pipeline configs, runs, scripts, chunks, and
// operational logs in a single embedded SQLite database, guarding
// concurrent writers with an in-process mutex and the on-disk schema
// migration with a cross-process advisory file lock.
package store

import (
	"context"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gofrs/flock"
	_ "modernc.org/sqlite"

	"github.com/docetl-project/docetl/internal/domain"
	"github.com/docetl-project/docetl/internal/errs"
	"github.com/docetl-project/docetl/internal/scheduler"
	"github.com/docetl-project/docetl/internal/script"
)

// Store wraps the embedded database. Writes are serialized through
// writeMu because SQLite allows only one writer at a time; reads go
// straight to *sql.DB, which already pools connections safely.
type Store struct {
	db        *sql.DB
	writeMu   sync.Mutex
	masterKey []byte
}

// Open migrates the schema at path (guarded by a cross-process flock
// so two processes starting against the same file don't race each
// other's CREATE TABLE statements) and returns a ready Store.
// masterKey decrypts user_scripts rows sealed without a password; it
// may be nil if the store never resolves scripts.
func Open(path string, masterKey []byte) (*Store, error) {
	lock := flock.New(path + ".lock")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	locked, err := lock.TryLockContext(ctx, 50*time.Millisecond)
	if err != nil {
		return nil, errs.New(errs.KindDatabaseError, "acquiring schema migration lock", err)
	}
	if !locked {
		return nil, errs.New(errs.KindDatabaseError, "timed out acquiring schema migration lock", nil)
	}
	defer lock.Unlock()

	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, errs.New(errs.KindDatabaseError, "opening database", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, errs.New(errs.KindDatabaseError, "migrating schema", err)
	}

	return &Store{db: db, masterKey: masterKey}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) withWriteLock(fn func() error) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return fn()
}

// SavePipelineConfig upserts cfg, serializing its step graph as JSON.
func (s *Store) SavePipelineConfig(ctx context.Context, cfg *domain.PipelineConfig) error {
	blob, err := json.Marshal(cfg.ToMap())
	if err != nil {
		return errs.New(errs.KindDatabaseError, "encoding pipeline config", err)
	}
	now := time.Now()
	return s.withWriteLock(func() error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO pipelines (id, name, description, config, schedule, version, is_active, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				name = excluded.name, description = excluded.description, config = excluded.config,
				schedule = excluded.schedule, version = excluded.version, is_active = excluded.is_active,
				updated_at = excluded.updated_at`,
			cfg.ID, cfg.Name, cfg.Description, string(blob), cfg.Schedule, cfg.Version, boolToInt(cfg.Active), cfg.CreatedAt, now)
		if err != nil {
			return errs.New(errs.KindDatabaseError, "saving pipeline config", err)
		}
		return nil
	})
}

// SoftDeletePipelineConfig flips a pipeline's is_active flag to false.
func (s *Store) SoftDeletePipelineConfig(ctx context.Context, pipelineID string) error {
	return s.withWriteLock(func() error {
		res, err := s.db.ExecContext(ctx, `UPDATE pipelines SET is_active = 0, updated_at = ? WHERE id = ?`, time.Now(), pipelineID)
		if err != nil {
			return errs.New(errs.KindDatabaseError, "soft-deleting pipeline config", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return errs.New(errs.KindConfigInvalid, fmt.Sprintf("pipeline %s not found", pipelineID), nil)
		}
		return nil
	})
}

// RecordRun implements pipeline.RunRecorder, persisting run's full
// wire form as JSON alongside its indexed pipeline_id/status/start_time
// columns.
func (s *Store) RecordRun(ctx context.Context, run *domain.PipelineRun) error {
	blob, err := json.Marshal(run.ToMap())
	if err != nil {
		return errs.New(errs.KindDatabaseError, "encoding pipeline run", err)
	}
	var endTime any
	if run.EndTime != nil {
		endTime = *run.EndTime
	}
	return s.withWriteLock(func() error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO pipeline_runs (id, pipeline_id, status, start_time, end_time, run)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				status = excluded.status, end_time = excluded.end_time, run = excluded.run`,
			run.ID, run.PipelineID, string(run.Status), run.StartTime, endTime, string(blob))
		if err != nil {
			return errs.New(errs.KindDatabaseError, "recording pipeline run", err)
		}
		return nil
	})
}

// ListRunsForPipeline returns every run recorded for pipelineID, most
// recent first, as their stored wire-form maps.
func (s *Store) ListRunsForPipeline(ctx context.Context, pipelineID string) ([]map[string]any, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run FROM pipeline_runs WHERE pipeline_id = ? ORDER BY start_time DESC`, pipelineID)
	if err != nil {
		return nil, errs.New(errs.KindDatabaseError, "listing pipeline runs", err)
	}
	defer rows.Close()

	var runs []map[string]any
	for rows.Next() {
		var blob string
		if err := rows.Scan(&blob); err != nil {
			return nil, errs.New(errs.KindDatabaseError, "scanning pipeline run", err)
		}
		var m map[string]any
		if err := json.Unmarshal([]byte(blob), &m); err != nil {
			return nil, errs.New(errs.KindDatabaseError, "decoding pipeline run", err)
		}
		runs = append(runs, m)
	}
	return runs, rows.Err()
}

// SaveScript upserts rec.
func (s *Store) SaveScript(ctx context.Context, rec *domain.ScriptRecord) error {
	return s.withWriteLock(func() error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO user_scripts (id, name, encrypted_code, checksum, pipeline_id, version, is_active)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				name = excluded.name, encrypted_code = excluded.encrypted_code, checksum = excluded.checksum,
				pipeline_id = excluded.pipeline_id, version = excluded.version, is_active = excluded.is_active`,
			rec.ID, rec.Name, rec.EncryptedCode, fmt.Sprintf("%x", rec.Checksum), rec.PipelineID, rec.Version, boolToInt(rec.Active))
		if err != nil {
			return errs.New(errs.KindDatabaseError, "saving user script", err)
		}
		return nil
	})
}

// Resolve implements executor.ScriptResolver, loading scriptID and
// decrypting it with the store's master key. Scripts sealed under a
// password are out of scope for the unattended pipeline executor and
// return an error.
func (s *Store) Resolve(ctx context.Context, scriptID string) (string, error) {
	row := s.db.QueryRowContext(ctx, `SELECT encrypted_code, checksum, pipeline_id, version, is_active FROM user_scripts WHERE id = ?`, scriptID)
	var encrypted []byte
	var checksumHex, pipelineID sql.NullString
	var version int
	var active int
	if err := row.Scan(&encrypted, &checksumHex, &pipelineID, &version, &active); err != nil {
		if err == sql.ErrNoRows {
			return "", errs.New(errs.KindConfigInvalid, fmt.Sprintf("script %s not found", scriptID), nil)
		}
		return "", errs.New(errs.KindDatabaseError, "loading user script", err)
	}

	decoded, err := hex.DecodeString(checksumHex.String)
	if err != nil || len(decoded) != 32 {
		return "", errs.New(errs.KindIntegrityError, "decoding stored checksum", err)
	}
	var checksum [32]byte
	copy(checksum[:], decoded)
	var pid *string
	if pipelineID.Valid {
		pid = &pipelineID.String
	}
	rec := &domain.ScriptRecord{ID: scriptID, EncryptedCode: encrypted, Checksum: checksum, PipelineID: pid, Version: version, Active: active != 0}

	return script.Open(rec, "", s.masterKey)
}

// LogScheduleEvent implements scheduler.EventLogger, recording an
// EXECUTED/ERROR/MISSED cron firing into the changelog.
func (s *Store) LogScheduleEvent(ctx context.Context, pipelineID string, kind scheduler.EventKind, detail string) error {
	return s.appendChangelog(ctx, "schedule", pipelineID, string(kind), detail)
}

// AppendChangelog records one entity lifecycle event.
func (s *Store) AppendChangelog(ctx context.Context, entityType, entityID, action, detail string) error {
	return s.appendChangelog(ctx, entityType, entityID, action, detail)
}

func (s *Store) appendChangelog(ctx context.Context, entityType, entityID, action, detail string) error {
	return s.withWriteLock(func() error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO changelog (logged_at, entity_type, entity_id, action, detail) VALUES (?, ?, ?, ?, ?)`,
			time.Now(), entityType, entityID, action, detail)
		if err != nil {
			return errs.New(errs.KindDatabaseError, "appending changelog entry", err)
		}
		return nil
	})
}

// AppendLog records one structured log line, mirroring what the
// slog-based ambient logger already writes to its configured sink.
func (s *Store) AppendLog(ctx context.Context, level, message string, fields map[string]any) error {
	blob, err := json.Marshal(fields)
	if err != nil {
		return errs.New(errs.KindDatabaseError, "encoding log fields", err)
	}
	return s.withWriteLock(func() error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO logs (logged_at, level, message, fields) VALUES (?, ?, ?, ?)`,
			time.Now(), level, message, string(blob))
		if err != nil {
			return errs.New(errs.KindDatabaseError, "appending log entry", err)
		}
		return nil
	})
}

// SaveChunk upserts one chunk's wire form, indexed by document id and
// pipeline run id for retrieval.
func (s *Store) SaveChunk(ctx context.Context, c *domain.Chunk) error {
	blob, err := json.Marshal(c.ToMap())
	if err != nil {
		return errs.New(errs.KindDatabaseError, "encoding chunk", err)
	}
	return s.withWriteLock(func() error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO chunks (id, document_id, pipeline_run_id, chunk) VALUES (?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET chunk = excluded.chunk`,
			c.ID, c.Meta.DocumentID, c.Meta.PipelineRunID, string(blob))
		if err != nil {
			return errs.New(errs.KindDatabaseError, "saving chunk", err)
		}
		return nil
	})
}

// ChunksForDocument returns every chunk saved for documentID.
func (s *Store) ChunksForDocument(ctx context.Context, documentID string) ([]*domain.Chunk, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT chunk FROM chunks WHERE document_id = ?`, documentID)
	if err != nil {
		return nil, errs.New(errs.KindDatabaseError, "listing chunks", err)
	}
	defer rows.Close()

	var chunks []*domain.Chunk
	for rows.Next() {
		var blob string
		if err := rows.Scan(&blob); err != nil {
			return nil, errs.New(errs.KindDatabaseError, "scanning chunk", err)
		}
		var m map[string]any
		if err := json.Unmarshal([]byte(blob), &m); err != nil {
			return nil, errs.New(errs.KindDatabaseError, "decoding chunk", err)
		}
		c, err := domain.ChunkFromMap(m)
		if err != nil {
			return nil, errs.New(errs.KindDatabaseError, "reconstructing chunk", err)
		}
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

// DBConnection is a named, reusable exporter target registered once
// and referenced by name from a DB_EXPORTER step's params.
type DBConnection struct {
	Name   string
	Driver string
	DSN    string
	Active bool
}

// SaveDBConnection upserts conn.
func (s *Store) SaveDBConnection(ctx context.Context, conn DBConnection) error {
	return s.withWriteLock(func() error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO db_connections (name, driver, dsn, is_active) VALUES (?, ?, ?, ?)
			ON CONFLICT(name) DO UPDATE SET driver = excluded.driver, dsn = excluded.dsn, is_active = excluded.is_active`,
			conn.Name, conn.Driver, conn.DSN, boolToInt(conn.Active))
		if err != nil {
			return errs.New(errs.KindDatabaseError, "saving db connection", err)
		}
		return nil
	})
}

// DBConnectionByName loads a registered connection by name.
func (s *Store) DBConnectionByName(ctx context.Context, name string) (DBConnection, error) {
	row := s.db.QueryRowContext(ctx, `SELECT name, driver, dsn, is_active FROM db_connections WHERE name = ?`, name)
	var conn DBConnection
	var active int
	if err := row.Scan(&conn.Name, &conn.Driver, &conn.DSN, &active); err != nil {
		if err == sql.ErrNoRows {
			return DBConnection{}, errs.New(errs.KindConfigInvalid, fmt.Sprintf("db connection %s not found", name), nil)
		}
		return DBConnection{}, errs.New(errs.KindDatabaseError, "loading db connection", err)
	}
	conn.Active = active != 0
	return conn, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
