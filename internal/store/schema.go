package store

const schema = `
CREATE TABLE IF NOT EXISTS pipelines (
	id            TEXT PRIMARY KEY,
	name          TEXT NOT NULL,
	description   TEXT NOT NULL DEFAULT '',
	config        TEXT NOT NULL,
	schedule      TEXT NOT NULL DEFAULT '',
	version       INTEGER NOT NULL DEFAULT 1,
	is_active     INTEGER NOT NULL DEFAULT 1,
	created_at    DATETIME NOT NULL,
	updated_at    DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS pipeline_runs (
	id           TEXT PRIMARY KEY,
	pipeline_id  TEXT NOT NULL,
	status       TEXT NOT NULL,
	start_time   DATETIME NOT NULL,
	end_time     DATETIME,
	run          TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_pipeline_runs_pipeline_start
	ON pipeline_runs (pipeline_id, start_time);
CREATE INDEX IF NOT EXISTS idx_pipeline_runs_status
	ON pipeline_runs (status);

CREATE TABLE IF NOT EXISTS user_scripts (
	id             TEXT PRIMARY KEY,
	name           TEXT NOT NULL,
	encrypted_code BLOB NOT NULL,
	checksum       TEXT NOT NULL,
	pipeline_id    TEXT,
	version        INTEGER NOT NULL DEFAULT 1,
	is_active      INTEGER NOT NULL DEFAULT 1
);

CREATE TABLE IF NOT EXISTS db_connections (
	name       TEXT PRIMARY KEY,
	driver     TEXT NOT NULL,
	dsn        TEXT NOT NULL,
	is_active  INTEGER NOT NULL DEFAULT 1
);

CREATE TABLE IF NOT EXISTS chunks (
	id              TEXT PRIMARY KEY,
	document_id     TEXT NOT NULL,
	pipeline_run_id TEXT NOT NULL DEFAULT '',
	chunk           TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_chunks_document
	ON chunks (document_id);
CREATE INDEX IF NOT EXISTS idx_chunks_pipeline_run
	ON chunks (pipeline_run_id);

CREATE TABLE IF NOT EXISTS logs (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	logged_at   DATETIME NOT NULL,
	level       TEXT NOT NULL,
	message     TEXT NOT NULL,
	fields      TEXT NOT NULL DEFAULT '{}'
);
CREATE INDEX IF NOT EXISTS idx_logs_logged_at
	ON logs (logged_at);

CREATE TABLE IF NOT EXISTS changelog (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	logged_at   DATETIME NOT NULL,
	entity_type TEXT NOT NULL,
	entity_id   TEXT NOT NULL,
	action      TEXT NOT NULL,
	detail      TEXT NOT NULL DEFAULT ''
);
`
