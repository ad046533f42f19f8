package librarystore

const schemaVersion = 1

const schemaSQL = `
CREATE TABLE libraries (
	id                  TEXT PRIMARY KEY,
	name                TEXT NOT NULL,
	type                TEXT NOT NULL,
	root_paths          TEXT NOT NULL,
	scan_interval_mins  INTEGER NOT NULL DEFAULT 0,
	enabled             INTEGER NOT NULL DEFAULT 1,
	auto_scan           INTEGER NOT NULL DEFAULT 0,
	watch_for_changes   INTEGER NOT NULL DEFAULT 0,
	analyze_on_scan     INTEGER NOT NULL DEFAULT 1,
	max_retry_attempts  INTEGER NOT NULL DEFAULT 5,
	created_at          TEXT NOT NULL,
	updated_at          TEXT NOT NULL,
	last_scan_at        TEXT,
	next_scan_at        TEXT
);

CREATE INDEX idx_libraries_enabled ON libraries (enabled);
`
