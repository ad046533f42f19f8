package folderstore

const schemaVersion = 1

const schemaSQL = `
CREATE TABLE folders (
	id               TEXT PRIMARY KEY,
	library_id       TEXT NOT NULL,
	parent_folder_id TEXT,
	path_norm        TEXT NOT NULL,
	kind             TEXT NOT NULL,
	status           TEXT NOT NULL,
	total_files      INTEGER NOT NULL DEFAULT 0,
	processed_files  INTEGER NOT NULL DEFAULT 0,
	total_size_bytes INTEGER NOT NULL DEFAULT 0,
	file_types       TEXT NOT NULL DEFAULT '',
	last_error       TEXT NOT NULL DEFAULT '',
	retry_count      INTEGER NOT NULL DEFAULT 0,
	next_retry_at    TEXT,
	first_seen_at    TEXT NOT NULL,
	last_scanned_at  TEXT,
	UNIQUE (library_id, path_norm)
);

CREATE INDEX idx_folders_library_status ON folders (library_id, status);
CREATE INDEX idx_folders_parent ON folders (parent_folder_id);
`
