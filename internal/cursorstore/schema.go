package cursorstore

// schemaVersion 2 adds entry_names, the newline-joined sorted entry
// names the listing_hash was computed over, so Diff can report which
// entries actually changed rather
// than only that the hash no longer matches.
const schemaVersion = 2

const schemaSQL = `
CREATE TABLE cursors (
	library_id        TEXT NOT NULL,
	path_hash         TEXT NOT NULL,
	folder_path_norm  TEXT NOT NULL,
	listing_hash      TEXT NOT NULL,
	entry_count       INTEGER NOT NULL DEFAULT 0,
	entry_names       TEXT NOT NULL DEFAULT '',
	last_scan_at      TEXT NOT NULL,
	last_modified_at  TEXT NOT NULL,
	device_id         TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (library_id, path_hash)
);

CREATE INDEX idx_cursors_library ON cursors (library_id);
CREATE INDEX idx_cursors_last_scan ON cursors (library_id, last_scan_at);
`
