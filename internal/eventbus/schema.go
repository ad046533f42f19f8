package eventbus

const schemaVersion = 1

const schemaSQL = `
CREATE TABLE events (
	id           TEXT PRIMARY KEY,
	library_id   TEXT NOT NULL,
	event_type   TEXT NOT NULL,
	file_path    TEXT NOT NULL,
	old_path     TEXT NOT NULL DEFAULT '',
	file_size    INTEGER,
	detected_at  TEXT NOT NULL,
	processed    INTEGER NOT NULL DEFAULT 0,
	processed_at TEXT,
	attempts     INTEGER NOT NULL DEFAULT 0,
	last_error   TEXT NOT NULL DEFAULT ''
);

CREATE INDEX idx_events_library_detected ON events (library_id, detected_at, id);
CREATE INDEX idx_events_unprocessed ON events (library_id, processed);

CREATE TABLE cursors (
	subscriber_group  TEXT NOT NULL,
	library_id        TEXT NOT NULL,
	last_event_id     TEXT NOT NULL DEFAULT '',
	last_detected_at  TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (subscriber_group, library_id)
);

CREATE TABLE acks (
	subscriber_group TEXT NOT NULL,
	event_id         TEXT NOT NULL,
	PRIMARY KEY (subscriber_group, event_id)
);
`
