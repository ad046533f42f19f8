package sqlstore

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
)

const testSchema = `CREATE TABLE widgets (id INTEGER PRIMARY KEY, name TEXT NOT NULL);`

func TestOpenCreatesSchemaOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	db, err := Open(path, 1, testSchema)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer db.Close()

	if _, err := db.ExecRetry(context.Background(), "INSERT INTO widgets (name) VALUES (?)", "gear"); err != nil {
		t.Fatalf("ExecRetry: %v", err)
	}

	db2, err := Open(path, 1, testSchema)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer db2.Close()

	var count int
	if err := db2.Conn.QueryRow("SELECT COUNT(1) FROM widgets").Scan(&count); err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected schema/data to persist across reopen, got count=%d", count)
	}
}

func TestOpenRejectsSchemaVersionMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	db, err := Open(path, 1, testSchema)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	db.Close()

	if _, err := Open(path, 2, testSchema); err == nil {
		t.Fatalf("expected schema version mismatch error")
	}
}

func TestWithTxRollsBackOnError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := Open(path, 1, testSchema)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer db.Close()

	boom := errBoom{}
	err = db.WithTx(context.Background(), func(tx *sql.Tx) error {
		if _, err := tx.Exec("INSERT INTO widgets (name) VALUES (?)", "ghost"); err != nil {
			return err
		}
		return boom
	})
	if err != boom {
		t.Fatalf("expected WithTx to propagate the callback error, got %v", err)
	}

	var count int
	if err := db.Conn.QueryRow("SELECT COUNT(1) FROM widgets").Scan(&count); err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected rollback to discard the insert, got count=%d", count)
	}
}

type errBoom struct{}

func (errBoom) Error() string { return "boom" }
