package folderstore

import (
	"database/sql"
	"strings"
	"time"

	"ferrex/internal/errs"
	"ferrex/internal/ids"
)

func parentID(id *ids.FolderId) any {
	if id == nil {
		return nil
	}
	return id.String()
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseNullableTime(ns sql.NullString) (time.Time, bool) {
	if !ns.Valid || ns.String == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339Nano, ns.String)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

func joinFileTypes(set map[string]struct{}) string {
	if len(set) == 0 {
		return ""
	}
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	return strings.Join(out, ",")
}

func splitFileTypes(s string) map[string]struct{} {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make(map[string]struct{}, len(parts))
	for _, p := range parts {
		if p != "" {
			out[p] = struct{}{}
		}
	}
	return out
}

func parseFolderID(s string) (ids.FolderId, error) {
	id, err := ids.ParseFolderId(s)
	if err != nil {
		return ids.FolderId{}, errs.New(errs.KindInvariant, "folderstore.parse_id", "corrupt folder id", err)
	}
	return id, nil
}

func parseLibraryID(s string) (ids.LibraryId, error) {
	id, err := ids.ParseLibraryId(s)
	if err != nil {
		return ids.LibraryId{}, errs.New(errs.KindInvariant, "folderstore.parse_id", "corrupt library id", err)
	}
	return id, nil
}

// isConstraintViolation reports whether err looks like a SQLite
// constraint failure, which is fatal rather than retryable.
func isConstraintViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint") ||
		strings.Contains(msg, "NOT NULL constraint") ||
		strings.Contains(msg, "CHECK constraint")
}
