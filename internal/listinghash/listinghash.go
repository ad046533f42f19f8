// Package listinghash computes the deterministic cache key the Scan
// Cursor Store uses to detect an unchanged folder.
package listinghash

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strconv"
	"strings"

	"ferrex/internal/fsport"
)

// Compute hashes the lexicographically sorted concatenation of
// "{name}:{d|f}:{size}:{mtime_ms}\n" for every entry. The result is
// stable across process restarts and hosts.
func Compute(entries []fsport.Entry) string {
	records := make([]string, 0, len(entries))
	for _, e := range entries {
		kind := "f"
		if e.IsDir {
			kind = "d"
		}
		records = append(records, e.Name+":"+kind+":"+strconv.FormatInt(e.Size, 10)+":"+strconv.FormatInt(e.MtimeMs, 10)+"\n")
	}
	sort.Strings(records)

	h := sha256.New()
	h.Write([]byte(strings.Join(records, "")))
	return hex.EncodeToString(h.Sum(nil))
}
