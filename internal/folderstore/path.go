package folderstore

import (
	"path/filepath"
	"runtime"
	"strings"
)

// NormalizePath collapses redundant separators and, on case-insensitive
// filesystems, lowercases the result so (library_id, path) uniqueness
// holds regardless of how a caller spelled the path.
func NormalizePath(path string) string {
	clean := filepath.Clean(path)
	if caseInsensitiveFS() {
		clean = strings.ToLower(clean)
	}
	return clean
}

func caseInsensitiveFS() bool {
	return runtime.GOOS == "windows" || runtime.GOOS == "darwin"
}
