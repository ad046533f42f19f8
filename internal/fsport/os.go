package fsport

import (
	"context"
	"os"
	"path/filepath"
	"sort"
)

// OSFS is the real filesystem implementation of FS.
type OSFS struct{}

// NewOSFS constructs an OSFS.
func NewOSFS() *OSFS { return &OSFS{} }

func (OSFS) ListDir(ctx context.Context, path string) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	dirEntries, err := os.ReadDir(path)
	if err != nil {
		return nil, err
	}

	entries := make([]Entry, 0, len(dirEntries))
	for _, de := range dirEntries {
		var info os.FileInfo
		var err error
		if de.Type()&os.ModeSymlink != 0 {
			// Follow symlinks so a linked directory is traversable; the
			// per-scan visited set breaks any cycle this introduces.
			info, err = os.Stat(filepath.Join(path, de.Name()))
		} else {
			info, err = de.Info()
		}
		if err != nil {
			// A file removed between readdir and stat is skipped rather
			// than failing the whole listing.
			continue
		}
		entries = append(entries, Entry{
			Name:    de.Name(),
			IsDir:   info.IsDir(),
			Size:    info.Size(),
			MtimeMs: info.ModTime().UnixMilli(),
		})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries, nil
}

func (OSFS) Canonicalize(ctx context.Context, path string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	return filepath.EvalSymlinks(abs)
}
