package fsport

import (
	"context"
	"fmt"
	"path"
	"sort"
	"strings"
)

// MemNode is one file or directory in a MemFS tree.
type MemNode struct {
	Size    int64
	MtimeMs int64
	IsDir   bool
	// SymlinkTo, if non-empty, makes this node a symlink whose
	// canonical target is the given path; IsDir is ignored.
	SymlinkTo string
}

// MemFS is an in-memory FS used by tests to exercise the Scan actor
// deterministically, without touching disk.
type MemFS struct {
	nodes map[string]MemNode
}

// NewMemFS constructs an empty in-memory filesystem rooted at "/".
func NewMemFS() *MemFS {
	return &MemFS{nodes: map[string]MemNode{"/": {IsDir: true}}}
}

// AddDir registers a directory at p, creating parent directories as
// needed.
func (m *MemFS) AddDir(p string) {
	p = clean(p)
	m.nodes[p] = MemNode{IsDir: true}
	m.ensureParents(p)
}

// AddFile registers a file at p with the given size and modification
// time in epoch milliseconds.
func (m *MemFS) AddFile(p string, size, mtimeMs int64) {
	p = clean(p)
	m.nodes[p] = MemNode{Size: size, MtimeMs: mtimeMs}
	m.ensureParents(p)
}

// AddSymlink registers a symlink at p resolving to target.
func (m *MemFS) AddSymlink(p, target string) {
	p = clean(p)
	m.nodes[p] = MemNode{SymlinkTo: clean(target)}
	m.ensureParents(p)
}

func (m *MemFS) ensureParents(p string) {
	for dir := path.Dir(p); dir != "/" && dir != "."; dir = path.Dir(dir) {
		if _, ok := m.nodes[dir]; !ok {
			m.nodes[dir] = MemNode{IsDir: true}
		}
	}
}

func clean(p string) string {
	p = path.Clean("/" + p)
	return p
}

func (m *MemFS) ListDir(ctx context.Context, dir string) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	dir = m.resolve(clean(dir))
	node, ok := m.nodes[dir]
	if !ok || !node.IsDir {
		return nil, fmt.Errorf("fsport: not a directory: %s", dir)
	}

	prefix := dir
	if prefix != "/" {
		prefix += "/"
	}

	var entries []Entry
	for p, n := range m.nodes {
		if p == dir || !strings.HasPrefix(p, prefix) {
			continue
		}
		rest := strings.TrimPrefix(p, prefix)
		if strings.Contains(rest, "/") {
			continue // not a direct child
		}
		if n.SymlinkTo != "" {
			// Follow the link for entry metadata, matching OSFS.
			if target, ok := m.nodes[m.resolve(p)]; ok {
				n = target
			}
		}
		entries = append(entries, Entry{
			Name:    rest,
			IsDir:   n.IsDir,
			Size:    n.Size,
			MtimeMs: n.MtimeMs,
		})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries, nil
}

func (m *MemFS) Canonicalize(ctx context.Context, p string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return m.resolve(clean(p)), nil
}

// resolve follows symlinks, bounding the chain length to detect cycles
// the way the OS implementation's EvalSymlinks would refuse to loop
// forever.
func (m *MemFS) resolve(p string) string {
	seen := map[string]bool{}
	for i := 0; i < 64; i++ {
		node, ok := m.nodes[p]
		if !ok || node.SymlinkTo == "" {
			return p
		}
		if seen[p] {
			return p // cycle; caller's traversal guard handles it
		}
		seen[p] = true
		p = node.SymlinkTo
	}
	return p
}
