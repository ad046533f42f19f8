package fsport

import (
	"context"
	"testing"
)

func TestMemFSListDirSortedAndDirectChildrenOnly(t *testing.T) {
	fs := NewMemFS()
	fs.AddFile("/movies/alpha (2001).mkv", 10, 1000)
	fs.AddFile("/movies/beta (2002).mkv", 20, 2000)
	fs.AddDir("/movies/extras")
	fs.AddFile("/movies/extras/deleted-scene.mkv", 5, 500)

	entries, err := fs.ListDir(context.Background(), "/movies")
	if err != nil {
		t.Fatalf("ListDir: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 direct children, got %d: %+v", len(entries), entries)
	}
	if entries[0].Name != "alpha (2001).mkv" || entries[1].Name != "beta (2002).mkv" || entries[2].Name != "extras" {
		t.Fatalf("expected sorted direct children, got %+v", entries)
	}
	if !entries[2].IsDir {
		t.Fatalf("expected extras to be a directory")
	}
}

func TestMemFSSymlinkCycleResolvesWithoutHanging(t *testing.T) {
	fs := NewMemFS()
	fs.AddSymlink("/a", "/b")
	fs.AddSymlink("/b", "/a")

	resolved, err := fs.Canonicalize(context.Background(), "/a")
	if err != nil {
		t.Fatalf("Canonicalize: %v", err)
	}
	if resolved != "/a" && resolved != "/b" {
		t.Fatalf("expected cycle resolution to terminate at one of the cycle members, got %s", resolved)
	}
}

func TestMemFSCanonicalizeFollowsSymlink(t *testing.T) {
	fs := NewMemFS()
	fs.AddDir("/real/target")
	fs.AddSymlink("/link", "/real/target")

	resolved, err := fs.Canonicalize(context.Background(), "/link")
	if err != nil {
		t.Fatalf("Canonicalize: %v", err)
	}
	if resolved != "/real/target" {
		t.Fatalf("expected symlink to resolve to target, got %s", resolved)
	}
}
