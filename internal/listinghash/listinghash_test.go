package listinghash

import (
	"testing"

	"ferrex/internal/fsport"
)

func TestComputeIsOrderIndependent(t *testing.T) {
	a := []fsport.Entry{
		{Name: "alpha (2001).mkv", Size: 10, MtimeMs: 1000},
		{Name: "beta (2002).mkv", Size: 20, MtimeMs: 2000},
	}
	b := []fsport.Entry{a[1], a[0]}

	if Compute(a) != Compute(b) {
		t.Fatalf("expected hash to be independent of input entry order")
	}
}

func TestComputeChangesWithContent(t *testing.T) {
	base := []fsport.Entry{{Name: "alpha (2001).mkv", Size: 10, MtimeMs: 1000}}
	changed := []fsport.Entry{{Name: "alpha (2001).mkv", Size: 11, MtimeMs: 1000}}

	if Compute(base) == Compute(changed) {
		t.Fatalf("expected size change to alter the listing hash")
	}
}

func TestComputeEmptySetIsDeterministic(t *testing.T) {
	got := Compute(nil)
	want := Compute([]fsport.Entry{})
	if got != want {
		t.Fatalf("expected empty listings to hash identically, got %s vs %s", got, want)
	}
}

func TestComputeDistinguishesFilesFromDirs(t *testing.T) {
	file := []fsport.Entry{{Name: "extras", IsDir: false, Size: 0, MtimeMs: 1}}
	dir := []fsport.Entry{{Name: "extras", IsDir: true, Size: 0, MtimeMs: 1}}

	if Compute(file) == Compute(dir) {
		t.Fatalf("expected file/dir kind to affect the hash")
	}
}
