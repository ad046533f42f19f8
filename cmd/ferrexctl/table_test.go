package main

import (
	"strings"
	"testing"

	"github.com/spf13/cobra"
)

func TestRenderTableEmptyHeaders(t *testing.T) {
	if got := renderTable(nil, [][]string{{"a"}}); got != "" {
		t.Fatalf("expected empty string for no headers, got %q", got)
	}
}

func TestRenderTableIncludesRows(t *testing.T) {
	out := renderTable([]string{"Name", "Status"}, [][]string{
		{"Movies", "Enabled"},
		{"Series", "Disabled"},
	})
	for _, want := range []string{"Name", "Status", "Movies", "Enabled", "Series", "Disabled"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected rendered table to contain %q, got:\n%s", want, out)
		}
	}
}

func TestRenderTableShortRowPadsMissingCells(t *testing.T) {
	out := renderTable([]string{"A", "B", "C"}, [][]string{{"x"}})
	if !strings.Contains(out, "x") {
		t.Fatalf("expected short row's cell to render, got:\n%s", out)
	}
}

func TestShouldSkipConfigWalksToAncestor(t *testing.T) {
	parent := &cobra.Command{Use: "root", Annotations: map[string]string{"skipConfigLoad": "true"}}
	child := &cobra.Command{Use: "help"}
	parent.AddCommand(child)

	if !shouldSkipConfig(child) {
		t.Fatal("expected child to inherit skipConfigLoad from ancestor")
	}
}

func TestShouldSkipConfigFalseByDefault(t *testing.T) {
	cmd := &cobra.Command{Use: "scan"}
	if shouldSkipConfig(cmd) {
		t.Fatal("expected command without annotation to not skip config")
	}
}

func TestDefaultDataDirNonEmpty(t *testing.T) {
	if defaultDataDir() == "" {
		t.Fatal("expected a non-empty default data dir")
	}
}
