package main

import (
	"fmt"
	"io"
	"os"

	"github.com/mattn/go-isatty"
)

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./ferrex-data"
	}
	return fmt.Sprintf("%s/.local/share/ferrex", home)
}

// isTerminal reports whether writer is an interactive terminal, so
// progress output can rewrite one line in place instead of scrolling.
func isTerminal(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
