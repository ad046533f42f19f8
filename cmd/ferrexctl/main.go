// ferrexctl is the operator CLI for the scan core: manage libraries
// and run scans directly against the same stores ferrexd opens,
// without talking to a running daemon. There is no control socket:
// ferrexctl operates as a one-shot tool that opens the SQLite stores
// itself rather than speaking a bespoke control protocol to ferrexd.
// Run ferrexd separately for continuous watching/scheduling; run
// ferrexctl for ad hoc library management and foreground scans.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
)

func main() {
	cmd := newRootCommand()
	if err := cmd.Execute(); err != nil {
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}
