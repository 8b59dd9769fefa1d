// Command foremanctl runs the dispatch loop headless and inspects what the
// extension wrote to disk.
package main

import (
	"fmt"
	"os"
)

// set at build time via ldflags
var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "foremanctl:", err)
		os.Exit(1)
	}
}
