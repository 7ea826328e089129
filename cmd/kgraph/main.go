// Command kgraph extracts a knowledge graph from a document and renders it
// as an interactive HTML page.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "kgraph:", err)
		os.Exit(1)
	}
}
