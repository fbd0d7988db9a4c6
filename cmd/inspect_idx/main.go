// Inspect a package index file.
// Usage: go run ./cmd/inspect_idx <path-to-index>
// Example: go run ./cmd/inspect_idx packages/demo/index
package main

import (
	"fmt"
	"os"

	"PackageDB/storage_engine/index"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintf(os.Stderr, "Usage: %s <index>\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Example: %s packages/demo/index\n", os.Args[0])
		os.Exit(1)
	}
	path := os.Args[1]
	if err := index.InspectFile(path); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
