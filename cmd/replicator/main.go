package main

// ============================================================================
// Catalog Replicator - Entry Point
// ============================================================================
//
// All command logic lives in internal/cli. main only turns panics and
// command errors into a non-zero exit status.
//
// Usage:
//   replicator run -c configs/replicator.yaml
//   replicator status
//   replicator sync
//
// ============================================================================

import (
	"fmt"
	"os"

	"github.com/ChuLiYu/catalog-replicator/internal/cli"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(os.Stderr, "fatal: %v\n", r)
			os.Exit(2)
		}
	}()

	if err := cli.BuildCLI().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
