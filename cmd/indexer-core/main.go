// Package main provides the entry point for the indexer-core CLI.
package main

import (
	"os"

	"github.com/localsearch/indexer-core/cmd/indexer-core/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
