// Package main provides the entry point for the reposearch CLI.
package main

import (
	"os"

	"github.com/git-pkgs/reposearch/cmd/reposearch/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
