// Command crosscat is the CLI entrypoint for the streaming
// cross-categorization inference engine (spec.md §6 CLI surface).
package main

import (
	"os"

	"github.com/crosscatio/crosscat/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
