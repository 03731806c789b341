// Command flixbridge runs the Flix compiler behind a job queue.
package main

import (
	"os"

	"github.com/Iron-Ham/flixbridge/internal/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
