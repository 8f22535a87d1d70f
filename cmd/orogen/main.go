// Command orogen runs the terrain task service and its one-shot
// rendering pipeline. All behavior lives in internal/cli.
package main

import (
	"os"

	"github.com/orogen/orogen/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
