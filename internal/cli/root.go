// Package cli wires the orogen command-line interface.
package cli

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "orogen",
	Short: "Off-thread grid computation pool",
	Long: `Orogen offloads CPU-bound grid computations (procedural noise
generation, heightmap encoding, iterative erosion simulation) onto a
fixed pool of background execution units, exposed over HTTP or run
one-shot from the command line.`,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}
