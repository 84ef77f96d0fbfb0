package main

import (
	"fmt"
	"github.com/spf13/cobra"
	"os"
)

var rootCmd = &cobra.Command{
	Use:   "calibrator",
	Short: "UWB antenna calibration service",
	Long: `calibrator fits local-to-world transforms for UWB antennas.

The serve command runs the calibration workflow against live antennas over MQTT,
persists results to PostgreSQL and streams progress over a websocket. The solve
command fits a transform offline from a file of point pairs.`,
	SilenceUsage: true,
}

func main() {
	rootCmd.AddCommand(newServeCmd(), newSolveCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
