// BitPulse - streaming randomness anomaly monitor
// Watches a hardware entropy stream for statistical deviations in real time.

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	version = "0.1.0-dev"

	// CLI flags
	openFile    string
	livePath    string
	devicePort  string
	simulate    bool
	seed        int64
	gameMode    bool
	configFile  string
	windowSize  int
	sensitivity float64
	noTUI       bool
	verbose     bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "bitpulse",
		Short: "BitPulse - streaming randomness anomaly monitor",
		Long: `BitPulse streams bytes from a TrueRNG hardware entropy source,
runs sliding-window statistical tests over the bit stream, and
flags deviations from ideal randomness as they happen.

Features:
  - Frequency, runs and chi-square tests over a moving window
  - Live TUI with a scrolling signal wave and anomaly spikes
  - Capture files replayable with full re-analysis
  - Intention game scoring anomalies per instruction turn`,
		RunE: run,
	}

	rootCmd.Flags().StringVarP(&openFile, "open", "i", "", "Replay a capture file instead of streaming live")
	rootCmd.Flags().StringVar(&livePath, "live", "", "Persist the live stream to a capture file or directory (directories get a timestamped name)")
	rootCmd.Flags().Lookup("live").NoOptDefVal = "captures"
	rootCmd.Flags().StringVarP(&devicePort, "device", "d", "", "Serial port of the TrueRNG device (default: auto-detect)")
	rootCmd.Flags().BoolVar(&simulate, "simulate", false, "Use a simulated PRNG source instead of hardware")
	rootCmd.Flags().Int64Var(&seed, "seed", 0, "Seed for the simulated source (0 = time-based)")
	rootCmd.Flags().BoolVarP(&gameMode, "game", "g", false, "Enable the intention game overlay")
	rootCmd.Flags().StringVarP(&configFile, "config", "c", "", "Path to config file (YAML)")
	rootCmd.Flags().IntVarP(&windowSize, "window", "w", 0, "Analysis window size in bytes")
	rootCmd.Flags().Float64VarP(&sensitivity, "sensitivity", "s", 0, "Anomaly p-value cutoff")
	rootCmd.Flags().BoolVar(&noTUI, "no-tui", false, "Run headless with log output only")
	rootCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("BitPulse version %s\n", version)
		},
	}
	rootCmd.AddCommand(versionCmd)

	devicesCmd := &cobra.Command{
		Use:   "devices",
		Short: "List candidate TrueRNG serial devices",
		RunE:  listDevices,
	}
	rootCmd.AddCommand(devicesCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
