package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "flitpipe",
	Short: "flitpipe generates and ingests synthetic BNPL behavioral data",
	Long: `flitpipe is the data pipeline behind the Flit synthetic BNPL dataset.

It backfills historical transactions from the simtom streaming API into the
warehouse, generates supporting entity data (A/B test assignments, logistics
records, support tickets), overlays treatment effects for experiment analysis,
and drains the Redis ML prediction cache into warehouse tables.
`,
	SilenceUsage: true,
}

func init() {
	rootCmd.AddCommand(CmdIngest())
	rootCmd.AddCommand(CmdGenerate())
	rootCmd.AddCommand(CmdOverlay())
	rootCmd.AddCommand(CmdDrain())
	rootCmd.AddCommand(CmdStatus())
	rootCmd.AddCommand(CmdVersion())
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
