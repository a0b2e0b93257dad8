package cli

import (
	"github.com/spf13/cobra"
)

// RootOptions are flags shared by every command.
type RootOptions struct {
	ConfigFile string
	LogLevel   string
}

func NewRootCmd() *cobra.Command {
	opts := &RootOptions{}

	rootCmd := &cobra.Command{
		Use:   "orderload",
		Short: "orderload - incremental loader for staged order files",
		Long: `orderload moves CSV order batches from an S3 bucket into a relational
database or a DuckDB warehouse. Every object is loaded at most once: a load
ledger kept next to the target table records each committed key.`,
		SilenceUsage: true,
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&opts.ConfigFile, "config", "c", "", "Path to a YAML config file")
	rootCmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "", "Override the log level (debug, info, warn, error)")

	rootCmd.AddCommand(NewLoadCmd(opts), NewLedgerCmd(opts), NewGenerateCmd(opts))

	return rootCmd
}
