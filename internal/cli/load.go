package cli

import (
	"github.com/spf13/cobra"
)

const (
	targetPostgres  = "postgres"
	targetWarehouse = "warehouse"
)

type LoadOptions struct {
	DryRun   bool
	Schedule string
}

func NewLoadCmd(root *RootOptions) *cobra.Command {
	opts := &LoadOptions{}

	cmd := &cobra.Command{
		Use:   "load",
		Short: "Load new order files from the bucket",
	}

	cmd.PersistentFlags().BoolVar(&opts.DryRun, "dry-run", false, "List and filter only; report what would be loaded")
	cmd.PersistentFlags().StringVar(&opts.Schedule, "schedule", "", "Cron spec to repeat the load until interrupted, e.g. \"*/15 * * * *\"")

	postgres := &cobra.Command{
		Use:   targetPostgres,
		Short: "Load into the relational sink (SINK_DRIVER, DATABASE_URL)",
		RunE: func(c *cobra.Command, args []string) error {
			return runLoad(c, root, opts, targetPostgres)
		},
	}

	warehouse := &cobra.Command{
		Use:   targetWarehouse,
		Short: "Load into the DuckDB warehouse with COPY from the stage, then archive",
		RunE: func(c *cobra.Command, args []string) error {
			return runLoad(c, root, opts, targetWarehouse)
		},
	}

	cmd.AddCommand(postgres, warehouse)
	return cmd
}

func NewLedgerCmd(root *RootOptions) *cobra.Command {
	var target string

	cmd := &cobra.Command{
		Use:   "ledger",
		Short: "Inspect or bootstrap the load ledger",
	}
	cmd.PersistentFlags().StringVarP(&target, "target", "t", targetPostgres, "Ledger location: postgres or warehouse")

	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Create the ledger table if it does not exist",
		RunE: func(c *cobra.Command, args []string) error {
			return runLedgerInit(c, root, target)
		},
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "Print every loaded key with its load time",
		RunE: func(c *cobra.Command, args []string) error {
			return runLedgerList(c, root, target)
		},
	}

	cmd.AddCommand(initCmd, listCmd)
	return cmd
}

func NewGenerateCmd(root *RootOptions) *cobra.Command {
	var count int
	var seed int64

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Upload a batch of synthetic orders to the active prefix",
		RunE: func(c *cobra.Command, args []string) error {
			return runGenerate(c, root, count, seed)
		},
	}

	cmd.Flags().IntVarP(&count, "count", "n", 1000, "Number of orders in the batch")
	cmd.Flags().Int64Var(&seed, "seed", 0, "Random seed (0 picks one from the clock)")

	cmd.AddCommand(newSeedCustomersCmd(root))
	return cmd
}

func newSeedCustomersCmd(root *RootOptions) *cobra.Command {
	var count int
	var seed int64
	var target string

	cmd := &cobra.Command{
		Use:   "customers",
		Short: "Seed the customer dimension with ids 1..count; existing ids are left alone",
		RunE: func(c *cobra.Command, args []string) error {
			return runSeedCustomers(c, root, target, count, seed)
		},
	}

	cmd.Flags().IntVarP(&count, "count", "n", 1000, "Number of customers")
	cmd.Flags().Int64Var(&seed, "seed", 0, "Random seed (0 picks one from the clock)")
	cmd.Flags().StringVarP(&target, "target", "t", targetPostgres, "Where to seed: postgres or warehouse")
	return cmd
}
