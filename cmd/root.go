package cmd

import (
	"fmt"
	"github.com/spf13/cobra"
	"github.com/stden/EntityLocker/cmd/bench"
	"github.com/stden/EntityLocker/cmd/util"
	"os"
)

const (
	Version = "1.0.0"
)

var (

	// RootCmd represents the base command when called without any subcommands
	RootCmd = &cobra.Command{
		Use:   "entitylocker",
		Short: "per-entity locking with deadlock prevention",
		Long: fmt.Sprintf(`EntityLocker (v%s)

Row-level-style locking keyed by entity IDs for in-process caches and stores:
per-ID mutual exclusion, reentrancy, bounded waits and deadlock prevention.
The bench commands run the locking scenarios against the library and verify
their invariants.`, Version),
		SilenceUsage: true,
	}
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of EntityLocker",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("EntityLocker v%s\n", Version)
		},
	}
)

func init() {
	// initialize viper
	cobra.OnInitialize(util.InitConfig)

	// Add Commands
	RootCmd.AddCommand(bench.BenchCommands)
	RootCmd.AddCommand(versionCmd)

	// Add Flags
	key := "policy"
	RootCmd.PersistentFlags().String(key, "reclaim", util.WrapString("What happens to the lock of an entity nobody uses anymore (reclaim, retain)"))
	key = "log-level"
	RootCmd.PersistentFlags().String(key, "info", util.WrapString("LogLevel is the level at which logs will be output (debug, info, warn, error)"))
	key = "metrics-endpoint"
	RootCmd.PersistentFlags().String(key, "", util.WrapString("Address to serve Prometheus metrics on while a command runs (e.g. localhost:9100). Empty disables the endpoint"))
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the RootCmd.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
