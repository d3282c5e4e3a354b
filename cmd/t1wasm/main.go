// t1wasm compiles decoded x86 basic blocks into single-function WebAssembly
// modules and can execute them under an embedded harness.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/wilsonzlin/aerojit/log"
)

var (
	Version   = "dev"
	Commit    = "none"
	BuildTime = "unknown"
)

func main() {
	var logLevel string

	rootCmd := &cobra.Command{
		Use:   "t1wasm",
		Short: "Tier-1 x86-to-WebAssembly block compiler",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return log.InitLogger(logLevel)
		},
	}
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (trace, debug, info, warn, error, crit)")

	rootCmd.AddCommand(newCompileCmd(), newDemoCmd(), newVersionCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("t1wasm %s (commit %s, built %s)\n", Version, Commit, BuildTime)
		},
	}
}
