package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "clover",
	Short: "Merge user accounts and everything that points at them",
	Long: `clover merges a duplicate user account (the absorbee) into the account
that survives (the absorber). Every relation pointing at the absorbee is moved
onto the absorber inside one transaction; the absorbee can then be forwarded
to the absorber and deactivated.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var envFile string

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Path to an optional .env file")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
