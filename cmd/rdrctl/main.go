package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:           "rdrctl",
	Short:         "Query, export and load research data records",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var configDir string

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configDir, "config", ".", "Directory containing config.yaml")

	rootCmd.AddCommand(newQueryCmd(), newExportCmd(), newSeedCmd(), newInitSchemaCmd(), newEntitiesCmd(), newHistoryCmd())
}
