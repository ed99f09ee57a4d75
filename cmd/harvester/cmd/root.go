package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	logLevel  string
	logFormat string

	rootCmd = &cobra.Command{
		Use:   "harvester",
		Short: "Adscope harvester - ad library collection and import pipeline",
		Long: `Adscope harvester collects ad records from the public ad library and
reconciles them into a tenant-scoped store.

The pipeline supports:
- Browser-driven harvesting of paginated library results
- Static (no-browser) harvesting of rendered markup
- Manual imports from JSON or CSV exports
- Push-style webhook deliveries
- Single-ad fetches through the library API`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serveCmd.RunE(cmd, args)
		},
	}
)

// Execute runs the root command. Called once from main.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error) (default: info)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "log format (json, console) (default: json)")
}
