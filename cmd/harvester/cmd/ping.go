package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/adscope/harvester/internal/config"
	"github.com/adscope/harvester/internal/fbapi"
)

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Check database and upstream API connectivity",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		logger := config.NewLogger(cfg.Logging)

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		failed := false

		pool, _, cleanup, err := openRepository(ctx, cfg)
		if err != nil {
			fmt.Printf("database:  unreachable (%v)\n", err)
			failed = true
		} else {
			defer cleanup()
			if err := pool.Ping(ctx); err != nil {
				fmt.Printf("database:  unreachable (%v)\n", err)
				failed = true
			} else {
				fmt.Println("database:  ok")
			}
		}

		client := fbapi.NewClient(cfg.AdLibrary, logger)
		if client.Ping(ctx) {
			fmt.Println("upstream:  reachable")
		} else {
			fmt.Println("upstream:  unreachable")
			failed = true
		}

		if failed {
			return fmt.Errorf("connectivity check failed")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(pingCmd)
}
