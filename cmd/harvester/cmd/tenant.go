package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

var tenantCmd = &cobra.Command{
	Use:   "tenant",
	Short: "Manage tenants",
	Long: `Create and list tenants. Every harvest, import, and webhook write is
scoped to a tenant id; create one before the first import.

Examples:
  harvester tenant create acme
  harvester harvest target nike-shoes --tenant "$(harvester tenant create acme)"`,
}

var tenantCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a tenant and print its id",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		_, repo, cleanup, err := openRepository(ctx, cfg)
		if err != nil {
			return err
		}
		defer cleanup()

		tenant, err := repo.Tenants().Create(ctx, args[0])
		if err != nil {
			return err
		}

		// Only the id on stdout, so the command composes in shell scripts.
		fmt.Println(tenant.ID)
		return nil
	},
}

var tenantListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tenants",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		_, repo, cleanup, err := openRepository(ctx, cfg)
		if err != nil {
			return err
		}
		defer cleanup()

		tenants, err := repo.Tenants().List(ctx)
		if err != nil {
			return err
		}
		if len(tenants) == 0 {
			fmt.Println("No tenants found")
			return nil
		}

		fmt.Printf("%-36s %-24s %s\n", "ID", "NAME", "CREATED")
		for _, t := range tenants {
			fmt.Printf("%-36s %-24s %s\n", t.ID, truncate(t.Name, 24), t.CreatedAt.Format(time.RFC3339))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(tenantCmd)
	tenantCmd.AddCommand(tenantCreateCmd)
	tenantCmd.AddCommand(tenantListCmd)
}
