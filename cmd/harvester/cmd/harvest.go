package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/adscope/harvester/internal/config"
	"github.com/adscope/harvester/internal/harvest"
	"github.com/adscope/harvester/internal/importer"
	"github.com/adscope/harvester/internal/storage/postgres"
)

var (
	harvestTenant  string
	harvestStatic  bool
	harvestTargets string
	harvestLimit   int
	harvestCountry string
)

var harvestCmd = &cobra.Command{
	Use:   "harvest",
	Short: "Collect ads from the public ad library",
	Long: `Harvest ads for configured or ad-hoc targets and import them.

--tenant takes the tenant's id; create one first with "harvester tenant create".

Examples:
  # List configured targets
  harvester harvest list

  # Harvest a named target
  harvester harvest target nike-shoes --tenant <tenant-id>

  # One-off harvest by search term or page id
  harvester harvest term "running shoes" --tenant <tenant-id> --country US --limit 200
  harvester harvest page 123456789 --tenant <tenant-id>

  # Harvest all enabled targets
  harvester harvest all --tenant <tenant-id>

  # Force the static (no-browser) harvester
  harvester harvest target nike-shoes --tenant <tenant-id> --static`,
}

var harvestListCmd = &cobra.Command{
	Use:   "list",
	Short: "List configured harvest targets",
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := resolveTargetsDir()
		targets, err := harvest.LoadTargets(dir)
		if err != nil {
			return err
		}
		if len(targets) == 0 {
			fmt.Printf("No targets found in %s\n", dir)
			return nil
		}

		fmt.Printf("%-24s %-24s %-16s %-4s %-7s %s\n", "NAME", "TERM", "PAGE_ID", "CC", "ENABLED", "SCHEDULE")
		for _, t := range targets {
			fmt.Printf("%-24s %-24s %-16s %-4s %-7v %s\n",
				t.Name, truncate(t.Term, 24), t.PageID, t.Country, t.IsEnabled(), t.Schedule)
		}
		return nil
	},
}

var harvestTargetCmd = &cobra.Command{
	Use:   "target <name>",
	Short: "Harvest a single named target",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if harvestTenant == "" {
			return fmt.Errorf("--tenant is required")
		}

		cfg, logger, repo, cleanup, err := harvestSetup()
		if err != nil {
			return err
		}
		defer cleanup()

		targets, err := harvest.LoadTargets(resolveTargetsDirFrom(cfg))
		if err != nil {
			return err
		}
		target, err := harvest.FindTarget(targets, args[0])
		if err != nil {
			return err
		}
		if harvestLimit > 0 {
			target.Limit = harvestLimit
		}

		return runHarvest(cfg, logger, repo, target)
	},
}

var harvestTermCmd = &cobra.Command{
	Use:   "term <term>",
	Short: "One-off harvest of ads matching a search term",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if harvestTenant == "" {
			return fmt.Errorf("--tenant is required")
		}

		cfg, logger, repo, cleanup, err := harvestSetup()
		if err != nil {
			return err
		}
		defer cleanup()

		return runHarvest(cfg, logger, repo, harvest.Target{
			Name:    "term:" + args[0],
			Term:    args[0],
			Country: harvestCountry,
			Limit:   harvestLimit,
		})
	},
}

var harvestPageCmd = &cobra.Command{
	Use:   "page <page-id>",
	Short: "One-off harvest of a page's ads",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if harvestTenant == "" {
			return fmt.Errorf("--tenant is required")
		}

		cfg, logger, repo, cleanup, err := harvestSetup()
		if err != nil {
			return err
		}
		defer cleanup()

		return runHarvest(cfg, logger, repo, harvest.Target{
			Name:    "page:" + args[0],
			PageID:  args[0],
			Country: harvestCountry,
			Limit:   harvestLimit,
		})
	},
}

func runHarvest(cfg config.Config, logger zerolog.Logger, repo *postgres.Repository, target harvest.Target) error {
	controller := newHarvestController(cfg, repo, harvestStatic, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	result, err := controller.Run(ctx, target, harvestTenant)
	printHarvestResult(target.Name, result, err)
	return err
}

var harvestAllCmd = &cobra.Command{
	Use:   "all",
	Short: "Harvest all enabled targets",
	Long: `Harvest every enabled target sequentially. Per-target failures are
reported but do not abort the run; the command exits non-zero if any
target failed outright.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if harvestTenant == "" {
			return fmt.Errorf("--tenant is required")
		}

		cfg, logger, repo, cleanup, err := harvestSetup()
		if err != nil {
			return err
		}
		defer cleanup()

		targets, err := harvest.LoadTargets(resolveTargetsDirFrom(cfg))
		if err != nil {
			return err
		}

		controller := newHarvestController(cfg, repo, harvestStatic, logger)

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		// One session at a time against the upstream; the group still gives
		// early cancellation on interrupt.
		group, groupCtx := errgroup.WithContext(ctx)
		group.SetLimit(1)

		failures := 0
		for _, target := range targets {
			if !target.IsEnabled() {
				continue
			}
			target := target
			group.Go(func() error {
				result, runErr := controller.Run(groupCtx, target, harvestTenant)
				printHarvestResult(target.Name, result, runErr)
				if runErr != nil {
					failures++
				}
				return nil
			})
		}
		if err := group.Wait(); err != nil {
			return err
		}
		if failures > 0 {
			return fmt.Errorf("%d target(s) failed", failures)
		}
		return nil
	},
}

func harvestSetup() (config.Config, zerolog.Logger, *postgres.Repository, func(), error) {
	cfg, err := loadConfig()
	if err != nil {
		return config.Config{}, zerolog.Logger{}, nil, nil, err
	}
	logger := config.NewLogger(cfg.Logging)

	_, repo, cleanup, err := openRepository(context.Background(), cfg)
	if err != nil {
		return config.Config{}, zerolog.Logger{}, nil, nil, err
	}
	return cfg, logger, repo, cleanup, nil
}

func resolveTargetsDir() string {
	if harvestTargets != "" {
		return harvestTargets
	}
	return "configs/targets"
}

func resolveTargetsDirFrom(cfg config.Config) string {
	if harvestTargets != "" {
		return harvestTargets
	}
	return cfg.Harvest.TargetsDir
}

func printHarvestResult(name string, result importer.Result, err error) {
	status := "ok"
	if err != nil {
		status = fmt.Sprintf("error: %v", err)
	}
	fmt.Printf("%-24s imported: %-5d updated: %-5d errors: %-5d %s\n",
		name, result.Imported, result.Updated, result.Errors, status)
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}

func init() {
	rootCmd.AddCommand(harvestCmd)
	harvestCmd.AddCommand(harvestListCmd)
	harvestCmd.AddCommand(harvestTargetCmd)
	harvestCmd.AddCommand(harvestTermCmd)
	harvestCmd.AddCommand(harvestPageCmd)
	harvestCmd.AddCommand(harvestAllCmd)

	harvestCmd.PersistentFlags().StringVar(&harvestTenant, "tenant", "", "tenant id to import under (required for harvesting)")
	harvestCmd.PersistentFlags().BoolVar(&harvestStatic, "static", false, "use the static harvester even when a browser is configured")
	harvestCmd.PersistentFlags().StringVar(&harvestTargets, "targets", "", "path to the targets directory (default: HARVEST_TARGETS_DIR)")
	harvestCmd.PersistentFlags().IntVar(&harvestLimit, "limit", 0, "max ads to collect for this run (0 = target default)")
	harvestCmd.PersistentFlags().StringVar(&harvestCountry, "country", "", "ISO country filter for ad-hoc term/page harvests")
}
