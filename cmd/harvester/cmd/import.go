package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/adscope/harvester/internal/config"
	"github.com/adscope/harvester/internal/domain/ads"
	"github.com/adscope/harvester/internal/importer"
)

var (
	importTenant  string
	importCountry string
	importDryRun  bool
)

var importCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import ads from a JSON or CSV export",
	Long: `Decode an exported file (JSON object, JSON array, or CSV) and import
its ads for the given tenant. Re-importing the same file is safe: existing
ads are refreshed, not duplicated.

--tenant takes the tenant's id; create one first with "harvester tenant create".

Examples:
  harvester import ads-export.json --tenant <tenant-id>
  harvester import ads.csv --tenant <tenant-id> --country US
  harvester import ads.csv --tenant <tenant-id> --dry-run`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if importTenant == "" {
			return fmt.Errorf("--tenant is required")
		}

		content, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("read file: %w", err)
		}

		candidates, format, err := ads.DecodeUpload(string(content))
		if err != nil {
			return fmt.Errorf("decode upload: %w", err)
		}

		defaults := ads.Defaults{Country: importCountry}
		records := make([]ads.AdRecord, 0, len(candidates))
		rejected := 0
		for _, candidate := range candidates {
			record, normErr := ads.Normalize(candidate, format, defaults)
			if normErr != nil {
				rejected++
				fmt.Fprintf(os.Stderr, "Skipping record: %v\n", normErr)
				continue
			}
			records = append(records, record)
		}

		if importDryRun {
			fmt.Printf("Format: %s  Decoded: %d  Valid: %d  Rejected: %d (dry run, nothing imported)\n",
				format, len(candidates), len(records), rejected)
			return nil
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		logger := config.NewLogger(cfg.Logging)

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		_, repo, cleanup, err := openRepository(ctx, cfg)
		if err != nil {
			return err
		}
		defer cleanup()

		reconciler := importer.NewReconciler(repo.Ads(), repo.Advertisers(), logger)
		recorder := importer.NewRecorder(repo.JobRuns(), logger)

		startedAt := time.Now().UTC()
		result := reconciler.ImportBatch(ctx, records, importTenant)
		result.Errors += rejected

		recorder.Record(ctx, importer.RunSummary{
			TenantID:    importTenant,
			JobName:     "import:cli",
			TaskType:    "import",
			StartedAt:   startedAt,
			CompletedAt: time.Now().UTC(),
			Result:      result,
			Metadata:    map[string]any{"file": args[0], "format": string(format)},
		})

		fmt.Printf("Format: %s  Imported: %d  Updated: %d  Errors: %d\n",
			format, result.Imported, result.Updated, result.Errors)
		for _, detail := range result.ErrorDetails {
			fmt.Fprintf(os.Stderr, "  %s\n", detail)
		}
		if result.Errors > 0 && result.Processed() == 0 {
			return fmt.Errorf("import failed: no records written")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(importCmd)
	importCmd.Flags().StringVar(&importTenant, "tenant", "", "tenant id to import under (required)")
	importCmd.Flags().StringVar(&importCountry, "country", "", "default country code for records that carry none")
	importCmd.Flags().BoolVar(&importDryRun, "dry-run", false, "decode and validate without importing")
}
