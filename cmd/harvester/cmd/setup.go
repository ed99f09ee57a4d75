package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/adscope/harvester/internal/config"
	"github.com/adscope/harvester/internal/extract"
	"github.com/adscope/harvester/internal/harvest"
	"github.com/adscope/harvester/internal/importer"
	"github.com/adscope/harvester/internal/storage/postgres"
)

// loadConfig reads env config and applies CLI log overrides.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, err
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if logFormat != "" {
		cfg.Logging.Format = logFormat
	}
	return cfg, nil
}

// openRepository connects the pool and wraps it in the repository. The
// returned cleanup closes the pool.
func openRepository(ctx context.Context, cfg config.Config) (*pgxpool.Pool, *postgres.Repository, func(), error) {
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := postgres.Connect(connectCtx, cfg.Database)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("connect database: %w", err)
	}

	repo, err := postgres.NewRepository(pool)
	if err != nil {
		pool.Close()
		return nil, nil, nil, err
	}
	return pool, repo, pool.Close, nil
}

// newHarvestController wires the controller. With a browser control URL the
// rod driver and structured extractor run; otherwise the static driver and
// markup extractor do.
func newHarvestController(cfg config.Config, repo *postgres.Repository, forceStatic bool, logger zerolog.Logger) *harvest.Controller {
	reconciler := importer.NewReconciler(repo.Ads(), repo.Advertisers(), logger)
	recorder := importer.NewRecorder(repo.JobRuns(), logger).
		WithAlerts(importer.NewAlerter(cfg.Webhook.AlertURL, logger))

	var driver harvest.Driver
	var extractor harvest.Extractor
	if cfg.Browser.ControlURL != "" && !forceStatic {
		driver = harvest.NewBrowserDriver(cfg.Browser, logger)
		extractor = extract.NewStructuredExtractor(logger)
	} else {
		driver = harvest.NewStaticDriver(logger)
		extractor = harvest.MarkupExtractor{Inner: extract.NewMarkupExtractor(logger)}
	}

	return harvest.NewController(driver, extractor, reconciler, recorder, cfg.Harvest.BatchSize, logger)
}
