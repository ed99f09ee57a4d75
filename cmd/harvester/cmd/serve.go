package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/riverqueue/river"
	"github.com/spf13/cobra"

	"github.com/adscope/harvester/internal/api"
	"github.com/adscope/harvester/internal/config"
	"github.com/adscope/harvester/internal/jobs"
	"github.com/adscope/harvester/internal/telemetry"
)

var serveNoJobs bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP server and background job workers",
	Long: `Start the webhook/import HTTP server and the River job workers.

The job workers run scheduled harvests and provenance retention. Pass
--no-jobs to run the HTTP surface alone.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		logger := config.NewLogger(cfg.Logging)
		logger.Info().Str("environment", cfg.Environment).Msg("starting harvester server")

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		shutdownTracing, err := telemetry.InitTracing(ctx, cfg.Tracing, Version)
		if err != nil {
			logger.Error().Err(err).Msg("failed to initialize tracing")
		} else {
			defer func() {
				flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = shutdownTracing(flushCtx)
			}()
		}

		pool, repo, cleanup, err := openRepository(ctx, cfg)
		if err != nil {
			return err
		}
		defer cleanup()

		if !serveNoJobs {
			slogger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
			controller := newHarvestController(cfg, repo, false, logger)

			workers := river.NewWorkers()
			river.AddWorker(workers, jobs.HarvestWorker{
				Controller: controller,
				TargetsDir: cfg.Harvest.TargetsDir,
				Logger:     slogger,
			})
			river.AddWorker(workers, jobs.JobRunsCleanupWorker{
				Runs:   repo.JobRuns(),
				Logger: slogger,
			})

			client, err := jobs.NewClient(pool, workers, slogger, jobs.NewPeriodicJobs())
			if err != nil {
				return fmt.Errorf("create job client: %w", err)
			}
			if err := client.Start(ctx); err != nil {
				return fmt.Errorf("start job client: %w", err)
			}
			defer func() {
				stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				_ = client.Stop(stopCtx)
			}()
			logger.Info().Msg("job workers started")
		}

		server := &http.Server{
			Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
			Handler:           api.NewRouter(cfg, repo, pool, logger),
			ReadTimeout:       10 * time.Second,
			WriteTimeout:      60 * time.Second,
			ReadHeaderTimeout: 5 * time.Second,
			MaxHeaderBytes:    1 << 20,
		}

		go func() {
			logger.Info().Str("addr", server.Addr).Msg("http server listening")
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error().Err(err).Msg("http server error")
			}
		}()

		<-ctx.Done()
		logger.Info().Msg("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("shutdown error")
		}
		return nil
	},
}

func init() {
	serveCmd.Flags().BoolVar(&serveNoJobs, "no-jobs", false, "run the HTTP server without background job workers")
	rootCmd.AddCommand(serveCmd)
}
