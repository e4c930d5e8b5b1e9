package cli

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/m-mizutani/goerr/v2"

	"github.com/opsward/geryon/pkg/cli/config"
	httpctrl "github.com/opsward/geryon/pkg/controller/http"
	"github.com/opsward/geryon/pkg/service/embedding"
	"github.com/opsward/geryon/pkg/service/worker"
	"github.com/opsward/geryon/pkg/usecase"
	"github.com/opsward/geryon/pkg/utils/logging"
	"github.com/urfave/cli/v3"
)

func cmdServe() *cli.Command {
	var addr string
	var configPath string
	var reconcileInterval time.Duration
	var repoCfg config.Repository
	var geminiCfg config.Gemini
	var dedupCfg config.Dedup

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "addr",
			Usage:       "HTTP server address",
			Value:       ":8080",
			Sources:     cli.EnvVars("GERYON_ADDR"),
			Destination: &addr,
		},
		&cli.StringFlag{
			Name:        "config",
			Usage:       "Path to category configuration TOML (unknown categories rejected when set)",
			Sources:     cli.EnvVars("GERYON_CONFIG"),
			Destination: &configPath,
		},
		&cli.DurationFlag{
			Name:        "reconcile-interval",
			Usage:       "Interval of the background duplicate reconciliation pass (disabled when 0; requires --config)",
			Sources:     cli.EnvVars("GERYON_RECONCILE_INTERVAL"),
			Destination: &reconcileInterval,
		},
	}

	// Add shared config flags
	flags = append(flags, repoCfg.Flags()...)
	flags = append(flags, geminiCfg.Flags()...)
	flags = append(flags, dedupCfg.Flags()...)

	return &cli.Command{
		Name:    "serve",
		Aliases: []string{"s"},
		Usage:   "Start HTTP server",
		Flags:   flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			if err := dedupCfg.Validate(); err != nil {
				return err
			}

			// Load category configuration if provided
			var appCfg *config.AppConfig
			if configPath != "" {
				cfg, err := config.LoadAppConfiguration(configPath)
				if err != nil {
					return goerr.Wrap(err, "failed to load category configuration")
				}
				appCfg = cfg
				logging.Default().Info("Category registry enabled", "categories", len(appCfg.Categories))
			}

			// Initialize repository based on backend type
			repo, err := repoCfg.Configure(ctx)
			if err != nil {
				return goerr.Wrap(err, "failed to initialize repository")
			}
			defer func() {
				if err := repo.Close(); err != nil {
					logging.Default().Error("failed to close repository", "error", err.Error())
				}
			}()

			// Initialize embedding service
			llmClient, err := geminiCfg.Configure(ctx)
			if err != nil {
				return goerr.Wrap(err, "failed to configure Gemini client")
			}
			embedder, err := embedding.New(llmClient)
			if err != nil {
				return goerr.Wrap(err, "failed to initialize embedding service")
			}

			// Initialize use cases
			ucOpts := []usecase.Option{
				usecase.WithThreshold(dedupCfg.Threshold()),
				usecase.WithSerializeCreates(dedupCfg.SerializeCreates()),
			}
			if appCfg != nil {
				ucOpts = append(ucOpts, usecase.WithCategories(appCfg.CategoryIDs()))
			}
			uc := usecase.New(repo, embedder, ucOpts...)

			logging.Default().Info("Dedup engine configured",
				"threshold", dedupCfg.Threshold(),
				"serialize_creates", dedupCfg.SerializeCreates(),
			)

			// Start reconciliation worker if requested
			var reconcileWorker *worker.ReconcileWorker
			if reconcileInterval > 0 {
				if appCfg == nil {
					return goerr.New("--reconcile-interval requires --config for the category list")
				}
				reconcileWorker = worker.NewReconcileWorker(repo, appCfg.CategoryIDs(), dedupCfg.Threshold(), reconcileInterval)
				if err := reconcileWorker.Start(ctx); err != nil {
					return goerr.Wrap(err, "failed to start reconcile worker")
				}
			}

			server := &http.Server{
				Addr:              addr,
				Handler:           httpctrl.New(uc),
				ReadHeaderTimeout: 30 * time.Second,
			}

			// Setup signal handling for graceful shutdown
			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

			// Start server in goroutine
			errCh := make(chan error, 1)
			go func() {
				logging.Default().Info("Starting HTTP server", "addr", addr)
				if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					errCh <- goerr.Wrap(err, "failed to start server")
				}
			}()

			// Wait for shutdown signal or server error
			select {
			case err := <-errCh:
				return err
			case sig := <-sigCh:
				logging.Default().Info("Received shutdown signal", "signal", sig)

				if reconcileWorker != nil {
					reconcileWorker.Stop()
				}

				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()

				if err := server.Shutdown(shutdownCtx); err != nil {
					return goerr.Wrap(err, "failed to shutdown server gracefully")
				}

				logging.Default().Info("Server shutdown completed")
				return nil
			}
		},
	}
}
