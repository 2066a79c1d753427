package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/adamwilson22/Velaa-Backend/internal/api"
	"github.com/adamwilson22/Velaa-Backend/internal/api/middleware"
	"github.com/adamwilson22/Velaa-Backend/internal/cache"
	"github.com/adamwilson22/Velaa-Backend/internal/email"
	"github.com/adamwilson22/Velaa-Backend/internal/services"
	"github.com/adamwilson22/Velaa-Backend/internal/storage"
	"github.com/adamwilson22/Velaa-Backend/internal/tasks"
)

const shutdownTimeout = 15 * time.Second

var runMode string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API, the background worker, or both",
	Example: `  # API and worker in one process
  velaa serve

  # API only
  velaa serve -m api`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVarP(&runMode, "mode", "m", "all", "Run mode: 'api', 'bg' (background tasks) or 'all'")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	switch runMode {
	case "api", "bg", "all":
	default:
		return fmt.Errorf("invalid run mode %q", runMode)
	}
	cfg, err := loadConfig(runMode)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	rdb, err := cache.ConnectRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		return err
	}
	defer func() {
		if err := cache.DisconnectRedis(rdb); err != nil {
			log.Error().Err(err).Msg("error disconnecting from Redis")
		}
	}()

	taskClient := tasks.NewClient(tasks.RedisOpt(cfg))
	defer taskClient.Close()

	var exports storage.IS3Storage
	if cfg.AwsS3Bucket != "" {
		if exports, err = storage.NewS3Storage(ctx, cfg); err != nil {
			return err
		}
	} else {
		log.Warn().Msg("AWS_S3_BUCKET not set, exports are kept in memory")
		exports = storage.NewMemoryStorage()
	}

	shutdownChan := make(chan struct{}, 1)
	g, gctx := errgroup.WithContext(ctx)

	serviceSrv := &http.Server{Addr: ":" + cfg.ServiceApiPort, Handler: api.SetupServiceRouter(rdb, shutdownChan)}
	g.Go(func() error { return listen(serviceSrv, "service API") })

	var mainSrv *http.Server
	var limiter *middleware.RateLimiterMiddleware
	if runMode == "api" || runMode == "all" {
		limiter = middleware.NewRateLimiterMiddleware(cfg, cache.NewWindowCounter(rdb, "ratelimit"))
		defer limiter.Stop()
		router, err := api.SetupRouter(cfg, api.RouterDeps{
			Billing:     a.billing,
			Enqueuer:    taskClient,
			Metrics:     a.metrics,
			RateLimiter: limiter,
		})
		if err != nil {
			return err
		}
		mainSrv = &http.Server{Addr: ":" + cfg.ApiPort, Handler: router}
		g.Go(func() error { return listen(mainSrv, "main API") })
	}

	if runMode == "bg" || runMode == "all" {
		processor := tasks.NewTaskProcessor(
			cfg,
			a.billing,
			services.NewExportService(a.billing, exports, cfg.ExportURLTTL),
			email.NewFromConfig(cfg, rdb),
			services.NewEmailTemplateService(a.mongoDb),
			a.metrics,
		)
		worker, err := tasks.NewWorker(cfg, processor)
		if err != nil {
			return err
		}
		g.Go(func() error { return worker.Run(gctx) })
	}

	log.Info().Str("mode", runMode).Str("store", cfg.StoreDriver).Msg("velaa started")

	g.Go(func() error {
		select {
		case <-gctx.Done():
			log.Info().Msg("shutting down gracefully")
		case <-shutdownChan:
			log.Info().Msg("shutdown requested via service API")
			stop()
		}
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		var errs []error
		if mainSrv != nil {
			errs = append(errs, mainSrv.Shutdown(sctx))
		}
		errs = append(errs, serviceSrv.Shutdown(sctx))
		return errors.Join(errs...)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info().Msg("server gracefully stopped")
	return nil
}

func listen(srv *http.Server, name string) error {
	log.Info().Str("addr", srv.Addr).Msgf("%s listening", name)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}
