package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/warp/tour-engine/api"
)

func newServeCmd(load loader) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := load()
			if err != nil {
				return err
			}
			defer log.Sync()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := buildApp(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer a.Close()
			log.Info("services ready", zap.String("config", describe(cfg)))

			h := api.NewHandler(a.catalog, a.sched, a.bookings,
				api.WithLogger(log),
				api.WithHealthCheck(a.store.Ping))
			opts := api.RouterOptions{
				Log:            log,
				AllowedOrigins: cfg.Server.AllowedOrigins,
				Metrics:        a.metrics,
				MetricsPath:    cfg.Metrics.Path,
			}
			if cfg.RateLimit.Enabled {
				rl := api.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst, log)
				opts.RateLimiter = rl
				go sweep(ctx, rl)
			}

			if cfg.Scheduler.Enabled {
				ps := api.NewPendingScheduler(a.sched, cfg.Scheduler.Interval(), log)
				ps.Start()
				defer ps.Stop()
			}

			server := &http.Server{
				Addr:         cfg.Server.Addr(),
				Handler:      api.NewRouter(h, opts),
				ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
				WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
				IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
			}

			errc := make(chan error, 1)
			go func() {
				log.Info("server starting", zap.String("addr", server.Addr))
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errc <- err
				}
				close(errc)
			}()

			select {
			case err := <-errc:
				return err
			case <-ctx.Done():
			}

			log.Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.Shutdown())
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				log.Error("server forced to shutdown", zap.Error(err))
				return err
			}
			log.Info("server stopped")
			return nil
		},
	}
}

func sweep(ctx context.Context, rl *api.RateLimiter) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			rl.Sweep(now)
		}
	}
}
