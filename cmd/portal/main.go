package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"mcportal/internal/api"
	"mcportal/internal/app"
	"mcportal/internal/config"
	"mcportal/internal/metrics"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load(os.Getenv("PORTAL_CONFIG_PATH"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger := app.NewLogger(cfg, os.Stdout)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error().Err(err).Msg("portal failed")
		cancel()
		os.Exit(1)
	}
}

// run serves the portal until ctx is done. Every resource it opens is
// released before it returns.
func run(ctx context.Context, cfg *config.Config, logger zerolog.Logger) error {
	opts, err := api.OptionsFromConfig(cfg)
	if err != nil {
		return err
	}

	portal, err := app.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("initialize portal: %w", err)
	}
	defer portal.Close()

	scheduler, err := newScheduler(portal, logger)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if cfg.ServersFile != "" {
		if _, statErr := os.Stat(cfg.ServersFile); statErr == nil {
			err = config.WatchServers(ctx, cfg.ServersFile, 30*time.Second, config.ServersWatch{
				OnUpdate: func(sc *config.ServersConfig) {
					if syncErr := portal.DB.SyncServersFromConfig(ctx, sc); syncErr != nil {
						logger.Error().Err(syncErr).Msg("failed to sync servers")
						return
					}
					logger.Info().Int("servers", len(sc.Servers)).Msg("servers synced from file")
				},
				OnError: func(loadErr error) {
					logger.Warn().Err(loadErr).Msg("servers file changed but is invalid, keeping previous version")
				},
			})
			if err != nil {
				logger.Error().Err(err).Str("path", cfg.ServersFile).Msg("servers watcher not started")
			}
		}
	}

	scheduler.Start()
	defer func() { <-scheduler.Stop().Done() }()

	if cfg.Monitoring.HealthCheckPort > 0 {
		go serveAux(ctx, "health", cfg.Monitoring.HealthCheckPort, healthHandler(portal), &logger)
	}
	if cfg.Monitoring.PrometheusEnabled {
		metrics.Register()
		go serveAux(ctx, "metrics", cfg.Monitoring.PrometheusPort, promhttp.Handler(), &logger)
	}

	handler := api.NewHTTPServer(portal.APIDeps(), opts, logger)
	srv := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      handler.Handler(),
		ReadTimeout:  cfg.ReadTimeout(),
		WriteTimeout: cfg.WriteTimeout(),
	}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancelShutdown()
		_ = srv.Shutdown(ctxShutdown)
	}()

	logger.Info().Str("addr", cfg.Server.Address).Msg("Portal started")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	logger.Info().Msg("Portal stopped")
	return nil
}

// newScheduler registers the backup, whitelist and session purge jobs.
func newScheduler(portal *app.App, logger zerolog.Logger) (*cron.Cron, error) {
	scheduler := cron.New()
	if err := portal.Backup.Schedule(scheduler); err != nil {
		return nil, err
	}
	if err := portal.Whitelist.Schedule(scheduler, portal.Config.Whitelist.Schedule); err != nil {
		return nil, err
	}
	_, err := scheduler.AddFunc("@every 10m", func() {
		if n := portal.PurgeSessions(); n > 0 {
			logger.Debug().Int("purged", n).Msg("expired sessions removed")
		}
	})
	if err != nil {
		return nil, fmt.Errorf("schedule session purge: %w", err)
	}
	return scheduler, nil
}

func healthHandler(portal *app.App) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		ctxPing, cancel := context.WithTimeout(r.Context(), time.Second)
		defer cancel()
		if err := portal.Ready(ctxPing); err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})
	return mux
}

// serveAux runs a side server (health, metrics) until ctx is done.
func serveAux(ctx context.Context, name string, port int, handler http.Handler, logger *zerolog.Logger) {
	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: handler}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	logger.Info().Str("server", name).Int("port", port).Msg("listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error().Err(err).Str("server", name).Msg("server error")
	}
}
