// Package server assembles the HTTP surface and runs it until the
// context ends.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/geoatlas/tileserv/internal/config"
	"github.com/geoatlas/tileserv/internal/health"
	"github.com/geoatlas/tileserv/internal/middleware"
	"github.com/geoatlas/tileserv/internal/routes"
)

func Run(ctx context.Context, cfg config.Config, log *slog.Logger, composer *routes.Composer, db health.Pinger) error {
	r := chi.NewRouter()
	r.Use(middleware.Recover(log))
	r.Use(middleware.RequestID())
	r.Use(middleware.Logging(log))
	r.Use(middleware.CORS())

	r.Get("/healthz", health.Liveness())
	r.Get("/readyz", health.Readiness(db))
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	if cfg.BasePath != "" {
		r.Route(cfg.BasePath, func(sr chi.Router) {
			composer.Mount(sr)
		})
	} else {
		composer.Mount(r)
	}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("http listen", "addr", cfg.Addr, "base_path", cfg.BasePath)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return nil
	case err := <-errCh:
		return err
	}
}
