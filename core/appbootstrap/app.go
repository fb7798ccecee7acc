// Package appbootstrap assembles the application: config, database,
// migrations, services, HTTP server and background workers.
package appbootstrap

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"fiberops/api"
	"fiberops/config"
	"fiberops/core/store"
	"fiberops/core/utils"
)

const shutdownTimeout = 15 * time.Second

// Run boots the application and blocks until SIGINT/SIGTERM.
func Run(configPath string) error {
	logger := utils.NewLogger()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	db, err := store.NewDB(cfg, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := store.ApplyMigrations(ctx, db, cfg.DBDriver, logger); err != nil {
		return err
	}

	comp, err := composeRuntime(cfg, db, logger)
	if err != nil {
		return err
	}

	server := api.NewServer(cfg, comp.serverDeps, logger)
	httpSrv := server.NewHTTPServer()

	for _, w := range comp.workers {
		w.StartWithContext(ctx)
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Printf("listening on %s", cfg.ListenAddr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Printf("shutdown signal received")
	case err := <-errCh:
		logger.Errorf("http server: %v", err)
		stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("http shutdown: %v", err)
	}
	for _, w := range comp.workers {
		if err := w.StopWithContext(shutdownCtx); err != nil {
			logger.Errorf("worker shutdown: %v", err)
		}
	}
	logger.Printf("stopped")
	return nil
}
