// desktopai-server is the run-control core's binary: it wires the
// composition root, mounts the Control-Plane HTTP API and Collector
// Gateway, and serves until an interrupt or SIGTERM is received.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/desktopai/runcontrol/internal/async"
	"github.com/desktopai/runcontrol/internal/composition"
	"github.com/desktopai/runcontrol/internal/config"
	"github.com/desktopai/runcontrol/internal/httpapi"
	"github.com/desktopai/runcontrol/internal/logging"
	"github.com/desktopai/runcontrol/internal/metrics"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(nil)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := logging.New(logging.Options{
		Level:    cfg.LogLevel,
		Colorize: cfg.LogColor,
	}).With("main")

	container, err := composition.Build(cfg, logger)
	if err != nil {
		return fmt.Errorf("build composition root: %w", err)
	}

	handler := httpapi.NewRouter(*container.Router, httpapi.RouterConfig{})

	server := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	if cfg.MetricsAddr != "" {
		metricsServer := &http.Server{Addr: cfg.MetricsAddr, Handler: metrics.Handler()}
		async.Go(logger, "metrics.listen", func() {
			logger.Info("metrics listening on %s", cfg.MetricsAddr)
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("metrics server error: %v", err)
			}
		})
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = metricsServer.Shutdown(ctx)
		}()
	}

	err = serveUntilSignal(server, logger)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownGrace+5*time.Second)
	defer cancel()
	container.Shutdown(shutdownCtx)

	return err
}

// serveUntilSignal runs server until it errors or the process receives
// an interrupt/SIGTERM, at which point it drains in-flight requests
// within the server's own shutdown budget and returns.
func serveUntilSignal(server *http.Server, logger logging.Logger) error {
	errCh := make(chan error, 1)
	async.Go(logger, "server.listen", func() {
		logger.Info("listening on %s", server.Addr)
		errCh <- server.ListenAndServe()
	})

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case err := <-errCh:
		if err == nil || err == http.ErrServerClosed {
			return nil
		}
		return fmt.Errorf("server error: %w", err)
	case <-quit:
		logger.Info("shutting down server...")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		shutdownErr := server.Shutdown(ctx)

		serveErr := <-errCh
		if serveErr == http.ErrServerClosed {
			serveErr = nil
		}

		if shutdownErr != nil {
			return fmt.Errorf("shutdown: %w", shutdownErr)
		}
		if serveErr != nil {
			return fmt.Errorf("server error: %w", serveErr)
		}

		logger.Info("server stopped")
		return nil
	}
}
