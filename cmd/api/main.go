package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/hamed0406/tablealert/internal/app"
	"github.com/hamed0406/tablealert/internal/config"
	"github.com/hamed0406/tablealert/internal/logging"
)

const shutdownGrace = 20 * time.Second

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

// checkServeConfig rejects settings the HTTP server cannot run with.
// Inline cascades hold the webhook response until reactivation and mail
// finish, so Stripe may time out and redeliver; the CLI and tests still use it.
func checkServeConfig(cfg config.Config) error {
	if cfg.CascadeMode == config.CascadeInline {
		return errors.New("CASCADE_MODE=inline is not supported by the API server; use async or outbox")
	}
	return nil
}

func run() (err error) {
	cfg := config.FromEnv()
	if err := checkServeConfig(cfg); err != nil {
		return err
	}
	logger, err := logging.NewLogger(cfg.LogDir, cfg.LogConsole)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.Build(ctx, cfg, logger)
	if err != nil {
		logger.Error("startup_failed", zap.Error(err))
		return err
	}

	bgCtx, cancelBg := context.WithCancel(context.Background())
	a.Start(bgCtx)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           a.Server.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		// The alert-submitted page may poll for several seconds.
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("api_listen", zap.String("addr", cfg.Addr), zap.String("cascade", cfg.CascadeMode))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown_requested")
	case err = <-serveErr:
		logger.Error("api_serve_failed", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	err = multierr.Append(err, srv.Shutdown(shutdownCtx))
	cancelBg()
	err = multierr.Append(err, a.Close(shutdownCtx))
	if err != nil {
		logger.Error("shutdown_incomplete", zap.Error(err))
		return err
	}
	logger.Info("shutdown_complete")
	return nil
}
