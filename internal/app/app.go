package app

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/karingamassive/membership-service/internal/config"
	"github.com/karingamassive/membership-service/internal/health"
	"github.com/karingamassive/membership-service/internal/observability"
)

// Closer releases a dependency after the HTTP server has drained.
type Closer func() error

type App struct {
	Config          *config.Config
	Logger          *slog.Logger
	Server          *http.Server
	Observability   *observability.Runtime
	Readiness       *health.ProbeRunner
	ShutdownTimeout time.Duration

	closers []Closer
}

func New(cfg *config.Config, logger *slog.Logger, server *http.Server, runtime *observability.Runtime, readiness *health.ProbeRunner, closers ...Closer) *App {
	return &App{
		Config:          cfg,
		Logger:          logger,
		Server:          server,
		Observability:   runtime,
		Readiness:       readiness,
		ShutdownTimeout: cfg.ShutdownTimeout,
		closers:         closers,
	}
}

// Run serves until ctx is cancelled or the listener fails, then shuts down
// the server, the dependencies and the telemetry pipeline in that order.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		a.Logger.Info("http server listening", "addr", a.Server.Addr, "env", a.Config.AppEnv)
		if err := a.Server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		a.Logger.Info("shutdown signal received")
	case err, ok := <-errCh:
		if ok {
			serveErr = err
			a.Logger.Error("http server failed", "error", err)
		}
	}
	return errors.Join(serveErr, a.Shutdown())
}

func (a *App) Shutdown() error {
	timeout := a.ShutdownTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var errs []error
	if err := a.Server.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	if err := a.Observability.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := errors.Join(errs...); err != nil {
		a.Logger.Error("shutdown completed with errors", "error", err)
		return err
	}
	a.Logger.Info("shutdown complete")
	return nil
}
