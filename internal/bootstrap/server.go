// Package bootstrap runs the fanoutd process around an app.Container.
package bootstrap

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/strogmv/fanout/internal/app"
)

const shutdownTimeout = 10 * time.Second

func NewServer(c *app.Container) *http.Server {
	return &http.Server{
		Addr:              c.Config.HTTPAddr,
		Handler:           c.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
}

// Run serves HTTP and, when configured, the subscriber gateway until ctx is
// done or either fails, then shuts down gracefully.
func Run(ctx context.Context, c *app.Container) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	srv := NewServer(c)
	if c.Verifier == nil {
		slog.Warn("JWT_SECRET is unset: ingest routes accept unauthenticated requests and HTTP replay is disabled")
	}
	errCh := make(chan error, 2)

	if c.Gateway != nil {
		go func() {
			if err := c.Gateway.Run(ctx, c.Feed); err != nil {
				errCh <- err
			}
		}()
	}
	go func() {
		slog.Info("http server listening", "addr", srv.Addr, "transport", c.Config.TransportDriver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errCh:
		slog.Error("server stopped", "error", runErr)
	}

	shutdownCtx, stop := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer stop()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return errors.Join(runErr, err)
	}
	return runErr
}

// Replay runs one operator replay and reports the outcome.
func Replay(ctx context.Context, c *app.Container, limit int) error {
	report, err := c.SvcBroadcasts.ReplayDeadLetters(ctx, limit)
	if err != nil {
		return err
	}
	slog.Info("dead letter replay finished",
		"pending", report.Pending, "replayed", report.Replayed, "failed", report.Failed)
	return nil
}
