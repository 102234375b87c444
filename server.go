package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jamestelfer/cfaccess-gate/internal/config"
	"github.com/rs/zerolog"
)

// Server is the part of *http.Server that the lifecycle drives.
type Server interface {
	ListenAndServe() error
	Shutdown(ctx context.Context) error
}

// shutdownHook releases a dependency once the server has drained. Hooks run
// in order, after in-flight requests complete, within the shutdown deadline.
type shutdownHook struct {
	name string
	stop func(context.Context) error
}

// serveHTTP runs the server until it fails or the process is asked to stop,
// then drains it and runs the shutdown hooks. A startup failure is returned
// as-is, after the shutdown sequence has run.
func serveHTTP(ctx context.Context, cfg config.Config, server Server, hooks ...shutdownHook) error {
	logger := zerolog.Ctx(ctx)

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.ListenAndServe()
	}()

	logReadiness(logger, cfg)

	var startupErr error

	select {
	case err := <-serverErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("server failed")
		}
		startupErr = err
	case <-signalCtx.Done():
		logger.Info().Msg("server shutdown requested")
		// a second signal terminates immediately
		stop()
	}

	shutdownTimeout := time.Duration(cfg.Server.ShutdownTimeoutSeconds) * time.Second
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	var shutdownErr error
	if err := server.Shutdown(shutdownCtx); err != nil {
		shutdownErr = fmt.Errorf("server shutdown failed: %w", err)
	}

	// hooks run even when draining failed, so telemetry for the requests that
	// did complete is still flushed
	for _, hook := range hooks {
		if err := hook.stop(shutdownCtx); err != nil {
			logger.Warn().Err(err).Str("hook", hook.name).Msg("shutdown: hook failed")
			shutdownErr = errors.Join(shutdownErr, fmt.Errorf("%s shutdown failed: %w", hook.name, err))
			continue
		}
		logger.Info().Str("hook", hook.name).Msg("shutdown: hook complete")
	}

	if startupErr != nil {
		return startupErr
	}

	if shutdownErr != nil {
		return shutdownErr
	}

	logger.Info().Msg("server shutdown complete")

	return nil
}

// logReadiness reports what the server will do with incoming requests. An
// incomplete access configuration is logged as an error: the process serves,
// but every request is rejected.
func logReadiness(logger *zerolog.Logger, cfg config.Config) {
	ev := logger.Info()
	if !cfg.Access.Complete() {
		ev = logger.Error()
	}

	ev.Int("port", cfg.Server.Port).
		Str("teamDomain", cfg.Access.TeamDomain).
		Bool("accessConfigured", cfg.Access.Complete()).
		Int("certsCacheTTLSecs", cfg.Access.CertsCacheTTLSeconds).
		Msg("server starting: access gate applied to all routes")
}
