package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/eloquentai/eloquent-chat/internal/api"
	"github.com/eloquentai/eloquent-chat/internal/observability"
)

// Server timeouts. The write timeout is long because SSE responses stay
// open for the whole generation.
const (
	readHeaderTimeout = 10 * time.Second
	readTimeout       = 30 * time.Second
	writeTimeout      = 2 * time.Minute
	idleTimeout       = 2 * time.Minute
	shutdownTimeout   = 30 * time.Second
)

// runServe starts the HTTP API server and blocks until shutdown.
func runServe() error {
	logger := initLogger()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger.Info("starting eloquent-chat", "version", Version)

	a, err := setup(ctx, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	shutdownTracing, err := observability.SetupTracing(ctx, observability.Config{
		Endpoint:    a.cfg.TracingEndpoint,
		Environment: a.cfg.Environment,
		ServiceName: observability.DefaultServiceName,
	})
	if err != nil {
		return fmt.Errorf("setting up tracing: %w", err)
	}
	defer func() {
		flushCtx, flushCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer flushCancel()
		if err := shutdownTracing(flushCtx); err != nil {
			logger.Warn("flushing traces", "error", err)
		}
	}()

	apiServer, err := api.NewServer(api.ServerConfig{
		Orchestrator:   a.orch,
		Gate:           a.gate,
		Signer:         a.signer,
		Sessions:       a.sessions,
		DB:             a.pool,
		Logger:         logger.With("component", "api"),
		Version:        Version,
		AllowedOrigins: a.cfg.CORSOrigins,
		RateLimitRPS:   a.cfg.RateRPS,
		RateLimitBurst: a.cfg.RateBurst,
		TrustProxy:     a.cfg.TrustProxy,
		SecureCookies:  a.cfg.SecureCookies,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}

	srv := &http.Server{
		Addr:              a.cfg.ListenAddr,
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
	}

	logger.Info("HTTP server ready",
		"addr", a.cfg.ListenAddr,
		"api", "/api/v1/*",
		"health", "/health, /ready",
	)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down HTTP server")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutting down server: %w", err)
		}
		<-errCh
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("HTTP server: %w", err)
	}
}
