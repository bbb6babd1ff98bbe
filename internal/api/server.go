// Package api exposes the chat engine over HTTP: JSON endpoints for
// sessions and auth, and an SSE endpoint for streamed generation.
package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/eloquentai/eloquent-chat/internal/identity"
	"github.com/eloquentai/eloquent-chat/internal/log"
	"github.com/eloquentai/eloquent-chat/internal/session"
)

const (
	defaultRateLimitRPS   = 10
	defaultRateLimitBurst = 20
)

// Gate is the slice of the identity gate the HTTP surface consumes.
// Satisfied by *identity.Gate.
type Gate interface {
	Register(ctx context.Context, email, password string) (*identity.User, string, error)
	Login(ctx context.Context, email, password string) (*identity.User, string, error)
	Promote(ctx context.Context, anonToken, email, password string) (*identity.User, string, int, error)
	Remaining(ctx context.Context, owner identity.Owner) (int, error)
}

// SessionReader is the slice of the session store the HTTP surface
// consumes. Satisfied by *session.Store.
type SessionReader interface {
	ListSessions(ctx context.Context, ownerID string) ([]*session.Session, error)
	Messages(ctx context.Context, sessionID uuid.UUID, ownerID, cursor string, limit int) (*session.Page, error)
	Delete(ctx context.Context, sessionID uuid.UUID, ownerID string) error
}

// ServerConfig carries the dependencies and settings for the HTTP surface.
type ServerConfig struct {
	Orchestrator Orchestrator
	Gate         Gate
	Signer       *identity.Signer
	Sessions     SessionReader
	DB           Pinger
	Logger       log.Logger

	Version        string
	AllowedOrigins []string
	RateLimitRPS   float64
	RateLimitBurst int

	// TrustProxy enables X-Forwarded-For and X-Request-ID from upstream.
	// Leave off unless a reverse proxy fronts the server.
	TrustProxy bool

	// SecureCookies marks the anonymous token cookie Secure. On whenever
	// the deployment serves HTTPS.
	SecureCookies bool
}

func (c *ServerConfig) validate() error {
	if c.Orchestrator == nil {
		return errors.New("api: orchestrator is required")
	}
	if c.Gate == nil {
		return errors.New("api: identity gate is required")
	}
	if c.Signer == nil {
		return errors.New("api: credential signer is required")
	}
	if c.Sessions == nil {
		return errors.New("api: session store is required")
	}
	if c.DB == nil {
		return errors.New("api: database is required")
	}
	if c.Logger == nil {
		return errors.New("api: logger is required")
	}
	if c.RateLimitRPS <= 0 {
		c.RateLimitRPS = defaultRateLimitRPS
	}
	if c.RateLimitBurst <= 0 {
		c.RateLimitBurst = defaultRateLimitBurst
	}
	return nil
}

// Server is the assembled HTTP handler.
type Server struct {
	handler http.Handler
}

// NewServer wires handlers and middleware.
//
// Stack, outermost first: Recovery, RequestID, Logging, CORS, RateLimit.
// Owner resolution wraps only the /api/v1 routes so health probes stay
// cookie-free.
func NewServer(cfg ServerConfig) (*Server, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	chatH := &chatHandler{orch: cfg.Orchestrator, gate: cfg.Gate, logger: cfg.Logger}
	sessionH := &sessionHandler{store: cfg.Sessions, logger: cfg.Logger}
	authH := &authHandler{gate: cfg.Gate, logger: cfg.Logger}
	healthH := &healthHandler{db: cfg.DB, version: cfg.Version, logger: cfg.Logger}

	apiMux := http.NewServeMux()
	apiMux.HandleFunc("POST /api/v1/chat", chatH.send)
	apiMux.HandleFunc("POST /api/v1/chat/stream", chatH.stream)
	apiMux.HandleFunc("GET /api/v1/sessions", sessionH.list)
	apiMux.HandleFunc("GET /api/v1/sessions/{id}/messages", sessionH.messages)
	apiMux.HandleFunc("DELETE /api/v1/sessions/{id}", sessionH.remove)
	apiMux.HandleFunc("POST /api/v1/auth/register", authH.register)
	apiMux.HandleFunc("POST /api/v1/auth/login", authH.login)
	apiMux.HandleFunc("POST /api/v1/auth/promote", authH.promote)

	owner := ownerMiddleware(cfg.Signer, cfg.SecureCookies, cfg.Logger)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", healthH.health)
	mux.HandleFunc("GET /ready", healthH.ready)
	mux.Handle("/api/v1/", owner(apiMux))

	limiter := newRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)

	var handler http.Handler = mux
	handler = rateLimitMiddleware(limiter, cfg.TrustProxy, cfg.Logger)(handler)
	handler = corsMiddleware(cfg.AllowedOrigins)(handler)
	handler = loggingMiddleware(cfg.Logger)(handler)
	handler = tracingMiddleware(handler)
	handler = requestIDMiddleware(cfg.TrustProxy)(handler)
	handler = recoveryMiddleware(cfg.Logger)(handler)

	return &Server{handler: handler}, nil
}

// Handler returns the root handler for an http.Server.
func (s *Server) Handler() http.Handler {
	return s.handler
}
