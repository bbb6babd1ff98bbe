package api

import (
	"context"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/eloquentai/eloquent-chat/internal/identity"
	"github.com/eloquentai/eloquent-chat/internal/log"
)

type contextKey string

const (
	ownerContextKey     contextKey = "owner"
	requestIDContextKey contextKey = "request_id"
)

// anonCookieName carries the anonymous token between requests. HttpOnly so
// scripts cannot read it; the promote endpoint receives it server-side.
const anonCookieName = "eloquent_anon"

const anonCookieMaxAge = 180 * 24 * 60 * 60 // 180 days

// ownerFromContext returns the request owner set by ownerMiddleware.
func ownerFromContext(ctx context.Context) (identity.Owner, bool) {
	owner, ok := ctx.Value(ownerContextKey).(identity.Owner)
	return owner, ok
}

// requestIDFromContext returns the request id, or "" if absent.
func requestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDContextKey).(string)
	return id
}

// loggingWriter wraps http.ResponseWriter to capture status and size.
type loggingWriter struct {
	http.ResponseWriter
	statusCode   int
	bytesWritten int64
}

func (lw *loggingWriter) WriteHeader(code int) {
	lw.statusCode = code
	lw.ResponseWriter.WriteHeader(code)
}

func (lw *loggingWriter) Write(b []byte) (int, error) {
	if lw.statusCode == 0 {
		lw.statusCode = http.StatusOK
	}
	n, err := lw.ResponseWriter.Write(b)
	lw.bytesWritten += int64(n)
	return n, err
}

// Flush implements http.Flusher so SSE streaming works through the
// middleware stack.
func (lw *loggingWriter) Flush() {
	if f, ok := lw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Unwrap supports http.ResponseController.
func (lw *loggingWriter) Unwrap() http.ResponseWriter {
	return lw.ResponseWriter
}

// recoveryMiddleware converts panics into 500 responses.
func recoveryMiddleware(logger log.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					logger.Error("panic recovered",
						"error", err,
						"path", r.URL.Path,
						"stack", string(debug.Stack()),
					)
					writeError(w, http.StatusInternalServerError, "internal_error", "internal server error", logger)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// requestIDMiddleware attaches a request id to the context and echoes it
// in the X-Request-ID header. An inbound id from a trusted proxy is kept.
func requestIDMiddleware(trustProxy bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := ""
			if trustProxy {
				id = r.Header.Get("X-Request-ID")
			}
			if id == "" {
				id = uuid.NewString()
			}
			w.Header().Set("X-Request-ID", id)
			ctx := context.WithValue(r.Context(), requestIDContextKey, id)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// tracingMiddleware opens a span per request on the global tracer provider.
// With tracing disabled the global provider is a no-op, so this costs
// nothing.
func tracingMiddleware(next http.Handler) http.Handler {
	tracer := otel.Tracer("eloquent-chat/api")
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), r.Method+" "+r.URL.Path,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				attribute.String("http.request.method", r.Method),
				attribute.String("url.path", r.URL.Path),
				attribute.String("request.id", requestIDFromContext(r.Context())),
			),
		)
		defer span.End()

		lw := &loggingWriter{ResponseWriter: w}
		next.ServeHTTP(lw, r.WithContext(ctx))

		if lw.statusCode == 0 {
			lw.statusCode = http.StatusOK
		}
		span.SetAttributes(attribute.Int("http.response.status_code", lw.statusCode))
	})
}

// loggingMiddleware logs one line per request.
func loggingMiddleware(logger log.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			lw := &loggingWriter{ResponseWriter: w}

			next.ServeHTTP(lw, r)

			if lw.statusCode == 0 {
				lw.statusCode = http.StatusOK
			}
			logger.Info("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", lw.statusCode,
				"bytes", lw.bytesWritten,
				"duration", time.Since(start).String(),
				"request_id", requestIDFromContext(r.Context()),
			)
		})
	}
}

// corsMiddleware allows the configured browser origins.
func corsMiddleware(allowedOrigins []string) func(http.Handler) http.Handler {
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin != "" && allowed[origin] {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Credentials", "true")
				w.Header().Set("Vary", "Origin")
			}

			if r.Method == http.MethodOptions {
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
				w.Header().Set("Access-Control-Max-Age", "86400")
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// ownerMiddleware resolves the request owner. A valid Bearer credential
// wins; otherwise the anonymous token cookie identifies the caller, and a
// fresh token is provisioned on first contact.
func ownerMiddleware(signer *identity.Signer, secureCookies bool, logger log.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if auth := r.Header.Get("Authorization"); auth != "" {
				credential, ok := strings.CutPrefix(auth, "Bearer ")
				if !ok {
					writeError(w, http.StatusUnauthorized, "invalid_credentials", "malformed Authorization header", logger)
					return
				}
				userID, err := signer.Verify(credential)
				if err != nil {
					writeError(w, http.StatusUnauthorized, "invalid_credentials", "invalid or expired access credential", logger)
					return
				}
				ctx := context.WithValue(r.Context(), ownerContextKey, identity.UserOwner(userID))
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}

			token := ""
			if c, err := r.Cookie(anonCookieName); err == nil && c.Value != "" {
				token = c.Value
			}
			if token == "" {
				var err error
				token, err = identity.NewAnonToken()
				if err != nil {
					logger.Error("provisioning anonymous token", "error", err)
					writeError(w, http.StatusInternalServerError, "internal_error", "internal server error", logger)
					return
				}
				http.SetCookie(w, &http.Cookie{
					Name:     anonCookieName,
					Value:    token,
					Path:     "/",
					MaxAge:   anonCookieMaxAge,
					HttpOnly: true,
					Secure:   secureCookies,
					SameSite: http.SameSiteLaxMode,
				})
			}

			ctx := context.WithValue(r.Context(), ownerContextKey, identity.AnonymousOwner(token))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
