package httpapi

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/scrapco/scrapco-go/internal/domain/shared"
)

// TokenAuthenticator resolves a customer bearer token to a customer id.
// Customer identity lives outside this service; callers plug in their own
// resolver.
type TokenAuthenticator interface {
	CustomerIDFromToken(ctx context.Context, token string) (string, error)
}

// OpaqueTokenAuthenticator treats the bearer token itself as the customer id.
// Suitable for deployments where an upstream gateway already validated the
// token and rewrote it to the subject.
type OpaqueTokenAuthenticator struct{}

// CustomerIDFromToken returns the token as the customer id
func (OpaqueTokenAuthenticator) CustomerIDFromToken(_ context.Context, token string) (string, error) {
	if token == "" {
		return "", shared.NewAuthError("empty bearer token")
	}
	return token, nil
}

type contextKey int

const customerIDKey contextKey = iota

// CustomerIDFromContext extracts the authenticated customer id
func CustomerIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(customerIDKey).(string)
	return id, ok
}

// BearerAuthMiddleware authenticates customer requests and stores the
// customer id on the request context
func BearerAuthMiddleware(auth TokenAuthenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if !strings.HasPrefix(header, "Bearer ") {
				writeError(w, shared.NewAuthError("missing bearer token"))
				return
			}

			customerID, err := auth.CustomerIDFromToken(r.Context(), strings.TrimPrefix(header, "Bearer "))
			if err != nil {
				writeError(w, shared.NewAuthError("invalid bearer token"))
				return
			}

			ctx := context.WithValue(r.Context(), customerIDKey, customerID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// statusRecorder captures the response code for the request log
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (rec *statusRecorder) WriteHeader(code int) {
	rec.status = code
	rec.ResponseWriter.WriteHeader(code)
}

// RequestLoggingMiddleware emits one structured log line per request
func RequestLoggingMiddleware(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(rec, r)

			logger.Info().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", rec.status).
				Dur("duration", time.Since(start)).
				Msg("request")
		})
	}
}
