package handlers

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/contactbook/apiserver/internal/auth"
	"github.com/contactbook/apiserver/internal/ratelimit"
	"github.com/contactbook/apiserver/types"
)

// Authenticator resolves a bearer token to an identity.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (types.Identity, error)
}

// Limiter admits or rejects a request for a user.
type Limiter interface {
	Allow(ctx context.Context, userID int) error
	RetryAfter(ctx context.Context, userID int) time.Duration
}

// RequireAuth rejects requests without a valid access token and stores the
// caller's identity in the request context.
func RequireAuth(authn Authenticator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, err := bearerToken(r)
			if err != nil {
				writeUnauthorized(w, "not authenticated")
				return
			}

			identity, err := authn.Authenticate(r.Context(), token)
			if err != nil {
				if errors.Is(err, auth.ErrInvalidToken) || errors.Is(err, auth.ErrUnauthorized) {
					writeUnauthorized(w, "could not validate credentials")
					return
				}
				logger.ErrorContext(r.Context(), "authenticate request", "error", err)
				writeError(w, http.StatusInternalServerError, "internal server error")
				return
			}

			next.ServeHTTP(w, r.WithContext(withIdentity(r.Context(), identity)))
		})
	}
}

// RequireRole must run after RequireAuth.
func RequireRole(role types.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, err := identityFromContext(r.Context())
			if err != nil {
				writeUnauthorized(w, "not authenticated")
				return
			}
			if err := auth.Authorize(identity, role); err != nil {
				writeError(w, http.StatusForbidden, "insufficient permissions")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RateLimit counts requests per authenticated user and answers 429 once the
// window is full. When the limiter backend fails the request is let through.
func RateLimit(limiter Limiter, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, err := identityFromContext(r.Context())
			if err != nil {
				writeUnauthorized(w, "not authenticated")
				return
			}

			err = limiter.Allow(r.Context(), identity.ID)
			switch {
			case err == nil:
			case errors.Is(err, ratelimit.ErrLimited):
				if wait := limiter.RetryAfter(r.Context(), identity.ID); wait > 0 {
					w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
				}
				writeError(w, http.StatusTooManyRequests, "too many requests")
				return
			default:
				logger.WarnContext(r.Context(), "rate limiter unavailable, admitting request",
					"user_id", identity.ID,
					"error", err,
				)
			}
			next.ServeHTTP(w, r)
		})
	}
}
