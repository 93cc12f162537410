package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/wingz-dispatch/ride-records-api/internal/domain"
	"github.com/wingz-dispatch/ride-records-api/internal/platform/auth/tokens"
)

// TokenVerifier checks a bearer token and returns its subject.
type TokenVerifier interface {
	Verify(raw string, want tokens.Type) (string, error)
}

// UserResolver loads the caller so the current role and active flag are used.
type UserResolver interface {
	LookupUser(ctx context.Context, id domain.UserID) (domain.User, bool, error)
}

// NewAuthMiddleware enforces Authorization: Bearer <access token>.
//
// On success, it stores the caller's Principal in request context. Lookup failures are logged to log
// (slog.Default when nil).
func NewAuthMiddleware(v TokenVerifier, users UserResolver, log *slog.Logger) func(http.Handler) http.Handler {
	if log == nil {
		log = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authz := r.Header.Get("Authorization")
			if authz == "" {
				writeError(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "missing Authorization header", nil)
				return
			}
			const prefix = "Bearer "
			if !strings.HasPrefix(authz, prefix) {
				writeError(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "malformed Authorization header", nil)
				return
			}
			raw := strings.TrimSpace(strings.TrimPrefix(authz, prefix))
			if raw == "" {
				writeError(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "missing bearer token", nil)
				return
			}

			sub, err := v.Verify(raw, tokens.TypeAccess)
			if err != nil {
				writeError(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "invalid token", nil)
				return
			}
			authenticate(w, r, next, users, log, domain.UserID(sub))
		})
	}
}

// NewDevAuthMiddleware is a local/dev-only auth shim.
//
// It takes the caller's user id from X-Debug-Subject, falling back to defaultSubject.
// Do NOT use this in production deployments.
func NewDevAuthMiddleware(users UserResolver, defaultSubject string, log *slog.Logger) func(http.Handler) http.Handler {
	if log == nil {
		log = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sub := strings.TrimSpace(r.Header.Get("X-Debug-Subject"))
			if sub == "" {
				sub = strings.TrimSpace(defaultSubject)
			}
			if sub == "" {
				writeError(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "missing subject (set X-Debug-Subject)", nil)
				return
			}
			authenticate(w, r, next, users, log, domain.UserID(sub))
		})
	}
}

func authenticate(w http.ResponseWriter, r *http.Request, next http.Handler, users UserResolver, log *slog.Logger, id domain.UserID) {
	u, found, err := users.LookupUser(r.Context(), id)
	if err != nil {
		log.ErrorContext(r.Context(), "auth user lookup failed",
			"path", r.URL.Path,
			"request_id", middleware.GetReqID(r.Context()),
			"user_id", string(id),
			"error", err,
		)
		writeError(w, r, http.StatusInternalServerError, "INTERNAL", "internal error", nil)
		return
	}
	if !found || !u.IsActive {
		writeError(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "unknown or inactive user", nil)
		return
	}
	ctx := WithPrincipal(r.Context(), Principal{UserID: u.ID, Role: u.Role})
	next.ServeHTTP(w, r.WithContext(ctx))
}

// RequireRole rejects authenticated callers whose role does not satisfy allowed.
func RequireRole(allowed func(domain.Role) bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := PrincipalFromContext(r.Context())
			if !ok {
				writeError(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required", nil)
				return
			}
			if !allowed(p.Role) {
				writeError(w, r, http.StatusForbidden, "FORBIDDEN", "you do not have permission to perform this action", nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
