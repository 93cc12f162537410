package httpapi

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/wingz-dispatch/ride-records-api/internal/domain"
)

type RouterOptions struct {
	// AuthMiddleware authenticates every route except /healthz and /auth/*.
	AuthMiddleware func(http.Handler) http.Handler
	Logger         *slog.Logger
	// RequestTimeout bounds each request's context, and with it every store call.
	RequestTimeout time.Duration
}

// NewRouter constructs the API HTTP router.
func NewRouter(s *Server, opts RouterOptions) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	if opts.Logger != nil {
		r.Use(accessLog(opts.Logger))
	}
	r.Use(middleware.Recoverer)
	if opts.RequestTimeout > 0 {
		r.Use(middleware.Timeout(opts.RequestTimeout))
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, "NOT_FOUND", "no such route", nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed", nil)
	})

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Post("/auth/login", s.Login)
	r.Post("/auth/refresh", s.Refresh)

	r.Group(func(r chi.Router) {
		if opts.AuthMiddleware != nil {
			r.Use(opts.AuthMiddleware)
		}

		r.Route("/rides", func(r chi.Router) {
			r.Use(RequireRole(domain.Role.CanManageRides))
			r.Get("/", s.ListRides)
			r.Post("/", s.CreateRide)
			r.Route("/{rideID}", func(r chi.Router) {
				r.Get("/", s.GetRide)
				r.Put("/", s.ReplaceRide)
				r.Patch("/", s.UpdateRide)
				r.Delete("/", s.DeleteRide)
				r.Get("/events", s.ListRideEvents)
			})
		})

		r.Route("/users", func(r chi.Router) {
			r.Get("/me", s.GetMe)
			r.Group(func(r chi.Router) {
				r.Use(RequireRole(domain.Role.CanManageUsers))
				r.Get("/", s.ListUsers)
				r.Post("/", s.CreateUser)
				r.Get("/{userID}", s.GetUser)
				r.Put("/{userID}", s.ReplaceUser)
				r.Patch("/{userID}", s.UpdateUser)
				r.Delete("/{userID}", s.DeleteUser)
			})
		})
	})
	return r
}

func accessLog(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			defer func() {
				log.InfoContext(r.Context(), "http request",
					"method", r.Method,
					"path", r.URL.Path,
					"status", ww.Status(),
					"bytes", ww.BytesWritten(),
					"duration_ms", time.Since(start).Milliseconds(),
					"request_id", middleware.GetReqID(r.Context()),
				)
			}()
			next.ServeHTTP(ww, r)
		})
	}
}
