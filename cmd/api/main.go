package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/wingz-dispatch/ride-records-api/internal/adapters/httpapi"
	"github.com/wingz-dispatch/ride-records-api/internal/adapters/storage"
	"github.com/wingz-dispatch/ride-records-api/internal/app/paging"
	"github.com/wingz-dispatch/ride-records-api/internal/app/rides"
	"github.com/wingz-dispatch/ride-records-api/internal/app/users"
	"github.com/wingz-dispatch/ride-records-api/internal/platform/auth/tokens"
	platformclock "github.com/wingz-dispatch/ride-records-api/internal/platform/clock"
	"github.com/wingz-dispatch/ride-records-api/internal/platform/config"
	"github.com/wingz-dispatch/ride-records-api/internal/platform/logging"
)

func main() {
	cfg, err := config.LoadServerConfigFromEnv()
	if err != nil {
		slog.Error("invalid server config", "error", err)
		os.Exit(1)
	}
	log := logging.New(os.Stdout, cfg.LogLevel)
	slog.SetDefault(log)

	authCfg, err := config.LoadAuthConfigFromEnv()
	if err != nil {
		log.Error("invalid auth config", "error", err)
		os.Exit(1)
	}

	clk := platformclock.NewSystemClock()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	stores, err := storage.Open(ctx, cfg, log)
	if err != nil {
		log.Error("open storage", "backend", cfg.StorageBackend, "error", err)
		os.Exit(1)
	}
	defer stores.Close()

	limits := paging.Limits{Default: cfg.DefaultPageSize, Max: cfg.MaxPageSize}
	userSvc := users.NewService(stores.Users, clk)
	userSvc.Limits = limits
	rideSvc := rides.NewService(stores.Rides, userSvc, clk)
	rideSvc.Limits = limits
	rideSvc.EventWindow = cfg.EventWindow

	if err := bootstrapAdmin(ctx, userSvc, log); err != nil {
		log.Error("bootstrap admin", "error", err)
		os.Exit(1)
	}

	issuer := tokens.NewIssuer(tokens.Config{
		Secret:     authCfg.Secret,
		Issuer:     authCfg.Issuer,
		Audience:   authCfg.Audience,
		AccessTTL:  authCfg.AccessTTL,
		RefreshTTL: authCfg.RefreshTTL,
		ClockSkew:  authCfg.ClockSkew,
	}, clk)

	// Auth configuration:
	// - Production: bearer access tokens issued by /auth/login
	// - Local dev: set AUTH_MODE=dev to pass a user id via X-Debug-Subject
	var authMW func(http.Handler) http.Handler
	switch authCfg.Mode {
	case config.AuthModeDev:
		log.Warn("dev auth mode enabled; X-Debug-Subject is trusted")
		authMW = httpapi.NewDevAuthMiddleware(userSvc, os.Getenv("DEV_SUBJECT"), log)
	default:
		authMW = httpapi.NewAuthMiddleware(issuer, userSvc, log)
	}

	api := httpapi.NewServer(rideSvc, userSvc, issuer, stores.Idem, log)
	handler := httpapi.NewRouter(api, httpapi.RouterOptions{
		AuthMiddleware: authMW,
		Logger:         log,
		RequestTimeout: cfg.RequestTimeout,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info("api listening", "port", cfg.Port, "backend", cfg.StorageBackend, "auth_mode", authCfg.Mode)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("listen", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("shutdown", "error", err)
	}
}

// bootstrapAdmin creates (or promotes) the account named by ADMIN_USERNAME when ADMIN_PASSWORD is
// also set. It is how the in-memory backend gets its first admin.
func bootstrapAdmin(ctx context.Context, svc *users.Service, log *slog.Logger) error {
	username, password := os.Getenv("ADMIN_USERNAME"), os.Getenv("ADMIN_PASSWORD")
	if username == "" || password == "" {
		return nil
	}
	_, err := svc.CreateUser(ctx, users.CreateUserInput{
		Username: username,
		Email:    getenv("ADMIN_EMAIL", username+"@localhost.localdomain"),
		Password: password,
	})
	if ae := (*users.Error)(nil); err != nil && !(errors.As(err, &ae) && ae.Code == "USERNAME_TAKEN") {
		return err
	}
	u, err := svc.PromoteToAdmin(ctx, username)
	if err != nil {
		return err
	}
	log.Info("admin ready", "username", u.Username, "user_id", string(u.ID))
	return nil
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
