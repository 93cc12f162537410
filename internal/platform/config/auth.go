package config

import (
	"fmt"
	"os"
	"time"
)

const (
	AuthModeJWT = "jwt"
	AuthModeDev = "dev"
)

// AuthConfig configures token issuance and verification.
type AuthConfig struct {
	Mode string

	Secret   []byte
	Issuer   string
	Audience string

	AccessTTL  time.Duration
	RefreshTTL time.Duration
	ClockSkew  time.Duration
}

func LoadAuthConfigFromEnv() (AuthConfig, error) {
	cfg := AuthConfig{
		Mode:       getenv("AUTH_MODE", AuthModeJWT),
		Secret:     []byte(os.Getenv("JWT_SECRET")),
		Issuer:     getenv("JWT_ISSUER", "ride-records-api"),
		Audience:   getenv("JWT_AUDIENCE", "ride-records-api"),
		AccessTTL:  15 * time.Minute,
		RefreshTTL: 24 * time.Hour,
		ClockSkew:  30 * time.Second,
	}

	switch cfg.Mode {
	case AuthModeJWT:
		if len(cfg.Secret) == 0 {
			return AuthConfig{}, fmt.Errorf("missing required env var: JWT_SECRET")
		}
	case AuthModeDev:
		// Dev mode still issues tokens from /auth/login.
		if len(cfg.Secret) == 0 {
			cfg.Secret = []byte("dev-insecure-secret")
		}
	default:
		return AuthConfig{}, fmt.Errorf("unknown AUTH_MODE %q (want jwt or dev)", cfg.Mode)
	}

	var err error
	if cfg.AccessTTL, err = durationEnv("JWT_ACCESS_TTL", cfg.AccessTTL); err != nil {
		return AuthConfig{}, err
	}
	if cfg.RefreshTTL, err = durationEnv("JWT_REFRESH_TTL", cfg.RefreshTTL); err != nil {
		return AuthConfig{}, err
	}
	if v := os.Getenv("JWT_CLOCK_SKEW"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return AuthConfig{}, fmt.Errorf("JWT_CLOCK_SKEW must be a duration (e.g. 30s): %w", err)
		}
		cfg.ClockSkew = d
	}
	return cfg, nil
}
