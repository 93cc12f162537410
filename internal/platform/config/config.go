package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendSQLite   = "sqlite"
)

// ServerConfig configures cmd/api.
type ServerConfig struct {
	Port           string
	StorageBackend string
	DatabaseURL    string
	SQLitePath     string
	LogLevel       string

	// RequestTimeout bounds each request, including every store call it makes.
	RequestTimeout time.Duration
	EventWindow    time.Duration

	DefaultPageSize int
	MaxPageSize     int

	DBMaxConns int32
	DBMinConns int32
}

func LoadServerConfigFromEnv() (ServerConfig, error) {
	cfg := ServerConfig{
		Port:            getenv("PORT", "8080"),
		StorageBackend:  getenv("STORAGE_BACKEND", BackendMemory),
		DatabaseURL:     os.Getenv("DATABASE_URL"),
		SQLitePath:      getenv("SQLITE_PATH", "rides.db"),
		LogLevel:        getenv("LOG_LEVEL", "INFO"),
		RequestTimeout:  10 * time.Second,
		EventWindow:     24 * time.Hour,
		DefaultPageSize: 10,
		MaxPageSize:     100,
	}

	switch cfg.StorageBackend {
	case BackendMemory, BackendSQLite:
	case BackendPostgres:
		if cfg.DatabaseURL == "" {
			return ServerConfig{}, fmt.Errorf("DATABASE_URL is required when STORAGE_BACKEND=postgres")
		}
	default:
		return ServerConfig{}, fmt.Errorf("unknown STORAGE_BACKEND %q (want memory, postgres or sqlite)", cfg.StorageBackend)
	}

	var err error
	if cfg.RequestTimeout, err = durationEnv("REQUEST_TIMEOUT", cfg.RequestTimeout); err != nil {
		return ServerConfig{}, err
	}
	if cfg.EventWindow, err = durationEnv("EVENT_WINDOW", cfg.EventWindow); err != nil {
		return ServerConfig{}, err
	}
	if cfg.DefaultPageSize, err = intEnv("DEFAULT_PAGE_SIZE", cfg.DefaultPageSize); err != nil {
		return ServerConfig{}, err
	}
	if cfg.MaxPageSize, err = intEnv("MAX_PAGE_SIZE", cfg.MaxPageSize); err != nil {
		return ServerConfig{}, err
	}
	if cfg.DefaultPageSize > cfg.MaxPageSize {
		return ServerConfig{}, fmt.Errorf("DEFAULT_PAGE_SIZE (%d) exceeds MAX_PAGE_SIZE (%d)", cfg.DefaultPageSize, cfg.MaxPageSize)
	}

	maxConns, err := intEnv("DB_MAX_CONNS", 0)
	if err != nil {
		return ServerConfig{}, err
	}
	minConns, err := intEnv("DB_MIN_CONNS", 0)
	if err != nil {
		return ServerConfig{}, err
	}
	cfg.DBMaxConns, cfg.DBMinConns = int32(maxConns), int32(minConns)

	return cfg, nil
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func durationEnv(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be a duration (e.g. %s): %w", key, def, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive", key)
	}
	return d, nil
}

func intEnv(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer: %w", key, err)
	}
	if n < 0 || n > 1<<20 {
		return 0, fmt.Errorf("%s out of range: %d", key, n)
	}
	return n, nil
}
