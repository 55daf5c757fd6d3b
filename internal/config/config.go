// Package config loads service settings from the environment. A .env file in
// the working directory is read first when present.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	_ "github.com/joho/godotenv/autoload"
)

const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

type Config struct {
	Port               int
	Store              string
	LogLevel           string
	LogFormat          string
	GraphiQL           bool
	CORSAllowedOrigins []string
	Database           DatabaseConfig
	Superset           SupersetConfig
}

type DatabaseConfig struct {
	// URL, when set, replaces the individual connection parts.
	URL      string
	Host     string
	Port     string
	Name     string
	Username string
	Password string
	Schema   string

	MaxIdleConns    int
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
	RunMigrations   bool
	LogSQL          bool
}

type SupersetConfig struct {
	URL      string
	Username string
	Password string
	Provider string
	Timeout  time.Duration
}

// Enabled reports whether a dashboard backend has been configured.
func (s SupersetConfig) Enabled() bool { return s.URL != "" }

// Load reads the configuration from the environment and validates it.
func Load() (*Config, error) {
	var errs []string
	fail := func(err error) {
		if err != nil {
			errs = append(errs, err.Error())
		}
	}

	cfg := &Config{
		Store:              strings.ToLower(getEnv("TODO_STORE", StorePostgres)),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		LogFormat:          getEnv("LOG_FORMAT", "json"),
		CORSAllowedOrigins: splitList(getEnv("CORS_ALLOWED_ORIGINS", "https://*,http://*")),
		Database: DatabaseConfig{
			URL:      os.Getenv("PGDB_URL"),
			Host:     getEnv("BLUEPRINT_DB_HOST", "localhost"),
			Port:     getEnv("BLUEPRINT_DB_PORT", "5432"),
			Name:     getEnv("BLUEPRINT_DB_DATABASE", "todos"),
			Username: getEnv("BLUEPRINT_DB_USERNAME", "postgres"),
			Password: os.Getenv("BLUEPRINT_DB_PASSWORD"),
			Schema:   os.Getenv("BLUEPRINT_DB_SCHEMA"),
		},
		Superset: SupersetConfig{
			URL:      strings.TrimRight(os.Getenv("SUPERSET_URL"), "/"),
			Username: getEnv("SUPERSET_USERNAME", "admin"),
			Password: os.Getenv("SUPERSET_PASSWORD"),
			Provider: getEnv("SUPERSET_PROVIDER", "db"),
		},
	}

	var err error
	cfg.Port, err = getEnvInt("PORT", 8080)
	fail(err)
	cfg.GraphiQL, err = getEnvBool("GRAPHIQL", false)
	fail(err)
	cfg.Database.MaxIdleConns, err = getEnvInt("DB_MAX_IDLE_CONNS", 10)
	fail(err)
	cfg.Database.MaxOpenConns, err = getEnvInt("DB_MAX_OPEN_CONNS", 100)
	fail(err)
	cfg.Database.ConnMaxLifetime, err = getEnvDuration("DB_CONN_MAX_LIFETIME", time.Hour)
	fail(err)
	cfg.Database.RunMigrations, err = getEnvBool("DB_RUN_MIGRATIONS", true)
	fail(err)
	cfg.Database.LogSQL, err = getEnvBool("DB_LOG_SQL", false)
	fail(err)
	cfg.Superset.Timeout, err = getEnvDuration("SUPERSET_TIMEOUT", 10*time.Second)
	fail(err)

	if cfg.Port <= 0 || cfg.Port > 65535 {
		errs = append(errs, fmt.Sprintf("PORT %d is out of range", cfg.Port))
	}
	if cfg.Store != StorePostgres && cfg.Store != StoreMemory {
		errs = append(errs, fmt.Sprintf("TODO_STORE must be %q or %q, got %q", StorePostgres, StoreMemory, cfg.Store))
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("invalid configuration: %s", strings.Join(errs, "; "))
	}
	return cfg, nil
}

// DSN returns a postgres URL usable by both gorm and golang-migrate.
func (d DatabaseConfig) DSN() string {
	if d.URL != "" {
		return d.URL
	}
	q := url.Values{}
	q.Set("sslmode", "disable")
	if d.Schema != "" {
		q.Set("search_path", d.Schema)
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(d.Username, d.Password),
		Host:     d.Host + ":" + d.Port,
		Path:     "/" + d.Name,
		RawQuery: q.Encode(),
	}
	return u.String()
}

func getEnv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback, fmt.Errorf("%s: %q is not an integer", key, v)
	}
	return n, nil
}

func getEnvBool(key string, fallback bool) (bool, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback, fmt.Errorf("%s: %q is not a boolean", key, v)
	}
	return b, nil
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback, fmt.Errorf("%s: %q is not a duration", key, v)
	}
	return d, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
