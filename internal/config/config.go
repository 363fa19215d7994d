package config

import (
	"fmt"
	"strings"

	"github.com/MarcoPoloResearchLab/leafnotes/internal/logging"
	"github.com/spf13/viper"
)

const (
	envPrefix              = "LEAFNOTES"
	defaultHTTPAddress     = "0.0.0.0:8080"
	defaultDatabasePath    = "leafnotes.db"
	defaultLogLevel        = "info"
	defaultSessionIssuer   = "leafnotes-auth"
	defaultCookieName      = "app_session"
	defaultCacheBackend    = CacheBackendSQLite
	defaultQueryMaxResults = 100

	// CacheBackendSQLite stores note snapshots in the cache_entries table.
	CacheBackendSQLite = "sqlite"
	// CacheBackendMemory keeps note snapshots in process memory.
	CacheBackendMemory = "memory"
)

// AppConfig captures runtime configuration for the API server.
type AppConfig struct {
	HTTPAddress     string
	DatabasePath    string
	LogLevel        string
	SigningSecret   string
	SessionIssuer   string
	CookieName      string
	CacheBackend    string
	QueryMaxResults int
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("auth.issuer", defaultSessionIssuer)
	configViper.SetDefault("auth.cookie_name", defaultCookieName)
	configViper.SetDefault("cache.backend", defaultCacheBackend)
	configViper.SetDefault("query.max_results", defaultQueryMaxResults)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:     configViper.GetString("http.address"),
		DatabasePath:    configViper.GetString("database.path"),
		LogLevel:        configViper.GetString("log.level"),
		SigningSecret:   configViper.GetString("auth.signing_secret"),
		SessionIssuer:   configViper.GetString("auth.issuer"),
		CookieName:      configViper.GetString("auth.cookie_name"),
		CacheBackend:    strings.ToLower(strings.TrimSpace(configViper.GetString("cache.backend"))),
		QueryMaxResults: configViper.GetInt("query.max_results"),
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.SigningSecret) == "" {
		return fmt.Errorf("auth.signing_secret is required")
	}
	if strings.TrimSpace(c.DatabasePath) == "" {
		return fmt.Errorf("database.path is required")
	}
	if strings.TrimSpace(c.SessionIssuer) == "" {
		return fmt.Errorf("auth.issuer is required")
	}
	if strings.TrimSpace(c.CookieName) == "" {
		return fmt.Errorf("auth.cookie_name is required")
	}
	if c.CacheBackend != CacheBackendSQLite && c.CacheBackend != CacheBackendMemory {
		return fmt.Errorf("cache.backend must be %q or %q", CacheBackendSQLite, CacheBackendMemory)
	}
	if c.QueryMaxResults <= 0 {
		return fmt.Errorf("query.max_results must be positive")
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	return nil
}
