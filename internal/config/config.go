package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix             = "ROSTER"
	defaultHTTPAddress    = "0.0.0.0:5000"
	defaultDatabasePath   = "roster.db"
	defaultLogLevel       = "info"
	defaultCookieName     = "auth_token"
	defaultTokenTTL       = time.Hour
	defaultAllowedOrigins = "http://localhost:5173,http://localhost:3000"
)

// AppConfig captures runtime configuration for the API server.
type AppConfig struct {
	HTTPAddress    string
	SigningSecret  string
	CookieName     string
	CookieSecure   bool
	TokenTTL       time.Duration
	DatabasePath   string
	LogLevel       string
	AllowedOrigins []string
	MetricsEnabled bool
	SeedProducts   bool
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
	configViper.SetDefault("database.seed_products", true)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("auth.cookie_name", defaultCookieName)
	configViper.SetDefault("auth.cookie_secure", false)
	configViper.SetDefault("auth.token_ttl", defaultTokenTTL)
	configViper.SetDefault("cors.allowed_origins", defaultAllowedOrigins)
	configViper.SetDefault("metrics.enabled", true)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:    configViper.GetString("http.address"),
		SigningSecret:  configViper.GetString("auth.signing_secret"),
		CookieName:     configViper.GetString("auth.cookie_name"),
		CookieSecure:   configViper.GetBool("auth.cookie_secure"),
		TokenTTL:       configViper.GetDuration("auth.token_ttl"),
		DatabasePath:   configViper.GetString("database.path"),
		SeedProducts:   configViper.GetBool("database.seed_products"),
		LogLevel:       configViper.GetString("log.level"),
		AllowedOrigins: splitList(configViper.GetString("cors.allowed_origins")),
		MetricsEnabled: configViper.GetBool("metrics.enabled"),
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
	if strings.TrimSpace(c.CookieName) == "" {
		return fmt.Errorf("auth.cookie_name is required")
	}
	if c.TokenTTL <= 0 {
		return fmt.Errorf("auth.token_ttl must be positive")
	}
	return nil
}

func splitList(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
