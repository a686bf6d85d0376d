package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"

	"github.com/ehr/psnormalizer/internal/platform/clinicaldate"
)

type Config struct {
	Port            string `mapstructure:"PORT"`
	Env             string `mapstructure:"ENV"`
	LogLevel        string `mapstructure:"LOG_LEVEL"`
	DateStyle       string `mapstructure:"DATE_STYLE"`
	DefaultCountry  string `mapstructure:"DEFAULT_COUNTRY"`
	BatchWorkers    int    `mapstructure:"BATCH_WORKERS"`
	MaxDocumentSize string `mapstructure:"MAX_DOCUMENT_SIZE"`
	MetricsEnabled  bool   `mapstructure:"METRICS_ENABLED"`

	RequestTimeout time.Duration `mapstructure:"REQUEST_TIMEOUT"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("DATE_STYLE", "european")
	v.SetDefault("DEFAULT_COUNTRY", "")
	v.SetDefault("BATCH_WORKERS", 4)
	v.SetDefault("MAX_DOCUMENT_SIZE", "10M")
	v.SetDefault("METRICS_ENABLED", true)
	v.SetDefault("REQUEST_TIMEOUT", "30s")

	// Bind env vars explicitly so Unmarshal picks them up
	v.BindEnv("PORT")
	v.BindEnv("ENV")
	v.BindEnv("LOG_LEVEL")
	v.BindEnv("DATE_STYLE")
	v.BindEnv("DEFAULT_COUNTRY")
	v.BindEnv("BATCH_WORKERS")
	v.BindEnv("MAX_DOCUMENT_SIZE")
	v.BindEnv("METRICS_ENABLED")
	v.BindEnv("REQUEST_TIMEOUT")

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.DefaultCountry = strings.ToUpper(strings.TrimSpace(cfg.DefaultCountry))
	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the service is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Style returns the configured date rendering style.
func (c *Config) Style() clinicaldate.Style {
	return clinicaldate.ParseStyle(c.DateStyle)
}

// Level returns the zerolog level for LOG_LEVEL, or info when it does not
// parse.
func (c *Config) Level() zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(c.LogLevel))
	if err != nil || c.LogLevel == "" {
		return zerolog.InfoLevel
	}
	return lvl
}

// Validate checks that the configuration is usable before the service
// starts.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT is required")
	}
	if _, err := zerolog.ParseLevel(strings.ToLower(c.LogLevel)); err != nil {
		return fmt.Errorf("LOG_LEVEL %q is not a valid level: %w", c.LogLevel, err)
	}
	switch strings.ToLower(c.DateStyle) {
	case "european", "us":
	default:
		return fmt.Errorf("DATE_STYLE must be \"european\" or \"us\", got %q", c.DateStyle)
	}
	if c.DefaultCountry != "" && len(c.DefaultCountry) != 2 {
		return fmt.Errorf("DEFAULT_COUNTRY must be an ISO 3166-1 alpha-2 code, got %q", c.DefaultCountry)
	}
	if c.RequestTimeout < 0 {
		return fmt.Errorf("REQUEST_TIMEOUT must not be negative, got %s", c.RequestTimeout)
	}
	if c.BatchWorkers < 1 {
		return fmt.Errorf("BATCH_WORKERS must be at least 1, got %d", c.BatchWorkers)
	}
	return nil
}
