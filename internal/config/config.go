// Package config loads service settings from defaults, an optional config
// file, a .env file and EXCHANGE_* environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/damon-houk/exchange-rate-service/internal/infrastructure/api"
	"github.com/damon-houk/exchange-rate-service/internal/infrastructure/db"
	"github.com/damon-houk/exchange-rate-service/internal/infrastructure/logger"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, e.g. EXCHANGE_STORE_DRIVER
const EnvPrefix = "EXCHANGE"

// HTTPConfig holds the listener settings
type HTTPConfig struct {
	Address         string        `mapstructure:"address"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// LogConfig holds the logger settings
type LogConfig struct {
	Level string `mapstructure:"level"`
}

// WarmupConfig controls the scheduled pre-fetch of today's rates
type WarmupConfig struct {
	// Schedule is a standard five-field cron expression, empty disables the job
	Schedule string `mapstructure:"schedule"`
	// Pairs are FROM:TO currency pairs
	Pairs []string `mapstructure:"pairs"`
}

// Config represents the global configuration for the service
type Config struct {
	HTTP     HTTPConfig        `mapstructure:"http"`
	Log      LogConfig         `mapstructure:"log"`
	Store    db.Config         `mapstructure:"store"`
	Provider api.ClientOptions `mapstructure:"provider"`
	Warmup   WarmupConfig      `mapstructure:"warmup"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("http.address", ":8080")
	v.SetDefault("http.read_timeout", 10*time.Second)
	v.SetDefault("http.write_timeout", 30*time.Second)
	v.SetDefault("http.shutdown_timeout", 15*time.Second)

	v.SetDefault("log.level", string(logger.InfoLevel))

	v.SetDefault("store.driver", "badger")
	v.SetDefault("store.dsn", "")
	v.SetDefault("store.path", "data")

	v.SetDefault("provider.base_url", api.DefaultBaseURL)
	v.SetDefault("provider.access_key", "")
	v.SetDefault("provider.timeout", 10*time.Second)

	v.SetDefault("warmup.schedule", "")
	v.SetDefault("warmup.pairs", []string{})
}

// Load reads the configuration. Environment variables take precedence over
// config file values, and variables already set in the process take
// precedence over those in envFile. Missing files are not an error.
func Load(cfgFile, envFile string) (*Config, error) {
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load env file %s: %w", envFile, err)
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/exchange-rate-service")

		var notFound viper.ConfigFileNotFoundError
		if err := v.ReadInConfig(); err != nil && !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config into struct: %w", err)
	}

	cfg.Warmup.Pairs = splitPairs(cfg.Warmup.Pairs)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate rejects settings the service cannot start with
func (c *Config) Validate() error {
	var errs []error

	if _, err := logger.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}

	switch c.Store.Driver {
	case "badger", "memory":
	case "sqlite", "postgres":
		if c.Store.DSN == "" {
			errs = append(errs, fmt.Errorf("store.dsn is required for driver %q", c.Store.Driver))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported store driver %q", c.Store.Driver))
	}

	if c.Warmup.Schedule != "" {
		if _, err := cron.ParseStandard(c.Warmup.Schedule); err != nil {
			errs = append(errs, fmt.Errorf("invalid warmup.schedule %q: %w", c.Warmup.Schedule, err))
		}
	}

	return errors.Join(errs...)
}

// splitPairs accepts both list values and a single comma separated string
func splitPairs(values []string) []string {
	var pairs []string
	for _, value := range values {
		for _, pair := range strings.Split(value, ",") {
			if pair = strings.TrimSpace(pair); pair != "" {
				pairs = append(pairs, pair)
			}
		}
	}
	return pairs
}
