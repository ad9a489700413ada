package db

import (
	"context"
	"fmt"
	"os"

	"github.com/damon-houk/exchange-rate-service/internal/domain/repository"
	"github.com/damon-houk/exchange-rate-service/internal/infrastructure/logger"
)

// Config controls how the exchange rate store is opened
type Config struct {
	// Driver is one of badger, sqlite, postgres or memory
	Driver string `mapstructure:"driver"`
	// DSN is the connection string for sqlite and postgres
	DSN string `mapstructure:"dsn"`
	// Path is the BadgerDB directory
	Path string `mapstructure:"path"`
}

// Open constructs the exchange rate repository selected by cfg.Driver
func Open(ctx context.Context, cfg Config, log logger.Logger) (repository.ExchangeRateRepository, error) {
	if log == nil {
		log = logger.GetDefaultLogger()
	}

	driver := cfg.Driver
	if driver == "" {
		driver = "badger"
	}

	switch driver {
	case "memory":
		log.Info("Using in-memory exchange rate store", nil)
		return NewMemoryExchangeRateRepository(), nil

	case "badger":
		path := cfg.Path
		if path == "" {
			path = "data"
		}
		if err := os.MkdirAll(path, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}

		badgerDB, err := OpenBadger(path, false)
		if err != nil {
			return nil, err
		}

		log.Info("Using badger exchange rate store", logger.Fields{"path": path})
		return NewBadgerExchangeRateRepository(badgerDB, log), nil

	case "sqlite", "postgres":
		repo, err := NewGormExchangeRateRepository(driver, cfg.DSN, log)
		if err != nil {
			return nil, err
		}
		if err := repo.Migrate(ctx); err != nil {
			repo.Close()
			return nil, fmt.Errorf("failed to migrate exchange_rates table: %w", err)
		}

		log.Info("Using SQL exchange rate store", logger.Fields{"driver": driver})
		return repo, nil

	default:
		return nil, fmt.Errorf("unsupported store driver %q", driver)
	}
}
