package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/damon-houk/exchange-rate-service/internal/domain/entity"
	"github.com/damon-houk/exchange-rate-service/internal/domain/repository"
	"github.com/damon-houk/exchange-rate-service/internal/infrastructure/logger"
	"github.com/damon-houk/exchange-rate-service/internal/infrastructure/middleware"
	"github.com/dgraph-io/badger/v3"
)

const (
	ratePrefix         = "rate:"
	maxConflictRetries = 5
)

// badgerRecord is the JSON value stored under a rate key
type badgerRecord struct {
	From string  `json:"from"`
	To   string  `json:"to"`
	Date string  `json:"date"`
	Rate float64 `json:"rate"`
}

// BadgerExchangeRateRepository implements the exchange rate repository using BadgerDB
type BadgerExchangeRateRepository struct {
	db     *badger.DB
	logger logger.Logger
}

// NewBadgerExchangeRateRepository creates a new BadgerDB exchange rate repository
func NewBadgerExchangeRateRepository(db *badger.DB, log logger.Logger) *BadgerExchangeRateRepository {
	if log == nil {
		log = logger.GetDefaultLogger()
	}

	return &BadgerExchangeRateRepository{db: db, logger: log}
}

// OpenBadger opens (creating if needed) a BadgerDB at path with Badger's own logging disabled
func OpenBadger(path string, inMemory bool) (*badger.DB, error) {
	opts := badger.DefaultOptions(path)
	if inMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger database: %w", err)
	}

	return db, nil
}

func rateKey(from, to string, date time.Time) []byte {
	return []byte(ratePrefix + from + ":" + to + ":" + date.Format(entity.DateLayout))
}

// FindRate finds the rate for a currency pair on a specific date
func (r *BadgerExchangeRateRepository) FindRate(ctx context.Context, from, to string, date time.Time) (*entity.ExchangeRate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var rate *entity.ExchangeRate
	err := r.db.View(func(txn *badger.Txn) error {
		var err error
		rate, err = getRate(txn, rateKey(from, to, date))
		return err
	})

	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, repository.ErrRateNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve exchange rate: %w", err)
	}

	return rate, nil
}

// FindRange returns one stored rate per date or repository.ErrRangeIncomplete
func (r *BadgerExchangeRateRepository) FindRange(ctx context.Context, from, to string, dates []time.Time) ([]entity.ExchangeRate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	rates := make([]entity.ExchangeRate, 0, len(dates))
	err := r.db.View(func(txn *badger.Txn) error {
		for _, date := range dates {
			rate, err := getRate(txn, rateKey(from, to, date))
			if err != nil {
				return err
			}
			rates = append(rates, *rate)
		}
		return nil
	})

	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, repository.ErrRangeIncomplete
	}
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve exchange rates: %w", err)
	}

	return rates, nil
}

// InsertOne stores rate unless its key already exists, and returns the stored rate
func (r *BadgerExchangeRateRepository) InsertOne(ctx context.Context, rate *entity.ExchangeRate) (*entity.ExchangeRate, error) {
	if err := rate.Validate(); err != nil {
		return nil, fmt.Errorf("invalid exchange rate: %w", err)
	}

	var stored *entity.ExchangeRate
	err := r.update(ctx, func(txn *badger.Txn) error {
		inserted, existing, err := putIfAbsent(txn, rate)
		if err != nil {
			return err
		}
		if !inserted {
			stored = existing
			return nil
		}
		copied := *rate
		copied.Date = entity.Day(rate.Date)
		stored = &copied
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to store exchange rate: %w", err)
	}

	return stored, nil
}

// InsertMany stores rates in batches, skipping keys that already exist
func (r *BadgerExchangeRateRepository) InsertMany(ctx context.Context, rates []entity.ExchangeRate) error {
	for i := range rates {
		if err := rates[i].Validate(); err != nil {
			return fmt.Errorf("invalid exchange rate for %s: %w", rates[i].DateString(), err)
		}
	}

	inserted := 0
	for _, batch := range repository.Batches(rates, repository.InsertBatchSize) {
		batchInserted := 0
		err := r.update(ctx, func(txn *badger.Txn) error {
			batchInserted = 0
			for i := range batch {
				ok, _, err := putIfAbsent(txn, &batch[i])
				if err != nil {
					return err
				}
				if ok {
					batchInserted++
				}
			}
			return nil
		})
		if err != nil {
			return fmt.Errorf("failed to store exchange rates: %w", err)
		}
		inserted += batchInserted
	}

	r.logger.Debug("Stored exchange rate batch", logger.Fields{
		"request_id": middleware.GetRequestID(ctx),
		"requested":  len(rates),
		"inserted":   inserted,
	})

	return nil
}

// Close closes the underlying database
func (r *BadgerExchangeRateRepository) Close() error {
	return r.db.Close()
}

// update runs fn in a read-write transaction, retrying when a concurrent
// writer committed a conflicting key first
func (r *BadgerExchangeRateRepository) update(ctx context.Context, fn func(txn *badger.Txn) error) error {
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := r.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) || attempt == maxConflictRetries {
			return err
		}

		r.logger.Debug("Retrying conflicting exchange rate write", logger.Fields{
			"request_id": middleware.GetRequestID(ctx),
			"attempt":    attempt,
		})
	}
}

// putIfAbsent writes rate when its key is free. When the key exists it returns the stored rate.
func putIfAbsent(txn *badger.Txn, rate *entity.ExchangeRate) (bool, *entity.ExchangeRate, error) {
	key := rateKey(rate.From, rate.To, rate.Date)

	existing, err := getRate(txn, key)
	if err == nil {
		return false, existing, nil
	}
	if !errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil, err
	}

	data, err := json.Marshal(badgerRecord{
		From: rate.From,
		To:   rate.To,
		Date: rate.DateString(),
		Rate: rate.Rate,
	})
	if err != nil {
		return false, nil, fmt.Errorf("failed to marshal exchange rate: %w", err)
	}

	if err := txn.Set(key, data); err != nil {
		return false, nil, err
	}

	return true, nil, nil
}

func getRate(txn *badger.Txn, key []byte) (*entity.ExchangeRate, error) {
	item, err := txn.Get(key)
	if err != nil {
		return nil, err
	}

	var record badgerRecord
	if err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, &record)
	}); err != nil {
		return nil, fmt.Errorf("failed to unmarshal exchange rate: %w", err)
	}

	date, err := entity.ParseDate(record.Date)
	if err != nil {
		return nil, fmt.Errorf("corrupt exchange rate date %q: %w", record.Date, err)
	}

	return &entity.ExchangeRate{
		From: record.From,
		To:   record.To,
		Date: date,
		Rate: record.Rate,
	}, nil
}
