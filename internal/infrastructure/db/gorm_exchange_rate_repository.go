package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/damon-houk/exchange-rate-service/internal/domain/entity"
	"github.com/damon-houk/exchange-rate-service/internal/domain/repository"
	"github.com/damon-houk/exchange-rate-service/internal/infrastructure/logger"
	"github.com/damon-houk/exchange-rate-service/internal/infrastructure/middleware"
	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

// exchangeRateRecord is the exchange_rates table row
type exchangeRateRecord struct {
	FromCode string  `gorm:"primaryKey;column:from_code;size:3"`
	ToCode   string  `gorm:"primaryKey;column:to_code;size:3"`
	RateDate string  `gorm:"primaryKey;column:rate_date;size:10"`
	Rate     float64 `gorm:"column:rate;not null"`
}

func (exchangeRateRecord) TableName() string {
	return "exchange_rates"
}

func toRecord(rate *entity.ExchangeRate) exchangeRateRecord {
	return exchangeRateRecord{
		FromCode: rate.From,
		ToCode:   rate.To,
		RateDate: rate.DateString(),
		Rate:     rate.Rate,
	}
}

func (r exchangeRateRecord) toEntity() (*entity.ExchangeRate, error) {
	date, err := entity.ParseDate(r.RateDate)
	if err != nil {
		return nil, fmt.Errorf("corrupt exchange rate date %q: %w", r.RateDate, err)
	}

	return &entity.ExchangeRate{
		From: r.FromCode,
		To:   r.ToCode,
		Date: date,
		Rate: r.Rate,
	}, nil
}

// GormExchangeRateRepository implements the exchange rate repository on a SQL database
type GormExchangeRateRepository struct {
	db     *gorm.DB
	logger logger.Logger
}

// NewGormExchangeRateRepository opens driver ("sqlite" or "postgres") at dsn
func NewGormExchangeRateRepository(driver, dsn string, log logger.Logger) (*GormExchangeRateRepository, error) {
	if log == nil {
		log = logger.GetDefaultLogger()
	}

	var dialector gorm.Dialector
	switch driver {
	case "postgres":
		dialector = postgres.Open(dsn)
	case "sqlite":
		dialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", driver, err)
	}

	if driver == "sqlite" {
		// SQLite allows a single writer
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
	}

	return &GormExchangeRateRepository{db: db, logger: log}, nil
}

// Migrate creates the exchange_rates table when missing
func (r *GormExchangeRateRepository) Migrate(ctx context.Context) error {
	return r.db.WithContext(ctx).AutoMigrate(&exchangeRateRecord{})
}

// FindRate finds the rate for a currency pair on a specific date
func (r *GormExchangeRateRepository) FindRate(ctx context.Context, from, to string, date time.Time) (*entity.ExchangeRate, error) {
	var record exchangeRateRecord
	err := r.db.WithContext(ctx).
		Where(&exchangeRateRecord{FromCode: from, ToCode: to, RateDate: date.Format(entity.DateLayout)}).
		Take(&record).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, repository.ErrRateNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve exchange rate: %w", err)
	}

	return record.toEntity()
}

// FindRange returns one stored rate per date or repository.ErrRangeIncomplete
func (r *GormExchangeRateRepository) FindRange(ctx context.Context, from, to string, dates []time.Time) ([]entity.ExchangeRate, error) {
	if len(dates) == 0 {
		return []entity.ExchangeRate{}, nil
	}

	first, last := dates[0], dates[0]
	for _, d := range dates[1:] {
		if d.Before(first) {
			first = d
		}
		if d.After(last) {
			last = d
		}
	}

	var records []exchangeRateRecord
	err := r.db.WithContext(ctx).
		Where(&exchangeRateRecord{FromCode: from, ToCode: to}).
		Where("rate_date BETWEEN ? AND ?", first.Format(entity.DateLayout), last.Format(entity.DateLayout)).
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve exchange rates: %w", err)
	}

	byDate := make(map[string]exchangeRateRecord, len(records))
	for _, rec := range records {
		byDate[rec.RateDate] = rec
	}

	rates := make([]entity.ExchangeRate, 0, len(dates))
	for _, d := range dates {
		rec, ok := byDate[d.Format(entity.DateLayout)]
		if !ok {
			return nil, repository.ErrRangeIncomplete
		}
		rate, err := rec.toEntity()
		if err != nil {
			return nil, err
		}
		rates = append(rates, *rate)
	}

	return rates, nil
}

// InsertOne stores rate unless its key already exists, and returns the stored rate
func (r *GormExchangeRateRepository) InsertOne(ctx context.Context, rate *entity.ExchangeRate) (*entity.ExchangeRate, error) {
	if err := rate.Validate(); err != nil {
		return nil, fmt.Errorf("invalid exchange rate: %w", err)
	}

	record := toRecord(rate)
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&record).Error
	if err != nil {
		return nil, fmt.Errorf("failed to store exchange rate: %w", err)
	}

	return r.FindRate(ctx, rate.From, rate.To, rate.Date)
}

// InsertMany stores rates in batches, skipping keys that already exist
func (r *GormExchangeRateRepository) InsertMany(ctx context.Context, rates []entity.ExchangeRate) error {
	seen := make(map[string]struct{}, len(rates))
	records := make([]exchangeRateRecord, 0, len(rates))
	for i := range rates {
		if err := rates[i].Validate(); err != nil {
			return fmt.Errorf("invalid exchange rate for %s: %w", rates[i].DateString(), err)
		}
		rec := toRecord(&rates[i])
		key := rec.FromCode + rec.ToCode + rec.RateDate
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		records = append(records, rec)
	}

	if len(records) == 0 {
		return nil
	}

	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		CreateInBatches(&records, repository.InsertBatchSize)
	if result.Error != nil {
		return fmt.Errorf("failed to store exchange rates: %w", result.Error)
	}

	r.logger.Debug("Stored exchange rate batch", logger.Fields{
		"request_id": middleware.GetRequestID(ctx),
		"requested":  len(rates),
		"inserted":   result.RowsAffected,
	})

	return nil
}

// Close closes the connection pool
func (r *GormExchangeRateRepository) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
