// Package scheduler runs periodic jobs against the exchange service
package scheduler

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/damon-houk/exchange-rate-service/internal/infrastructure/logger"
	"github.com/damon-houk/exchange-rate-service/internal/infrastructure/metrics"
	"github.com/robfig/cron/v3"
)

// WarmUpJob is the metrics job label for the warm-up run
const WarmUpJob = "warmup"

const defaultRunTimeout = 2 * time.Minute

// WarmUpService fetches and stores today's rate for a set of pairs
type WarmUpService interface {
	WarmUp(ctx context.Context, pairs [][2]string, now time.Time) error
}

// Warmer pre-fetches today's rates on a cron schedule so the first requests
// of the day are served from the store
type Warmer struct {
	cron       *cron.Cron
	schedule   cron.Schedule
	service    WarmUpService
	pairs      [][2]string
	logger     logger.Logger
	now        func() time.Time
	runTimeout time.Duration

	mu      sync.Mutex
	started bool
}

// ParsePairs converts FROM:TO strings into currency pairs
func ParsePairs(values []string) ([][2]string, error) {
	pairs := make([][2]string, 0, len(values))
	for _, value := range values {
		parts := strings.Split(strings.TrimSpace(value), ":")
		if len(parts) != 2 || len(parts[0]) != 3 || len(parts[1]) != 3 {
			return nil, fmt.Errorf("invalid currency pair %q, expected FROM:TO", value)
		}
		pairs = append(pairs, [2]string{strings.ToUpper(parts[0]), strings.ToUpper(parts[1])})
	}
	return pairs, nil
}

// NewWarmer creates a warmer for the given standard cron schedule
func NewWarmer(svc WarmUpService, schedule string, pairs []string, log logger.Logger) (*Warmer, error) {
	if log == nil {
		log = logger.GetDefaultLogger()
	}

	sched, err := cron.ParseStandard(schedule)
	if err != nil {
		return nil, fmt.Errorf("invalid schedule %q: %w", schedule, err)
	}

	parsed, err := ParsePairs(pairs)
	if err != nil {
		return nil, err
	}

	jobLog := log.WithField("job", WarmUpJob)
	return &Warmer{
		cron: cron.New(
			cron.WithLocation(time.UTC),
			cron.WithChain(cron.SkipIfStillRunning(cronLogger{jobLog})),
		),
		schedule:   sched,
		service:    svc,
		pairs:      parsed,
		logger:     jobLog,
		now:        time.Now,
		runTimeout: defaultRunTimeout,
	}, nil
}

// Start schedules the job. Runs are bound to ctx.
func (w *Warmer) Start(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.started {
		return
	}
	w.started = true

	w.cron.Schedule(w.schedule, cron.FuncJob(func() {
		w.RunOnce(ctx)
	}))
	w.cron.Start()

	w.logger.Info("Warm-up scheduler started", logger.Fields{
		"pairs":    len(w.pairs),
		"next_run": w.schedule.Next(w.now().UTC()).Format(time.RFC3339),
	})
}

// Stop halts the schedule and waits for a running job, or for ctx to expire
func (w *Warmer) Stop(ctx context.Context) error {
	w.mu.Lock()
	started := w.started
	w.started = false
	w.mu.Unlock()

	if !started {
		return nil
	}

	select {
	case <-w.cron.Stop().Done():
		w.logger.Info("Warm-up scheduler stopped", nil)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunOnce performs a single warm-up pass
func (w *Warmer) RunOnce(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, w.runTimeout)
	defer cancel()

	startedAt := time.Now()
	err := w.service.WarmUp(ctx, w.pairs, w.now())
	metrics.UpdateJobMetrics(WarmUpJob, err)

	fields := logger.Fields{
		"pairs":       len(w.pairs),
		"duration_ms": time.Since(startedAt).Milliseconds(),
	}
	if err != nil {
		fields["error"] = err.Error()
		w.logger.Error("Warm-up run completed with errors", fields)
		return err
	}

	w.logger.Info("Warm-up run completed", fields)
	return nil
}

// cronLogger adapts logger.Logger to cron.Logger
type cronLogger struct {
	log logger.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug(msg, keyValueFields(keysAndValues))
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	fields := keyValueFields(keysAndValues)
	fields["error"] = err.Error()
	l.log.Error(msg, fields)
}

func keyValueFields(keysAndValues []interface{}) logger.Fields {
	fields := make(logger.Fields, len(keysAndValues)/2+1)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		fields[fmt.Sprint(keysAndValues[i])] = keysAndValues[i+1]
	}
	return fields
}
