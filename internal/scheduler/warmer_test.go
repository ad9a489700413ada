package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/damon-houk/exchange-rate-service/internal/infrastructure/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockWarmUpService struct {
	mock.Mock
}

func (m *mockWarmUpService) WarmUp(ctx context.Context, pairs [][2]string, now time.Time) error {
	args := m.Called(ctx, pairs, now)
	return args.Error(0)
}

func TestParsePairs(t *testing.T) {
	pairs, err := ParsePairs([]string{"USD:EUR", " gbp:jpy "})
	require.NoError(t, err)
	assert.Equal(t, [][2]string{{"USD", "EUR"}, {"GBP", "JPY"}}, pairs)

	for _, bad := range []string{"USDEUR", "USD:EU", "USD:EUR:GBP", ":EUR"} {
		_, err := ParsePairs([]string{bad})
		assert.Error(t, err, bad)
	}
}

func TestNewWarmerRejectsInvalidInput(t *testing.T) {
	svc := new(mockWarmUpService)

	_, err := NewWarmer(svc, "not a schedule", []string{"USD:EUR"}, logger.Nop())
	assert.ErrorContains(t, err, "invalid schedule")

	_, err = NewWarmer(svc, "0 6 * * *", []string{"USD-EUR"}, logger.Nop())
	assert.ErrorContains(t, err, "invalid currency pair")
}

func TestRunOnce(t *testing.T) {
	now := time.Date(2024, 5, 2, 6, 0, 0, 0, time.UTC)

	t.Run("Success", func(t *testing.T) {
		svc := new(mockWarmUpService)
		w, err := NewWarmer(svc, "0 6 * * *", []string{"USD:EUR", "USD:GBP"}, logger.Nop())
		require.NoError(t, err)
		w.now = func() time.Time { return now }

		svc.On("WarmUp", mock.Anything, [][2]string{{"USD", "EUR"}, {"USD", "GBP"}}, now).Return(nil).Once()

		assert.NoError(t, w.RunOnce(context.Background()))
		svc.AssertExpectations(t)
	})

	t.Run("Failure reported", func(t *testing.T) {
		svc := new(mockWarmUpService)
		w, err := NewWarmer(svc, "0 6 * * *", []string{"USD:EUR"}, logger.Nop())
		require.NoError(t, err)
		w.now = func() time.Time { return now }

		svc.On("WarmUp", mock.Anything, mock.Anything, now).Return(errors.New("USD/EUR: provider down")).Once()

		assert.EqualError(t, w.RunOnce(context.Background()), "USD/EUR: provider down")
	})

	t.Run("Run bounded by timeout", func(t *testing.T) {
		svc := new(mockWarmUpService)
		w, err := NewWarmer(svc, "0 6 * * *", []string{"USD:EUR"}, logger.Nop())
		require.NoError(t, err)
		w.runTimeout = time.Minute

		svc.On("WarmUp", mock.MatchedBy(func(ctx context.Context) bool {
			_, ok := ctx.Deadline()
			return ok
		}), mock.Anything, mock.Anything).Return(nil).Once()

		assert.NoError(t, w.RunOnce(context.Background()))
		svc.AssertExpectations(t)
	})
}

func TestStartRunsOnSchedule(t *testing.T) {
	svc := new(mockWarmUpService)
	w, err := NewWarmer(svc, "@every 1s", []string{"USD:EUR"}, logger.Nop())
	require.NoError(t, err)

	ran := make(chan struct{}, 10)
	svc.On("WarmUp", mock.Anything, [][2]string{{"USD", "EUR"}}, mock.Anything).
		Run(func(mock.Arguments) { ran <- struct{}{} }).
		Return(nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	w.Start(ctx)
	w.Start(ctx)

	select {
	case <-ran:
	case <-time.After(3 * time.Second):
		t.Fatal("warm-up job did not run")
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer stopCancel()
	assert.NoError(t, w.Stop(stopCtx))
	assert.NoError(t, w.Stop(stopCtx))
}

func TestCronLoggerFields(t *testing.T) {
	fields := keyValueFields([]interface{}{"entry", 3, "now", "2024-05-02", "dangling"})
	assert.Equal(t, logger.Fields{"entry": 3, "now": "2024-05-02"}, fields)
}
