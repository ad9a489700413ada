package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/damon-houk/exchange-rate-service/internal/application/service"
	"github.com/damon-houk/exchange-rate-service/internal/infrastructure/api"
	"github.com/damon-houk/exchange-rate-service/internal/infrastructure/db"
	"github.com/damon-houk/exchange-rate-service/internal/infrastructure/handler"
	"github.com/damon-houk/exchange-rate-service/internal/infrastructure/logger"
	"github.com/damon-houk/exchange-rate-service/internal/scheduler"
	"github.com/spf13/cobra"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), opts)
		},
	}
}

func runServe(ctx context.Context, opts *rootOptions) error {
	cfg, log, err := opts.load()
	if err != nil {
		return err
	}

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info("Starting exchange rate service", logger.Fields{"version": version})

	repo, err := db.Open(ctx, cfg.Store, log)
	if err != nil {
		return fmt.Errorf("cannot open store: %w", err)
	}
	defer func() {
		if err := repo.Close(); err != nil {
			log.Error("Error closing store", logger.Fields{"error": err.Error()})
		}
	}()

	client := api.NewExchangeRatesAPIClient(cfg.Provider, log)
	exchangeService := service.NewExchangeService(repo, client, log)
	router := handler.NewRouter(handler.NewExchangeHandler(exchangeService, log), log)

	var warmer *scheduler.Warmer
	if cfg.Warmup.Schedule != "" && len(cfg.Warmup.Pairs) > 0 {
		warmer, err = scheduler.NewWarmer(exchangeService, cfg.Warmup.Schedule, cfg.Warmup.Pairs, log)
		if err != nil {
			return err
		}
		warmer.Start(ctx)
	}

	srv := &http.Server{
		Addr:         cfg.HTTP.Address,
		Handler:      router,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("Server listening", logger.Fields{"address": cfg.HTTP.Address})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	case <-ctx.Done():
		log.Warn("Shutdown signal received", nil)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()

	if warmer != nil {
		if err := warmer.Stop(shutdownCtx); err != nil {
			log.Warn("Warm-up job still running at shutdown", logger.Fields{"error": err.Error()})
		}
	}

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}

	log.Info("Server stopped", nil)
	return nil
}
