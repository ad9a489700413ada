package main

import (
	"context"
	"fmt"
	"io"

	"github.com/damon-houk/exchange-rate-service/internal/application/service"
	"github.com/damon-houk/exchange-rate-service/internal/domain/entity"
	"github.com/damon-houk/exchange-rate-service/internal/infrastructure/api"
	"github.com/damon-houk/exchange-rate-service/internal/infrastructure/db"
	"github.com/spf13/cobra"
)

type backfillOptions struct {
	from  string
	to    string
	start string
	end   string
}

func newBackfillCmd(root *rootOptions) *cobra.Command {
	opts := &backfillOptions{}

	cmd := &cobra.Command{
		Use:   "backfill",
		Short: "Fetch and store the rates of one pair over a period",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			return runBackfill(ctx, root, opts, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&opts.from, "from", "", "base currency code")
	cmd.Flags().StringVar(&opts.to, "to", "", "target currency code")
	cmd.Flags().StringVar(&opts.start, "start", "", "first day, YYYY-MM-DD")
	cmd.Flags().StringVar(&opts.end, "end", "", "last day, YYYY-MM-DD")
	for _, name := range []string{"from", "to", "start", "end"} {
		cmd.MarkFlagRequired(name)
	}

	return cmd
}

func runBackfill(ctx context.Context, root *rootOptions, opts *backfillOptions, out io.Writer) error {
	cfg, log, err := root.load()
	if err != nil {
		return err
	}

	repo, err := db.Open(ctx, cfg.Store, log)
	if err != nil {
		return fmt.Errorf("cannot open store: %w", err)
	}
	defer repo.Close()

	exchangeService := service.NewExchangeService(repo, api.NewExchangeRatesAPIClient(cfg.Provider, log), log)

	query := entity.NewRangeQuery(opts.from, opts.to, opts.start, opts.end)
	rates, err := exchangeService.GetExchangeRates(ctx, query)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "%d rates available for %s/%s from %s to %s\n", len(rates), query.From, query.To, query.DateFrom, query.DateTo)
	return nil
}
