package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alejandrodnm/marketkeeper/internal/adapters/gateway"
	"github.com/alejandrodnm/marketkeeper/internal/adapters/notify"
	"github.com/alejandrodnm/marketkeeper/internal/adapters/storage"
	"github.com/alejandrodnm/marketkeeper/internal/application/resolve"
	"github.com/alejandrodnm/marketkeeper/internal/domain"
	"github.com/alejandrodnm/marketkeeper/internal/ports"
)

func runReport(ctx context.Context, store *storage.SQLiteStorage, console *notify.Console, since time.Duration) error {
	now := time.Now()
	records, err := store.GetHistory(ctx, now.Add(-since), now)
	if err != nil {
		return fmt.Errorf("load history: %w", err)
	}
	console.PrintHistory(records)
	return nil
}

func runOnchainHistory(ctx context.Context, client *gateway.Client, console *notify.Console) error {
	markets, err := client.ResolvedMarkets(ctx)
	if err != nil {
		return fmt.Errorf("list resolved markets: %w", err)
	}
	console.PrintResolvedMarkets(markets)
	return nil
}

// runSingle resuelve un mercado concreto a petición, con el mismo engine y la
// misma publicación que las pasadas programadas.
func runSingle(ctx context.Context, client *gateway.Client, engine *resolve.Engine, notifier ports.Notifier, store ports.ResultStorage, id domain.MarketID) error {
	m, err := client.GetMarket(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrMarketNotFound) {
			return fmt.Errorf("market %s not found", id)
		}
		return fmt.Errorf("load market %s: %w", id, err)
	}
	if !m.IsExpired(time.Now()) {
		slog.Warn("market is not eligible for resolution",
			"market_id", id,
			"resolved", m.IsResolved,
			"end_time", m.EndTime,
		)
		return nil
	}

	report := engine.RunPass(ctx, domain.TriggerManual, []domain.Market{m})
	if err := notifier.Notify(ctx, report); err != nil {
		slog.Warn("notifier error", "err", err)
	}
	if err := store.SavePass(ctx, report); err != nil {
		slog.Warn("storage error", "err", err)
	}
	for _, r := range report.Results {
		if r.IsError() {
			return fmt.Errorf("market %s: %s", r.MarketID, r.Error)
		}
	}
	return nil
}
