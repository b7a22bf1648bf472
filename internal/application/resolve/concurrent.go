package resolve

// concurrent.go: cada mercado expirado se resuelve en su propia goroutine.
//
// Los reintentos de un mercado (2s + 4s + 8s en el peor caso) no deben retrasar
// al resto: la espera de un mercado nunca bloquea a los demás.

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/alejandrodnm/marketkeeper/internal/domain"
)

// resolveConcurrent resuelve los mercados en paralelo con como mucho workers
// goroutines activas. Si workers <= 0 lanza una por mercado.
// El resultado i corresponde al mercado i.
func resolveConcurrent(ctx context.Context, e *Engine, markets []domain.Market, workers int) []domain.MarketResolutionResult {
	results := make([]domain.MarketResolutionResult, len(markets))
	if len(markets) == 0 {
		return results
	}

	// Sin errgroup.WithContext: un mercado fallido no cancela a los demás.
	var g errgroup.Group
	if workers > 0 {
		g.SetLimit(workers)
	}

	for i, m := range markets {
		g.Go(func() error {
			results[i] = e.ResolveOne(ctx, m)
			return nil
		})
	}
	_ = g.Wait()

	slog.Debug("concurrent resolution complete",
		"markets", len(markets),
		"workers", workers,
	)
	return results
}
