package ports

import (
	"context"

	"github.com/alejandrodnm/marketkeeper/internal/domain"
)

// MarketRepository obtiene el snapshot de mercados del contrato de apuestas.
type MarketRepository interface {
	// ListMarkets devuelve los mercados activos (no resueltos) conocidos por el contrato.
	// El engine trata el resultado como un snapshot de solo lectura.
	ListMarkets(ctx context.Context) ([]domain.Market, error)
}

// PriceSource obtiene el precio de liquidación de un token desde el oráculo.
type PriceSource interface {
	// GetCurrentPrice devuelve nil cuando no hay precio disponible.
	// Nunca devuelve un precio cero o de relleno como si fuera válido.
	GetCurrentPrice(ctx context.Context, token string) (*domain.Price, error)
}

// MarketResolver finaliza un mercado en el contrato.
type MarketResolver interface {
	// ResolveMarket resuelve el mercado con el precio dado y devuelve el lado ganador.
	// Los fallos explícitos llegan como *domain.ResolverError; un código
	// TRY_AGAIN_LATER indica contención transitoria.
	ResolveMarket(ctx context.Context, caller domain.CallerIdentity, id domain.MarketID, finalPrice domain.Price) (domain.Side, error)
}
