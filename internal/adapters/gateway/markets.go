package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"

	"github.com/alejandrodnm/marketkeeper/internal/domain"
)

// ListMarkets devuelve los mercados activos (no resueltos) del contrato.
// Implementa ports.MarketRepository.
func (c *Client) ListMarkets(ctx context.Context) ([]domain.Market, error) {
	markets, err := c.listMarkets(ctx, "active")
	if err != nil {
		return nil, fmt.Errorf("gateway.ListMarkets: %w", err)
	}
	return markets, nil
}

// ResolvedMarkets devuelve el histórico de mercados ya resueltos, con lado
// ganador y precio final.
func (c *Client) ResolvedMarkets(ctx context.Context) ([]domain.Market, error) {
	all, err := c.listMarkets(ctx, "all")
	if err != nil {
		return nil, fmt.Errorf("gateway.ResolvedMarkets: %w", err)
	}
	resolved := make([]domain.Market, 0, len(all))
	for _, m := range all {
		if m.IsResolved {
			resolved = append(resolved, m)
		}
	}
	return resolved, nil
}

func (c *Client) listMarkets(ctx context.Context, status string) ([]domain.Market, error) {
	u := fmt.Sprintf("%s/markets?status=%s", c.baseURL, url.QueryEscape(status))

	var resp marketsResponse
	if err := c.get(ctx, u, &resp); err != nil {
		return nil, err
	}

	markets, errs := mapMarkets(resp.Markets, c.decimals)
	for _, err := range errs {
		slog.Warn("skipping undecodable market", "err", err)
	}

	slog.Debug("markets fetched",
		"status", status,
		"markets", len(markets),
		"skipped", len(errs),
	)
	return markets, nil
}

// GetMarket devuelve un mercado por ID. Si no existe devuelve domain.ErrMarketNotFound.
func (c *Client) GetMarket(ctx context.Context, id domain.MarketID) (domain.Market, error) {
	var resp marketJSON
	if err := c.get(ctx, c.baseURL+marketPath(id), &resp); err != nil {
		if isNotFound(err) {
			return domain.Market{}, fmt.Errorf("gateway.GetMarket %s: %w", id, domain.ErrMarketNotFound)
		}
		return domain.Market{}, fmt.Errorf("gateway.GetMarket %s: %w", id, err)
	}
	m, err := mapMarket(resp, c.decimals)
	if err != nil {
		return domain.Market{}, fmt.Errorf("gateway.GetMarket %s: %w", id, err)
	}
	return m, nil
}

// GetCurrentPrice consulta el oráculo del contrato para token. Devuelve nil
// sin error si el oráculo no tiene precio (404, null, cero o negativo).
// Implementa ports.PriceSource.
func (c *Client) GetCurrentPrice(ctx context.Context, token string) (*domain.Price, error) {
	u := fmt.Sprintf("%s/oracle/price?token=%s", c.baseURL, url.QueryEscape(token))

	var resp priceResponse
	if err := c.get(ctx, u, &resp); err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("gateway.GetCurrentPrice %s: %w", token, err)
	}

	price, err := parseRawPrice(resp.Price, c.decimals)
	if err != nil {
		return nil, fmt.Errorf("gateway.GetCurrentPrice %s: %w", token, err)
	}
	if price == nil || !price.IsPositive() {
		slog.Debug("oracle returned no usable price", "token", token)
		return nil, nil
	}
	return price, nil
}

// ResolveMarket envía resolveMarket firmado por caller con el precio final.
// Los fallos del contrato vuelven como *domain.ResolverError con su código.
// Implementa ports.MarketResolver.
func (c *Client) ResolveMarket(ctx context.Context, caller domain.CallerIdentity, id domain.MarketID, finalPrice domain.Price) (domain.Side, error) {
	req := resolveRequest{
		Caller:     caller.Address,
		FinalPrice: finalPrice.Raw(c.decimals).String(),
	}

	var resp resolveResponse
	if err := c.postOnce(ctx, c.baseURL+marketPath(id)+"/resolve", req, &resp); err != nil {
		var rerr *domain.ResolverError
		if errors.As(err, &rerr) {
			return 0, err
		}
		return 0, fmt.Errorf("gateway.ResolveMarket %s: %w", id, err)
	}

	if !resp.Success {
		return 0, resolveError(resp)
	}

	side, err := decodeSide(resp.WinningSide)
	if err != nil {
		return 0, fmt.Errorf("gateway.ResolveMarket %s: %w", id, err)
	}
	if side == nil {
		return 0, fmt.Errorf("gateway.ResolveMarket %s: success without winning side", id)
	}

	slog.Debug("resolve submitted",
		"market_id", id,
		"caller", caller,
		"winning_side", side,
		"tx_hash", resp.TxHash,
	)
	return *side, nil
}

// Ping comprueba que el gateway responde y devuelve el último ledger visto.
func (c *Client) Ping(ctx context.Context) (uint32, error) {
	var resp healthResponse
	if err := c.get(ctx, c.baseURL+"/health", &resp); err != nil {
		return 0, fmt.Errorf("gateway.Ping: %w", err)
	}
	if resp.Status != "" && resp.Status != "ok" {
		return resp.LatestLedger, fmt.Errorf("gateway.Ping: status %q", resp.Status)
	}
	return resp.LatestLedger, nil
}
