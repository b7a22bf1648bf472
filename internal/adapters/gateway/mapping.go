package gateway

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/alejandrodnm/marketkeeper/internal/domain"
)

// decodeSide interpreta el lado ganador en cualquiera de las formas que
// devuelve el contrato: índice (0), nombre ("Up"), enum etiquetado
// ({"tag":"Up"} o {"Up":{}}) o vector (["Up"]). null devuelve nil.
func decodeSide(raw json.RawMessage) (*domain.Side, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}

	var side domain.Side
	var err error

	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, fmt.Errorf("decode side: %w", err)
		}
		side, err = domain.ParseSide(s)
	case '{':
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(raw, &obj); err != nil {
			return nil, fmt.Errorf("decode side: %w", err)
		}
		if tag, ok := obj["tag"]; ok {
			return decodeSide(tag)
		}
		if len(obj) != 1 {
			return nil, fmt.Errorf("decode side: ambiguous object %s", raw)
		}
		for k := range obj {
			side, err = domain.ParseSide(k)
		}
	case '[':
		var arr []json.RawMessage
		if err := json.Unmarshal(raw, &arr); err != nil {
			return nil, fmt.Errorf("decode side: %w", err)
		}
		if len(arr) == 0 {
			return nil, fmt.Errorf("decode side: empty vector")
		}
		return decodeSide(arr[0])
	default:
		var n json.Number
		if err := json.Unmarshal(raw, &n); err != nil {
			return nil, fmt.Errorf("decode side: %w", err)
		}
		side, err = domain.ParseSide(n.String())
	}
	if err != nil {
		return nil, err
	}
	return &side, nil
}

// parseRawPrice convierte un i128 escalado a Price. nil o vacío devuelve nil.
func parseRawPrice(raw *string, decimals int32) (*domain.Price, error) {
	if raw == nil || *raw == "" {
		return nil, nil
	}
	p, err := domain.PriceFromRaw(*raw, decimals)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func parseStaked(raw string, decimals int32) domain.Price {
	if raw == "" {
		return domain.Price{}
	}
	p, err := domain.PriceFromRaw(raw, decimals)
	if err != nil {
		return domain.Price{}
	}
	return p
}

// mapMarkets convierte los DTOs a domain.Market, descartando los que no se
// pueden interpretar.
func mapMarkets(raw []marketJSON, decimals int32) ([]domain.Market, []error) {
	markets := make([]domain.Market, 0, len(raw))
	var errs []error
	for _, r := range raw {
		m, err := mapMarket(r, decimals)
		if err != nil {
			errs = append(errs, fmt.Errorf("market %d: %w", r.ID, err))
			continue
		}
		markets = append(markets, m)
	}
	return markets, errs
}

// mapMarket convierte un marketJSON a domain.Market.
func mapMarket(r marketJSON, decimals int32) (domain.Market, error) {
	m := domain.Market{
		ID:         domain.MarketID(r.ID),
		Title:      r.Title,
		Token:      r.Token,
		EndTime:    time.Unix(r.EndTime, 0).UTC(),
		IsResolved: r.IsResolved,
		Bets: domain.Bets{
			Up:     domain.BetTotals{Count: r.Bets.Up.Count, Staked: parseStaked(r.Bets.Up.Staked, decimals)},
			Down:   domain.BetTotals{Count: r.Bets.Down.Count, Staked: parseStaked(r.Bets.Down.Staked, decimals)},
			Stable: domain.BetTotals{Count: r.Bets.Stable.Count, Staked: parseStaked(r.Bets.Stable.Staked, decimals)},
		},
	}

	if !r.IsResolved {
		return m, nil
	}

	side, err := decodeSide(r.WinningSide)
	if err != nil {
		return domain.Market{}, err
	}
	m.WinningSide = side

	price, err := parseRawPrice(r.FinalPrice, decimals)
	if err != nil {
		return domain.Market{}, fmt.Errorf("final price: %w", err)
	}
	m.FinalPrice = price
	return m, nil
}

// resolveError traduce una respuesta fallida a *domain.ResolverError.
func resolveError(resp resolveResponse) error {
	msg := resp.Error
	if msg == "" && resp.ErrorCode == "" {
		msg = "resolve rejected without reason"
	}
	return &domain.ResolverError{Code: resp.ErrorCode, Message: msg}
}

func marketPath(id domain.MarketID) string {
	return "/markets/" + strconv.FormatUint(uint64(id), 10)
}
