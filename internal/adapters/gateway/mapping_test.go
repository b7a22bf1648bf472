package gateway

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/marketkeeper/internal/domain"
)

func TestDecodeSide(t *testing.T) {
	tests := []struct {
		raw  string
		want domain.Side
	}{
		{`0`, domain.SideUp},
		{`1`, domain.SideDown},
		{`2`, domain.SideStable},
		{`"Up"`, domain.SideUp},
		{`"stable"`, domain.SideStable},
		{`"1"`, domain.SideDown},
		{`{"tag":"Down"}`, domain.SideDown},
		{`{"tag":2}`, domain.SideStable},
		{`{"Up":{}}`, domain.SideUp},
		{`{"Stable":null}`, domain.SideStable},
		{`["Down"]`, domain.SideDown},
		{` "Up" `, domain.SideUp},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := decodeSide(json.RawMessage(tt.raw))
			require.NoError(t, err)
			require.NotNil(t, got)
			assert.Equal(t, tt.want, *got)
		})
	}
}

func TestDecodeSide_Null(t *testing.T) {
	for _, raw := range []string{``, `null`} {
		got, err := decodeSide(json.RawMessage(raw))
		assert.NoError(t, err)
		assert.Nil(t, got)
	}
}

func TestDecodeSide_Invalid(t *testing.T) {
	for _, raw := range []string{`3`, `"Sideways"`, `{}`, `{"Up":{},"Down":{}}`, `[]`, `true`} {
		_, err := decodeSide(json.RawMessage(raw))
		assert.Error(t, err, raw)
	}
}

func TestMapMarket(t *testing.T) {
	price := "5000000000000000000"
	r := marketJSON{
		ID:          3,
		Title:       "BTC above 50k?",
		Token:       "BTC",
		EndTime:     1700000000,
		IsResolved:  true,
		WinningSide: json.RawMessage(`{"tag":"Up"}`),
		FinalPrice:  &price,
	}
	r.Bets.Up = betTotalsJSON{Count: 4, Staked: "100000000000000"}
	r.Bets.Down = betTotalsJSON{Count: 1}

	m, err := mapMarket(r, domain.DefaultPriceDecimals)
	require.NoError(t, err)

	assert.Equal(t, domain.MarketID(3), m.ID)
	assert.Equal(t, int64(1700000000), m.EndTime.Unix())
	require.NotNil(t, m.WinningSide)
	assert.Equal(t, domain.SideUp, *m.WinningSide)
	require.NotNil(t, m.FinalPrice)
	assert.Equal(t, "50000", m.FinalPrice.String())
	assert.Equal(t, "1", m.Bets.Up.Staked.String())
	assert.Equal(t, 4, m.WinnerCount(domain.SideUp))
}

func TestMapMarkets_SkipsUndecodable(t *testing.T) {
	bad := "12.5"
	raw := []marketJSON{
		{ID: 1, EndTime: 10},
		{ID: 2, IsResolved: true, WinningSide: json.RawMessage(`"Up"`), FinalPrice: &bad},
		{ID: 3, EndTime: 30},
	}

	markets, errs := mapMarkets(raw, 2)

	require.Len(t, markets, 2)
	assert.Equal(t, domain.MarketID(1), markets[0].ID)
	assert.Equal(t, domain.MarketID(3), markets[1].ID)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Error(), "market 2")
}

func TestResolveError(t *testing.T) {
	err := resolveError(resolveResponse{ErrorCode: domain.CodeTryAgainLater, Error: "ledger busy"})
	assert.ErrorIs(t, err, domain.ErrTryAgainLater)

	err = resolveError(resolveResponse{})
	assert.Equal(t, "resolve rejected without reason", err.Error())
}
