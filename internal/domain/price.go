package domain

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// DefaultPriceDecimals es la precisión de los precios del oráculo (i128 con 14 decimales).
const DefaultPriceDecimals = 14

// Price es un importe en unidades humanas. El contrato trabaja con enteros i128
// escalados; la conversión vive en FromRaw/Raw.
type Price struct {
	d decimal.Decimal
}

// NewPrice crea un Price desde un decimal.
func NewPrice(d decimal.Decimal) Price {
	return Price{d: d}
}

// PriceFromFloat es un atajo para tests y configuración.
func PriceFromFloat(f float64) Price {
	return Price{d: decimal.NewFromFloat(f)}
}

// PriceFromRaw interpreta un entero del contrato con la precisión dada.
func PriceFromRaw(raw string, decimals int32) (Price, error) {
	v, ok := new(big.Int).SetString(raw, 10)
	if !ok {
		return Price{}, fmt.Errorf("domain.PriceFromRaw: invalid integer %q", raw)
	}
	return Price{d: decimal.NewFromBigInt(v, -decimals)}, nil
}

// Raw devuelve el entero escalado que espera el contrato. Trunca decimales sobrantes.
func (p Price) Raw(decimals int32) *big.Int {
	return p.d.Shift(decimals).Truncate(0).BigInt()
}

// Decimal devuelve el valor subyacente.
func (p Price) Decimal() decimal.Decimal {
	return p.d
}

// IsPositive devuelve true si el precio es utilizable. Cero o negativo nunca es un precio válido.
func (p Price) IsPositive() bool {
	return p.d.IsPositive()
}

// Equal compara por valor.
func (p Price) Equal(o Price) bool {
	return p.d.Equal(o.d)
}

// String formatea sin ceros sobrantes ("50000", "0.1234").
func (p Price) String() string {
	return p.d.String()
}
