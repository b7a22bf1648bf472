package resolve

import (
	"time"

	"github.com/alejandrodnm/marketkeeper/internal/domain"
)

// ExpiryScanner selecciona los mercados que ya pueden resolverse.
type ExpiryScanner struct{}

// Expired devuelve los mercados con !IsResolved && EndTime <= now.
// Función pura: no accede a red ni modifica la entrada. El orden de salida es
// el de entrada, pero los callers no deben depender de él.
func (ExpiryScanner) Expired(markets []domain.Market, now time.Time) []domain.Market {
	out := make([]domain.Market, 0, len(markets))
	for _, m := range markets {
		if m.IsExpired(now) {
			out = append(out, m)
		}
	}
	return out
}
