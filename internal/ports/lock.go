package ports

import (
	"context"
	"time"
)

// MarketLocker evita que dos keepers resuelvan el mismo mercado a la vez.
type MarketLocker interface {
	// Acquire devuelve domain.ErrLockHeld si otro proceso tiene el lock.
	// La función unlock es idempotente.
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}
