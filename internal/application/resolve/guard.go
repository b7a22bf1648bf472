package resolve

import (
	"sync"
	"time"
)

// Motivos por los que PassGuard rechaza una pasada.
const (
	SkipInFlight = "in_flight"
	SkipCooldown = "cooldown"
)

// PassGuard evita pasadas solapadas: una sola en vuelo, y un intervalo mínimo
// entre inicios para que el trigger rápido no reentre tras una pasada lenta.
type PassGuard struct {
	mu        sync.Mutex
	inFlight  bool
	lastStart time.Time
	cooldown  time.Duration
	now       func() time.Time
}

// NewPassGuard crea un guard con el cooldown dado (0 = sin cooldown).
func NewPassGuard(cooldown time.Duration) *PassGuard {
	return &PassGuard{cooldown: cooldown, now: time.Now}
}

// TryAcquire reserva la pasada. Si ok es false, reason indica por qué.
// release debe llamarse al terminar la pasada.
func (g *PassGuard) TryAcquire() (release func(), ok bool, reason string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.inFlight {
		return nil, false, SkipInFlight
	}
	now := g.now()
	if !g.lastStart.IsZero() && now.Sub(g.lastStart) < g.cooldown {
		return nil, false, SkipCooldown
	}

	g.inFlight = true
	g.lastStart = now

	var once sync.Once
	return func() {
		once.Do(func() {
			g.mu.Lock()
			g.inFlight = false
			g.mu.Unlock()
		})
	}, true, ""
}

// InFlight devuelve true si hay una pasada en curso.
func (g *PassGuard) InFlight() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.inFlight
}
