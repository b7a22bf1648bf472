package lock

import (
	"context"
	"sync"
	"time"

	"github.com/alejandrodnm/marketkeeper/internal/domain"
)

// Local es un MarketLocker en memoria para una sola instancia del keeper.
// Respeta el TTL igual que Redis: un lock vencido se puede volver a tomar.
type Local struct {
	mu   sync.Mutex
	held map[string]localEntry
	now  func() time.Time
	seq  uint64
}

type localEntry struct {
	id      uint64
	expires time.Time
}

// NewLocal crea un Local vacío.
func NewLocal() *Local {
	return &Local{held: make(map[string]localEntry), now: time.Now}
}

// Acquire implementa ports.MarketLocker.
func (l *Local) Acquire(_ context.Context, key string, ttl time.Duration) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if e, ok := l.held[key]; ok && now.Before(e.expires) {
		return nil, domain.ErrLockHeld
	}

	l.seq++
	id := l.seq
	l.held[key] = localEntry{id: id, expires: now.Add(ttl)}

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			defer l.mu.Unlock()
			if e, ok := l.held[key]; ok && e.id == id {
				delete(l.held, key)
			}
		})
	}, nil
}
