package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/alejandrodnm/marketkeeper/internal/domain"
	"github.com/alejandrodnm/marketkeeper/internal/ports"
)

// Multi reparte cada reporte entre varios notificadores. Un canal que falla
// no impide que los demás reciban el reporte.
type Multi struct {
	notifiers []ports.Notifier
}

// NewMulti crea un Multi. Los nil se ignoran.
func NewMulti(notifiers ...ports.Notifier) *Multi {
	m := &Multi{}
	for _, n := range notifiers {
		if n != nil {
			m.notifiers = append(m.notifiers, n)
		}
	}
	return m
}

// Notify implementa ports.Notifier.
func (m *Multi) Notify(ctx context.Context, report domain.PassReport) error {
	var errs []error
	for i, n := range m.notifiers {
		if err := n.Notify(ctx, report); err != nil {
			errs = append(errs, fmt.Errorf("notifier %d (%T): %w", i, n, err))
		}
	}
	return errors.Join(errs...)
}

// Len devuelve el número de canales activos.
func (m *Multi) Len() int {
	return len(m.notifiers)
}
