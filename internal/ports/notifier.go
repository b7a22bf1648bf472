package ports

import (
	"context"

	"github.com/alejandrodnm/marketkeeper/internal/domain"
)

// Notifier presenta el resultado de una pasada al usuario.
type Notifier interface {
	// Notify recibe el reporte completo. Cada implementación decide qué
	// resultados muestra: consola todos, Telegram solo los resueltos.
	Notify(ctx context.Context, report domain.PassReport) error
}
