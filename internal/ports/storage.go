package ports

import (
	"context"
	"time"

	"github.com/alejandrodnm/marketkeeper/internal/domain"
)

// ResultStorage persiste el histórico de pasadas del engine.
type ResultStorage interface {
	// SavePass persiste el resumen de la pasada y un registro por mercado procesado.
	SavePass(ctx context.Context, report domain.PassReport) error

	// GetHistory devuelve los resultados registrados en el rango de tiempo dado.
	GetHistory(ctx context.Context, from, to time.Time) ([]domain.ResolutionRecord, error)

	// Close cierra la conexión a la base de datos limpiamente.
	Close() error
}

// SubscriberStorage guarda los chats suscritos a las alertas de Telegram.
type SubscriberStorage interface {
	AddSubscriber(ctx context.Context, sub domain.Subscriber) error
	RemoveSubscriber(ctx context.Context, chatID int64) error
	ListSubscribers(ctx context.Context) ([]domain.Subscriber, error)
}
