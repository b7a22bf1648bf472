package domain

import "time"

// ResolvedNotification es el payload que se envía al relay de mensajería
// cuando el keeper resuelve un mercado.
type ResolvedNotification struct {
	MarketID    MarketID
	Title       string
	WinningSide Side
	FinalPrice  Price
	WinnerCount int
	ResolvedAt  time.Time
}

// Subscriber es un chat de Telegram suscrito a las alertas.
type Subscriber struct {
	ChatID       int64
	UserID       string // wallet o username, informativo
	Betting      bool   // recibe alertas de mercados de apuestas
	SubscribedAt time.Time
}

// NewResolvedNotification construye el payload para un resultado resuelto por este keeper.
// Devuelve false si el resultado no es notificable: no resuelto, resuelto por
// otro actor, o sin lado ganador o precio conocidos.
func NewResolvedNotification(r MarketResolutionResult, at time.Time) (ResolvedNotification, bool) {
	if r.Status != StatusResolved || r.AlreadyResolved || r.WinningSide == nil || r.FinalPrice == nil {
		return ResolvedNotification{}, false
	}
	return ResolvedNotification{
		MarketID:    r.MarketID,
		Title:       r.Title,
		WinningSide: *r.WinningSide,
		FinalPrice:  *r.FinalPrice,
		WinnerCount: r.WinnerCount,
		ResolvedAt:  at,
	}, true
}

// ResolvedNotifications devuelve los payloads notificables de la pasada.
func (p PassReport) ResolvedNotifications() []ResolvedNotification {
	var out []ResolvedNotification
	for _, r := range p.Results {
		if n, ok := NewResolvedNotification(r, p.FinishedAt); ok {
			out = append(out, n)
		}
	}
	return out
}
