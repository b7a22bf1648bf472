package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

// MarketID es el identificador que el contrato asigna a cada mercado (monótono, desde 1).
type MarketID uint64

// String devuelve el ID en decimal.
func (id MarketID) String() string {
	return strconv.FormatUint(uint64(id), 10)
}

// ParseMarketID convierte un ID decimal a MarketID.
func ParseMarketID(s string) (MarketID, error) {
	v, err := strconv.ParseUint(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("domain.ParseMarketID: %q: %w", s, err)
	}
	return MarketID(v), nil
}

// Side es el resultado sobre el que se apuesta en un mercado.
type Side int

const (
	SideUp Side = iota
	SideDown
	SideStable
)

// String devuelve el nombre del lado tal como lo expone el contrato.
func (s Side) String() string {
	switch s {
	case SideUp:
		return "Up"
	case SideDown:
		return "Down"
	case SideStable:
		return "Stable"
	default:
		return "Unknown"
	}
}

// ParseSide acepta el nombre ("Up", "down", "STABLE") o el índice numérico del contrato ("0", "1", "2").
func ParseSide(s string) (Side, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "up", "0":
		return SideUp, nil
	case "down", "1":
		return SideDown, nil
	case "stable", "2":
		return SideStable, nil
	}
	return 0, fmt.Errorf("domain.ParseSide: unknown side %q", s)
}

// BetTotals agrega las apuestas de un lado del mercado.
type BetTotals struct {
	Count  int   // número de apostadores
	Staked Price // total apostado, en unidades del token de apuesta
}

// Bets son los totales por lado. Solo lectura: se usan para informar ganadores.
type Bets struct {
	Up     BetTotals
	Down   BetTotals
	Stable BetTotals
}

// Market es la vista de solo lectura de un mercado del contrato de apuestas.
type Market struct {
	ID          MarketID
	Title       string // solo para notificaciones
	Token       string // activo cuyo precio decide el mercado
	EndTime     time.Time
	IsResolved  bool
	Bets        Bets
	WinningSide *Side  // solo si IsResolved
	FinalPrice  *Price // solo si IsResolved
}

// IsExpired devuelve true si el mercado ya puede resolverse: no resuelto y endTime <= now.
func (m Market) IsExpired(now time.Time) bool {
	return !m.IsResolved && !m.EndTime.After(now)
}

// WinnerCount devuelve el número de apostadores del lado ganador.
func (m Market) WinnerCount(side Side) int {
	switch side {
	case SideUp:
		return m.Bets.Up.Count
	case SideDown:
		return m.Bets.Down.Count
	case SideStable:
		return m.Bets.Stable.Count
	}
	return 0
}

// TruncateTitle devuelve el título truncado a maxLen caracteres.
// Si el título está vacío usa "market #<id>" como fallback.
func TruncateTitle(title string, id MarketID, maxLen int) string {
	t := title
	if t == "" {
		t = "market #" + id.String()
	}
	return Truncate(t, maxLen)
}

// Truncate recorta s a maxLen runas como máximo, terminando en "..." si corta.
// Cuenta runas, no bytes: un título con acentos nunca queda partido a mitad de carácter.
func Truncate(s string, maxLen int) string {
	if maxLen <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= maxLen {
		return s
	}
	r := []rune(s)
	if maxLen < 3 {
		return string(r[:maxLen])
	}
	return string(r[:maxLen-3]) + "..."
}
