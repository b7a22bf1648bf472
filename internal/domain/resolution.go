package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// CallerIdentity es la credencial con la que se autoriza resolveMarket.
// Su ciclo de vida (creación, rotación) se gestiona fuera del engine.
type CallerIdentity struct {
	Address string // public key G... de Stellar
	Label   string // nombre para logs
}

// String devuelve la dirección abreviada para logs.
func (c CallerIdentity) String() string {
	if c.Label != "" {
		return c.Label
	}
	if len(c.Address) > 12 {
		return c.Address[:6] + "..." + c.Address[len(c.Address)-4:]
	}
	return c.Address
}

// ResolutionStatus es el estado terminal de un mercado en una pasada.
type ResolutionStatus string

const (
	StatusResolved  ResolutionStatus = "resolved"
	StatusPostponed ResolutionStatus = "postponed"
	StatusFailed    ResolutionStatus = "failed"
)

// AttemptOutcome es el resultado de un intento individual de resolución.
type AttemptOutcome string

const (
	AttemptSuccess          AttemptOutcome = "success"
	AttemptTransientFailure AttemptOutcome = "transientFailure"
	AttemptPermanentFailure AttemptOutcome = "permanentFailure"
)

// ResolutionAttempt es efímero: se crea por intento y se pliega en el resultado del mercado.
type ResolutionAttempt struct {
	MarketID       MarketID
	AttemptNumber  int // desde 1
	Outcome        AttemptOutcome
	WaitBeforeNext time.Duration
	Err            error
}

// MarketResolutionResult es la salida de una pasada para un mercado.
type MarketResolutionResult struct {
	MarketID        MarketID
	Title           string
	Status          ResolutionStatus
	WinningSide     *Side
	FinalPrice      *Price
	RetryCount      int  // intentos extra tras el primero
	AlreadyResolved bool // lo resolvió otro actor entre el scan y nuestro intento
	Error           string
	WinnerCount     int
}

// UserMessage devuelve el texto visible para el usuario.
// Postponed no es un error: la resolución puede aterrizar on-chain igualmente.
func (r MarketResolutionResult) UserMessage() string {
	label := TruncateTitle(r.Title, r.MarketID, 40)
	switch r.Status {
	case StatusResolved:
		if r.AlreadyResolved || r.WinningSide == nil {
			return fmt.Sprintf("Market %q was already resolved", label)
		}
		msg := fmt.Sprintf("Market %q auto-resolved! Winner: %s", label, r.WinningSide)
		if r.RetryCount > 0 {
			msg += fmt.Sprintf(" (succeeded after %d retries)", r.RetryCount)
		}
		return msg
	case StatusPostponed:
		return fmt.Sprintf("Market %s resolution delayed due to network congestion, will retry automatically", r.MarketID)
	default:
		reason := r.Error
		if reason == "" {
			reason = "unknown error"
		}
		return fmt.Sprintf("Failed to auto-resolve market %s: %s", r.MarketID, reason)
	}
}

// IsError devuelve true si el resultado debe mostrarse como error.
func (r MarketResolutionResult) IsError() bool {
	return r.Status == StatusFailed
}

// Trigger identifica qué cadencia disparó una pasada.
type Trigger string

const (
	TriggerQuick  Trigger = "quick"
	TriggerFull   Trigger = "full"
	TriggerManual Trigger = "manual"
)

// PassReport agrupa los resultados de una pasada del engine.
type PassReport struct {
	ID         uuid.UUID
	Trigger    Trigger
	StartedAt  time.Time
	FinishedAt time.Time
	Scanned    int // mercados en el snapshot
	Results    []MarketResolutionResult
}

// Counts devuelve cuántos resultados hay de cada estado.
func (p PassReport) Counts() (resolved, postponed, failed int) {
	for _, r := range p.Results {
		switch r.Status {
		case StatusResolved:
			resolved++
		case StatusPostponed:
			postponed++
		case StatusFailed:
			failed++
		}
	}
	return
}

// Duration devuelve lo que tardó la pasada.
func (p PassReport) Duration() time.Duration {
	return p.FinishedAt.Sub(p.StartedAt)
}

// ResolutionRecord es un resultado ya persistido, con el contexto de su pasada.
type ResolutionRecord struct {
	PassID     uuid.UUID
	Trigger    Trigger
	RecordedAt time.Time
	Result     MarketResolutionResult
}
