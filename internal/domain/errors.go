package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrPriceUnavailable: el oráculo no devolvió un precio utilizable.
	ErrPriceUnavailable = errors.New("price unavailable")
	// ErrTryAgainLater: el resolver no puede procesar ahora (contención de ledger o secuencia).
	ErrTryAgainLater = errors.New("TRY_AGAIN_LATER")
	// ErrAlreadyResolved: otro actor resolvió el mercado antes que nosotros.
	ErrAlreadyResolved = errors.New("market already resolved")
	// ErrNotAuthorized: la identidad usada no puede resolver mercados.
	ErrNotAuthorized = errors.New("not authorized")
	// ErrMarketNotFound: el contrato no conoce el mercado.
	ErrMarketNotFound = errors.New("market not found")
	// ErrLockHeld: otra instancia está resolviendo el mismo mercado.
	ErrLockHeld = errors.New("lock held by another keeper")
)

// Códigos estructurados que devuelve el gateway del contrato.
const (
	CodeTryAgainLater   = "TRY_AGAIN_LATER"
	CodeAlreadyResolved = "MARKET_ALREADY_RESOLVED"
	CodeNotAuthorized   = "NOT_AUTHORIZED"
	CodeMarketNotFound  = "MARKET_NOT_FOUND"
)

// ResolverError es un fallo explícito del resolver con código estructurado.
// Code puede estar vacío cuando el collaborator solo devuelve un mensaje.
type ResolverError struct {
	Code    string
	Message string
}

func (e *ResolverError) Error() string {
	if e.Code == "" {
		return e.Message
	}
	if e.Message == "" {
		return e.Code
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Is permite errors.Is(err, ErrTryAgainLater) y compañía sobre el código estructurado.
func (e *ResolverError) Is(target error) bool {
	switch target {
	case ErrTryAgainLater:
		return e.Code == CodeTryAgainLater
	case ErrAlreadyResolved:
		return e.Code == CodeAlreadyResolved
	case ErrNotAuthorized:
		return e.Code == CodeNotAuthorized
	case ErrMarketNotFound:
		return e.Code == CodeMarketNotFound
	}
	return false
}
