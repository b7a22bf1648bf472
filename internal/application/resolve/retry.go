package resolve

import (
	"errors"
	"strings"
	"time"

	"github.com/alejandrodnm/marketkeeper/internal/domain"
)

const (
	defaultMaxAttempts = 3
	defaultBaseWait    = time.Second

	// MaxBackoff acota la espera entre intentos, también ante desbordamiento.
	MaxBackoff = 10 * time.Minute
)

// ErrorClass clasifica un fallo de resolución.
type ErrorClass int

const (
	ClassOther ErrorClass = iota
	ClassTransient
)

func (c ErrorClass) String() string {
	if c == ClassTransient {
		return "transient"
	}
	return "other"
}

// RetryPolicy decide si reintentar y cuánto esperar.
type RetryPolicy struct {
	MaxAttempts int           // intentos totales, incluido el primero
	BaseWait    time.Duration // espera = 2^attempt × BaseWait
}

// DefaultRetryPolicy: 3 intentos, esperas de 2s, 4s, 8s.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: defaultMaxAttempts, BaseWait: defaultBaseWait}
}

// Decision es la salida de RetryPolicy.Decide.
type Decision struct {
	ShouldRetry bool
	Wait        time.Duration
}

// Decide aplica la política tras el intento attempt (desde 1).
// Solo se reintentan fallos transitorios y solo mientras attempt < MaxAttempts.
func (p RetryPolicy) Decide(attempt int, class ErrorClass) Decision {
	return Decision{
		ShouldRetry: class == ClassTransient && attempt < p.maxAttempts(),
		Wait:        p.Backoff(attempt),
	}
}

// Backoff devuelve 2^attempt × BaseWait, como mucho MaxBackoff.
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 32 {
		attempt = 32
	}
	base := p.BaseWait
	if base <= 0 {
		base = defaultBaseWait
	}
	shift := uint(attempt)
	wait := base << shift
	if wait <= 0 || wait>>shift != base || wait > MaxBackoff {
		return MaxBackoff
	}
	return wait
}

func (p RetryPolicy) maxAttempts() int {
	if p.MaxAttempts <= 0 {
		return defaultMaxAttempts
	}
	return p.MaxAttempts
}

// tryAgainMarkers son los textos con los que el resolver señala contención.
// Fallback de compatibilidad: el camino preferido es el código estructurado.
var tryAgainMarkers = []string{"try_again_later", "try again later"}

// Classify devuelve ClassTransient si el error indica que el resolver no puede
// procesar ahora. Primero mira el código estructurado; si no hay, busca el
// marcador en el mensaje.
func Classify(err error) ErrorClass {
	if err == nil {
		return ClassOther
	}
	if errors.Is(err, domain.ErrTryAgainLater) {
		return ClassTransient
	}
	msg := strings.ToLower(err.Error())
	for _, m := range tryAgainMarkers {
		if strings.Contains(msg, m) {
			return ClassTransient
		}
	}
	return ClassOther
}

// isAlreadyResolved detecta que otro actor resolvió el mercado.
// "Error(Contract, #4)" es MarketAlreadyResolved en el contrato.
func isAlreadyResolved(err error) bool {
	if errors.Is(err, domain.ErrAlreadyResolved) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "already resolved") ||
		strings.Contains(msg, "marketalreadyresolved") ||
		strings.Contains(msg, "error(contract, #4)")
}
