package resolve

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/alejandrodnm/marketkeeper/internal/domain"
	"github.com/alejandrodnm/marketkeeper/internal/ports"
)

const (
	defaultLockTTL = 2 * time.Minute
	lockKeyPrefix  = "resolve:"
)

// Config contiene la configuración del engine.
type Config struct {
	Retry   RetryPolicy
	Workers int           // mercados en paralelo por pasada (0 = todos)
	LockTTL time.Duration // TTL del lock por mercado si hay MarketLocker
}

// Sleeper espera d sin bloquear otros mercados. Devuelve ctx.Err() si se cancela antes.
type Sleeper func(ctx context.Context, d time.Duration) error

// Engine orquesta scan → precio → resolve con reintentos para cada mercado expirado.
type Engine struct {
	cfg      Config
	caller   domain.CallerIdentity
	prices   ports.PriceSource
	resolver ports.MarketResolver
	locker   ports.MarketLocker
	scanner  ExpiryScanner

	now   func() time.Time
	sleep Sleeper

	mu      sync.Mutex
	settled map[domain.MarketID]struct{} // resueltos por nosotros, pendientes de reflejarse en el snapshot
}

// New crea un Engine. caller es la identidad con la que se firman las resoluciones.
func New(cfg Config, caller domain.CallerIdentity, prices ports.PriceSource, resolver ports.MarketResolver) *Engine {
	if cfg.Retry.MaxAttempts <= 0 || cfg.Retry.BaseWait <= 0 {
		cfg.Retry = DefaultRetryPolicy()
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = defaultLockTTL
	}
	return &Engine{
		cfg:      cfg,
		caller:   caller,
		prices:   prices,
		resolver: resolver,
		now:      time.Now,
		sleep:    sleepCtx,
		settled:  make(map[domain.MarketID]struct{}),
	}
}

// SetLocker activa el lock distribuido por mercado.
func (e *Engine) SetLocker(l ports.MarketLocker) {
	e.locker = l
}

// SetClock reemplaza el reloj (tests).
func (e *Engine) SetClock(now func() time.Time) {
	e.now = now
}

// SetSleeper reemplaza la espera entre reintentos (tests).
func (e *Engine) SetSleeper(s Sleeper) {
	e.sleep = s
}

// RunPass ejecuta una pasada completa sobre el snapshot dado y devuelve un
// resultado por mercado elegible. Nunca devuelve error: los fallos quedan
// aislados en el resultado de cada mercado.
func (e *Engine) RunPass(ctx context.Context, trigger domain.Trigger, markets []domain.Market) domain.PassReport {
	report := domain.PassReport{
		ID:        uuid.New(),
		Trigger:   trigger,
		StartedAt: e.now(),
		Scanned:   len(markets),
	}

	snapshot := e.applySettled(markets)
	expired := e.scanner.Expired(snapshot, report.StartedAt)

	slog.Debug("resolve pass started",
		"pass_id", report.ID,
		"trigger", trigger,
		"markets", len(markets),
		"expired", len(expired),
	)

	report.Results = resolveConcurrent(ctx, e, expired, e.cfg.Workers)

	for _, r := range report.Results {
		if r.Status == domain.StatusResolved {
			e.markSettled(r.MarketID)
		}
	}

	report.FinishedAt = e.now()
	return report
}

// ResolveOne lleva un mercado expirado hasta un estado terminal.
// Cualquier panic de un collaborator se convierte en un resultado Failed.
func (e *Engine) ResolveOne(ctx context.Context, m domain.Market) (result domain.MarketResolutionResult) {
	result = domain.MarketResolutionResult{MarketID: m.ID, Title: m.Title}

	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("resolve: unexpected panic", "market_id", m.ID, "panic", rec)
			result.Status = domain.StatusFailed
			result.Error = fmt.Sprintf("unexpected error: %v", rec)
		}
	}()

	// PriceFetching
	price, err := e.prices.GetCurrentPrice(ctx, m.Token)
	if err != nil {
		if Classify(err) == ClassTransient {
			return postponed(result, err)
		}
		return failed(result, fmt.Errorf("%w: %v", domain.ErrPriceUnavailable, err))
	}
	if price == nil || !price.IsPositive() {
		return failed(result, fmt.Errorf("%w for token %s", domain.ErrPriceUnavailable, m.Token))
	}

	if e.locker != nil {
		unlock, err := e.locker.Acquire(ctx, lockKeyPrefix+m.ID.String(), e.cfg.LockTTL)
		switch {
		case errors.Is(err, domain.ErrLockHeld):
			return postponed(result, err)
		case err != nil:
			slog.Warn("resolve: lock unavailable, continuing without it", "market_id", m.ID, "err", err)
		default:
			defer unlock()
		}
	}

	return e.resolveWithRetry(ctx, m, *price, result)
}

// resolveWithRetry: Resolving → {Retrying ⟲ Resolving} → Terminal.
func (e *Engine) resolveWithRetry(ctx context.Context, m domain.Market, price domain.Price, result domain.MarketResolutionResult) domain.MarketResolutionResult {
	for attempt := 1; ; attempt++ {
		result.RetryCount = attempt - 1

		side, err := e.callResolver(ctx, m.ID, price)
		if err == nil {
			logAttempt(domain.ResolutionAttempt{MarketID: m.ID, AttemptNumber: attempt, Outcome: domain.AttemptSuccess})
			result.Status = domain.StatusResolved
			result.WinningSide = &side
			result.FinalPrice = &price
			result.WinnerCount = m.WinnerCount(side)
			return result
		}

		if isAlreadyResolved(err) {
			slog.Info("resolve: market already resolved by another caller", "market_id", m.ID)
			result.Status = domain.StatusResolved
			result.AlreadyResolved = true
			return result
		}

		class := Classify(err)
		decision := e.cfg.Retry.Decide(attempt, class)

		outcome := domain.AttemptPermanentFailure
		if class == ClassTransient {
			outcome = domain.AttemptTransientFailure
		}
		attemptRec := domain.ResolutionAttempt{MarketID: m.ID, AttemptNumber: attempt, Outcome: outcome, Err: err}
		if decision.ShouldRetry {
			attemptRec.WaitBeforeNext = decision.Wait
		}
		logAttempt(attemptRec)

		if class != ClassTransient {
			return failed(result, err)
		}
		if !decision.ShouldRetry {
			return postponed(result, err)
		}

		if err := e.sleep(ctx, decision.Wait); err != nil {
			return postponed(result, fmt.Errorf("retry wait interrupted: %w", err))
		}
	}
}

// callResolver aísla panics del resolver para tratarlos como un fallo más del intento.
func (e *Engine) callResolver(ctx context.Context, id domain.MarketID, price domain.Price) (side domain.Side, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("resolver panic: %v", rec)
		}
	}()
	return e.resolver.ResolveMarket(ctx, e.caller, id, price)
}

// applySettled marca como resueltos los mercados que resolvimos en pasadas
// anteriores aunque el snapshot aún no lo refleje, y olvida los que ya lo reflejan.
func (e *Engine) applySettled(markets []domain.Market) []domain.Market {
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(e.settled) == 0 {
		return markets
	}

	pending := make(map[domain.MarketID]struct{}, len(e.settled))
	out := make([]domain.Market, len(markets))
	for i, m := range markets {
		if _, ok := e.settled[m.ID]; ok && !m.IsResolved {
			m.IsResolved = true
			pending[m.ID] = struct{}{}
		}
		out[i] = m
	}
	e.settled = pending
	return out
}

func (e *Engine) markSettled(id domain.MarketID) {
	e.mu.Lock()
	e.settled[id] = struct{}{}
	e.mu.Unlock()
}

func postponed(r domain.MarketResolutionResult, err error) domain.MarketResolutionResult {
	r.Status = domain.StatusPostponed
	r.Error = err.Error()
	return r
}

func failed(r domain.MarketResolutionResult, err error) domain.MarketResolutionResult {
	r.Status = domain.StatusFailed
	r.Error = err.Error()
	return r
}

func logAttempt(a domain.ResolutionAttempt) {
	attrs := []any{
		"market_id", a.MarketID,
		"attempt", a.AttemptNumber,
		"outcome", a.Outcome,
	}
	if a.WaitBeforeNext > 0 {
		attrs = append(attrs, "wait", a.WaitBeforeNext)
	}
	if a.Err != nil {
		attrs = append(attrs, "err", a.Err)
	}
	slog.Debug("resolve attempt", attrs...)
}

// sleepCtx espera d respetando el contexto.
func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
