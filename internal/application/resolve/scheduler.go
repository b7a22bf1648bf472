package resolve

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alejandrodnm/marketkeeper/internal/domain"
	"github.com/alejandrodnm/marketkeeper/internal/ports"
)

// ErrPassSkipped indica que el guard rechazó la pasada (en vuelo o en cooldown).
var ErrPassSkipped = errors.New("pass skipped")

// SchedulerConfig controla las dos cadencias de disparo.
type SchedulerConfig struct {
	QuickInterval time.Duration // revisa expirados sobre el snapshot en memoria
	FullInterval  time.Duration // recarga mercados del contrato y revisa
	Cooldown      time.Duration // intervalo mínimo entre inicios de pasada
}

// Scheduler dispara pasadas del engine y publica sus resultados.
type Scheduler struct {
	cfg      SchedulerConfig
	engine   *Engine
	markets  ports.MarketRepository
	notifier ports.Notifier
	storage  ports.ResultStorage
	guard    *PassGuard

	mu         sync.Mutex
	snapshot   []domain.Market
	snapshotAt time.Time
	stale      bool // un full descartado por el guard: la próxima pasada recarga

	wg sync.WaitGroup
}

// NewScheduler crea un Scheduler. notifier y storage pueden ser nil.
func NewScheduler(
	cfg SchedulerConfig,
	engine *Engine,
	markets ports.MarketRepository,
	notifier ports.Notifier,
	storage ports.ResultStorage,
) *Scheduler {
	if cfg.QuickInterval <= 0 {
		cfg.QuickInterval = 10 * time.Second
	}
	if cfg.FullInterval <= 0 {
		cfg.FullInterval = 30 * time.Second
	}
	return &Scheduler{
		cfg:      cfg,
		engine:   engine,
		markets:  markets,
		notifier: notifier,
		storage:  storage,
		guard:    NewPassGuard(cfg.Cooldown),
	}
}

// Run ejecuta una pasada completa inicial y luego dispara las dos cadencias
// hasta que el contexto se cancele. Cada disparo corre en su propia goroutine;
// el guard descarta los que se solapan. Al salir espera a la pasada en curso.
func (s *Scheduler) Run(ctx context.Context) error {
	slog.Info("scheduler starting",
		"quick_interval", s.cfg.QuickInterval,
		"full_interval", s.cfg.FullInterval,
		"cooldown", s.cfg.Cooldown,
	)

	if _, err := s.Trigger(ctx, domain.TriggerFull); err != nil && !errors.Is(err, ErrPassSkipped) {
		slog.Error("initial pass failed", "err", err)
	}

	quick := time.NewTicker(s.cfg.QuickInterval)
	defer quick.Stop()
	full := time.NewTicker(s.cfg.FullInterval)
	defer full.Stop()

	for {
		select {
		case <-ctx.Done():
			s.wg.Wait()
			slog.Info("scheduler stopped")
			return nil
		case <-quick.C:
			s.fire(ctx, domain.TriggerQuick)
		case <-full.C:
			s.fire(ctx, domain.TriggerFull)
		}
	}
}

func (s *Scheduler) fire(ctx context.Context, trigger domain.Trigger) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if _, err := s.Trigger(ctx, trigger); err != nil {
			if errors.Is(err, ErrPassSkipped) {
				slog.Debug("pass skipped", "trigger", trigger, "reason", err)
				return
			}
			slog.Error("pass failed", "trigger", trigger, "err", err)
		}
	}()
}

// Trigger ejecuta una pasada si el guard lo permite. Las pasadas full (o la
// primera quick sin snapshot) recargan los mercados del contrato. Un full
// descartado por el guard no se pierde: la siguiente pasada recarga igualmente.
func (s *Scheduler) Trigger(ctx context.Context, trigger domain.Trigger) (domain.PassReport, error) {
	release, ok, reason := s.guard.TryAcquire()
	if !ok {
		if trigger == domain.TriggerFull {
			s.mu.Lock()
			s.stale = true
			s.mu.Unlock()
		}
		return domain.PassReport{}, fmt.Errorf("%w: %s", ErrPassSkipped, reason)
	}
	defer release()

	markets, err := s.marketsFor(ctx, trigger)
	if err != nil {
		return domain.PassReport{}, err
	}

	report := s.engine.RunPass(ctx, trigger, markets)
	s.publish(ctx, report)
	return report, nil
}

// marketsFor devuelve el snapshot a usar, recargándolo si hace falta.
func (s *Scheduler) marketsFor(ctx context.Context, trigger domain.Trigger) ([]domain.Market, error) {
	s.mu.Lock()
	if trigger == domain.TriggerQuick && !s.snapshotAt.IsZero() && !s.stale {
		cached := s.snapshot
		s.mu.Unlock()
		return cached, nil
	}
	s.stale = false
	s.mu.Unlock()

	markets, err := s.markets.ListMarkets(ctx)
	if err != nil {
		s.mu.Lock()
		s.stale = true
		s.mu.Unlock()
		return nil, fmt.Errorf("resolve.Scheduler: list markets: %w", err)
	}

	s.mu.Lock()
	s.snapshot = markets
	s.snapshotAt = time.Now()
	s.mu.Unlock()

	slog.Debug("market snapshot refreshed", "markets", len(markets))
	return markets, nil
}

// publish notifica y persiste el reporte. Los errores se registran, nunca abortan.
func (s *Scheduler) publish(ctx context.Context, report domain.PassReport) {
	resolved, postponed, failed := report.Counts()

	for _, r := range report.Results {
		switch r.Status {
		case domain.StatusFailed:
			slog.Error("market resolution failed", "market_id", r.MarketID, "msg", r.UserMessage())
		case domain.StatusPostponed:
			slog.Warn("market resolution postponed", "market_id", r.MarketID, "msg", r.UserMessage())
		default:
			slog.Info("market resolved", "market_id", r.MarketID, "msg", r.UserMessage())
		}
	}

	if s.notifier != nil {
		if err := s.notifier.Notify(ctx, report); err != nil {
			slog.Warn("notifier error", "err", err)
		}
	}
	if s.storage != nil {
		if err := s.storage.SavePass(ctx, report); err != nil {
			slog.Warn("storage error", "err", err)
		}
	}

	slog.Info("resolve pass complete",
		"trigger", report.Trigger,
		"scanned", report.Scanned,
		"resolved", resolved,
		"postponed", postponed,
		"failed", failed,
		"duration", report.Duration().Round(time.Millisecond),
	)
}
