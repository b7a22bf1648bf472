package resolve

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/marketkeeper/internal/domain"
)

func TestPassGuard(t *testing.T) {
	now := time.Unix(0, 0)
	g := NewPassGuard(5 * time.Second)
	g.now = func() time.Time { return now }

	release, ok, _ := g.TryAcquire()
	require.True(t, ok)
	assert.True(t, g.InFlight())

	_, ok, reason := g.TryAcquire()
	assert.False(t, ok)
	assert.Equal(t, SkipInFlight, reason)

	release()
	release() // idempotente
	assert.False(t, g.InFlight())

	now = now.Add(time.Second)
	_, ok, reason = g.TryAcquire()
	assert.False(t, ok)
	assert.Equal(t, SkipCooldown, reason)

	now = now.Add(5 * time.Second)
	release, ok, _ = g.TryAcquire()
	assert.True(t, ok)
	release()
}

func TestPassGuard_NoCooldown(t *testing.T) {
	g := NewPassGuard(0)
	for i := 0; i < 3; i++ {
		release, ok, _ := g.TryAcquire()
		require.True(t, ok)
		release()
	}
}

type schedulerFixture struct {
	*engineFixture
	repo      *fakeRepo
	notifier  *fakeNotifier
	storage   *fakeStorage
	scheduler *Scheduler
}

func newSchedulerFixture(markets ...domain.Market) *schedulerFixture {
	ef := newEngineFixture(Config{})
	f := &schedulerFixture{
		engineFixture: ef,
		repo:          &fakeRepo{markets: markets},
		notifier:      &fakeNotifier{},
		storage:       &fakeStorage{},
	}
	f.scheduler = NewScheduler(SchedulerConfig{}, ef.engine, f.repo, f.notifier, f.storage)
	return f
}

func TestScheduler_QuickReusesSnapshotFullReloads(t *testing.T) {
	now := time.Unix(1001, 0)
	f := newSchedulerFixture(expiredMarket(1, "BTC", now))
	f.prices.set("BTC", 50000)
	ctx := context.Background()

	// Sin snapshot previo el quick tiene que cargar
	_, err := f.scheduler.Trigger(ctx, domain.TriggerQuick)
	require.NoError(t, err)
	assert.Equal(t, 1, f.repo.calls)

	_, err = f.scheduler.Trigger(ctx, domain.TriggerQuick)
	require.NoError(t, err)
	assert.Equal(t, 1, f.repo.calls)

	_, err = f.scheduler.Trigger(ctx, domain.TriggerFull)
	require.NoError(t, err)
	assert.Equal(t, 2, f.repo.calls)
}

func TestScheduler_PublishesReport(t *testing.T) {
	now := time.Unix(1001, 0)
	f := newSchedulerFixture(expiredMarket(1, "BTC", now), expiredMarket(2, "NOPE", now))
	f.prices.set("BTC", 50000)

	report, err := f.scheduler.Trigger(context.Background(), domain.TriggerFull)
	require.NoError(t, err)
	require.Len(t, report.Results, 2)

	require.Len(t, f.notifier.reports, 1)
	require.Len(t, f.storage.saved, 1)
	assert.Equal(t, report.ID, f.notifier.reports[0].ID)
	assert.Equal(t, report.ID, f.storage.saved[0].ID)

	resolved, _, failed := report.Counts()
	assert.Equal(t, 1, resolved)
	assert.Equal(t, 1, failed)
}

func TestScheduler_ListErrorSurfaces(t *testing.T) {
	f := newSchedulerFixture()
	f.repo.err = errors.New("rpc down")

	_, err := f.scheduler.Trigger(context.Background(), domain.TriggerFull)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rpc down")
	assert.Empty(t, f.notifier.reports)

	// El guard se libera aunque la pasada falle
	assert.False(t, f.scheduler.guard.InFlight())
}

// blockingResolver retiene la resolución hasta que se cierra release.
type blockingResolver struct {
	started chan struct{}
	release chan struct{}
}

func (b *blockingResolver) ResolveMarket(ctx context.Context, _ domain.CallerIdentity, _ domain.MarketID, _ domain.Price) (domain.Side, error) {
	close(b.started)
	<-b.release
	return domain.SideUp, nil
}

func TestScheduler_OverlappingTriggerIsSkipped(t *testing.T) {
	now := time.Unix(1001, 0)
	f := newSchedulerFixture(expiredMarket(1, "BTC", now))
	f.prices.set("BTC", 50000)
	br := &blockingResolver{started: make(chan struct{}), release: make(chan struct{})}
	f.engine.resolver = br

	done := make(chan error, 1)
	go func() {
		_, err := f.scheduler.Trigger(context.Background(), domain.TriggerFull)
		done <- err
	}()
	<-br.started

	_, err := f.scheduler.Trigger(context.Background(), domain.TriggerQuick)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPassSkipped)
	assert.Contains(t, err.Error(), SkipInFlight)

	close(br.release)
	require.NoError(t, <-done)
	assert.Len(t, f.notifier.reports, 1)
}

func TestScheduler_SkippedFullRefreshReloadsOnNextPass(t *testing.T) {
	now := time.Unix(1001, 0)
	f := newSchedulerFixture(expiredMarket(1, "BTC", now))
	f.prices.set("BTC", 50000)
	f.prices.set("ETH", 3000)
	br := &blockingResolver{started: make(chan struct{}), release: make(chan struct{})}
	f.engine.resolver = br
	ctx := context.Background()

	done := make(chan error, 1)
	go func() {
		_, err := f.scheduler.Trigger(ctx, domain.TriggerQuick)
		done <- err
	}()
	<-br.started

	// Aparece un mercado nuevo mientras el quick sigue en vuelo
	f.repo.mu.Lock()
	f.repo.markets = append(f.repo.markets, expiredMarket(2, "ETH", now))
	f.repo.mu.Unlock()

	_, err := f.scheduler.Trigger(ctx, domain.TriggerFull)
	require.ErrorIs(t, err, ErrPassSkipped)

	close(br.release)
	require.NoError(t, <-done)
	f.engine.resolver = f.resolver

	report, err := f.scheduler.Trigger(ctx, domain.TriggerQuick)
	require.NoError(t, err)
	assert.Equal(t, 2, f.repo.calls, "el full descartado fuerza la recarga")
	require.Len(t, report.Results, 1)
	assert.Equal(t, domain.MarketID(2), report.Results[0].MarketID)
	assert.Equal(t, domain.StatusResolved, report.Results[0].Status)

	_, err = f.scheduler.Trigger(ctx, domain.TriggerQuick)
	require.NoError(t, err)
	assert.Equal(t, 2, f.repo.calls, "tras recargar, quick vuelve a usar el snapshot")
}

func TestScheduler_RunStopsOnCancel(t *testing.T) {
	now := time.Unix(1001, 0)
	f := newSchedulerFixture(expiredMarket(1, "BTC", now))
	f.prices.set("BTC", 50000)
	f.scheduler.cfg.QuickInterval = 5 * time.Millisecond
	f.scheduler.cfg.FullInterval = 7 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()

	require.NoError(t, f.scheduler.Run(ctx))
	assert.GreaterOrEqual(t, f.repo.calls, 1)
	assert.Equal(t, 1, f.resolver.callCount(1), "el mercado se resuelve una sola vez")
}
