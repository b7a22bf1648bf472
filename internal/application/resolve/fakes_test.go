package resolve

import (
	"context"
	"sync"
	"time"

	"github.com/alejandrodnm/marketkeeper/internal/domain"
)

// fakePrices devuelve precios por token. errs tiene prioridad sobre prices.
type fakePrices struct {
	mu     sync.Mutex
	prices map[string]*domain.Price
	errs   map[string]error
	panics map[string]bool
	calls  map[string]int
}

func newFakePrices() *fakePrices {
	return &fakePrices{
		prices: make(map[string]*domain.Price),
		errs:   make(map[string]error),
		panics: make(map[string]bool),
		calls:  make(map[string]int),
	}
}

func (f *fakePrices) set(token string, v float64) {
	p := domain.PriceFromFloat(v)
	f.prices[token] = &p
}

func (f *fakePrices) GetCurrentPrice(_ context.Context, token string) (*domain.Price, error) {
	f.mu.Lock()
	f.calls[token]++
	f.mu.Unlock()

	if f.panics[token] {
		panic("oracle exploded")
	}
	if err, ok := f.errs[token]; ok {
		return nil, err
	}
	return f.prices[token], nil
}

type resolveStep struct {
	side domain.Side
	err  error
}

// fakeResolver responde con un guion por mercado; el último paso se repite.
type fakeResolver struct {
	mu      sync.Mutex
	scripts map[domain.MarketID][]resolveStep
	calls   map[domain.MarketID]int
	prices  map[domain.MarketID]domain.Price
	callers []domain.CallerIdentity
}

func newFakeResolver() *fakeResolver {
	return &fakeResolver{
		scripts: make(map[domain.MarketID][]resolveStep),
		calls:   make(map[domain.MarketID]int),
		prices:  make(map[domain.MarketID]domain.Price),
	}
}

func (f *fakeResolver) script(id domain.MarketID, steps ...resolveStep) {
	f.scripts[id] = steps
}

func (f *fakeResolver) ResolveMarket(_ context.Context, caller domain.CallerIdentity, id domain.MarketID, price domain.Price) (domain.Side, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	n := f.calls[id]
	f.calls[id]++
	f.prices[id] = price
	f.callers = append(f.callers, caller)

	steps := f.scripts[id]
	if len(steps) == 0 {
		return domain.SideUp, nil
	}
	if n >= len(steps) {
		n = len(steps) - 1
	}
	return steps[n].side, steps[n].err
}

func (f *fakeResolver) callCount(id domain.MarketID) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[id]
}

// recordingSleeper registra las esperas sin dormir.
type recordingSleeper struct {
	mu    sync.Mutex
	waits []time.Duration
}

func (r *recordingSleeper) sleep(ctx context.Context, d time.Duration) error {
	r.mu.Lock()
	r.waits = append(r.waits, d)
	r.mu.Unlock()
	return ctx.Err()
}

func (r *recordingSleeper) recorded() []time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]time.Duration(nil), r.waits...)
}

type fakeLocker struct {
	held     map[string]bool
	acquired []string
	released []string
	mu       sync.Mutex
}

func (l *fakeLocker) Acquire(_ context.Context, key string, _ time.Duration) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[key] {
		return nil, domain.ErrLockHeld
	}
	l.acquired = append(l.acquired, key)
	return func() {
		l.mu.Lock()
		l.released = append(l.released, key)
		l.mu.Unlock()
	}, nil
}

type fakeRepo struct {
	mu      sync.Mutex
	markets []domain.Market
	calls   int
	err     error
}

func (f *fakeRepo) ListMarkets(context.Context) ([]domain.Market, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.markets, f.err
}

type fakeNotifier struct {
	mu      sync.Mutex
	reports []domain.PassReport
}

func (f *fakeNotifier) Notify(_ context.Context, r domain.PassReport) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reports = append(f.reports, r)
	return nil
}

type fakeStorage struct {
	mu    sync.Mutex
	saved []domain.PassReport
}

func (f *fakeStorage) SavePass(_ context.Context, r domain.PassReport) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saved = append(f.saved, r)
	return nil
}

func (f *fakeStorage) GetHistory(context.Context, time.Time, time.Time) ([]domain.ResolutionRecord, error) {
	return nil, nil
}

func (f *fakeStorage) Close() error { return nil }
