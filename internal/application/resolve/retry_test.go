package resolve

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/alejandrodnm/marketkeeper/internal/domain"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorClass
	}{
		{"nil", nil, ClassOther},
		{"structured code", &domain.ResolverError{Code: domain.CodeTryAgainLater}, ClassTransient},
		{"wrapped structured code", fmt.Errorf("gateway: %w", &domain.ResolverError{Code: domain.CodeTryAgainLater}), ClassTransient},
		{"message marker", errors.New("Transaction failed with send status: TRY_AGAIN_LATER"), ClassTransient},
		{"lowercase phrase", errors.New("node busy, try again later"), ClassTransient},
		{"other code carrying marker", &domain.ResolverError{Code: "SEND_FAILED", Message: "status TRY_AGAIN_LATER"}, ClassTransient},
		{"not authorized", &domain.ResolverError{Code: domain.CodeNotAuthorized}, ClassOther},
		{"simulation failure", errors.New("HostError: Error(Contract, #7)"), ClassOther},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}

func TestRetryPolicy_Decide(t *testing.T) {
	p := DefaultRetryPolicy()

	assert.Equal(t, Decision{ShouldRetry: true, Wait: 2 * time.Second}, p.Decide(1, ClassTransient))
	assert.Equal(t, Decision{ShouldRetry: true, Wait: 4 * time.Second}, p.Decide(2, ClassTransient))
	assert.False(t, p.Decide(3, ClassTransient).ShouldRetry, "el tercer intento es el último")
	assert.False(t, p.Decide(1, ClassOther).ShouldRetry, "los fallos permanentes no se reintentan")
}

func TestRetryPolicy_Backoff(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 5, BaseWait: 100 * time.Millisecond}

	assert.Equal(t, 200*time.Millisecond, p.Backoff(1))
	assert.Equal(t, 400*time.Millisecond, p.Backoff(2))
	assert.Equal(t, 800*time.Millisecond, p.Backoff(3))
	assert.Equal(t, 200*time.Millisecond, p.Backoff(0))

	assert.Equal(t, 8*time.Second, RetryPolicy{}.Backoff(3))
}

func TestRetryPolicy_BackoffIsCapped(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 100, BaseWait: time.Second}
	for attempt := 1; attempt <= 100; attempt++ {
		w := p.Backoff(attempt)
		assert.Positive(t, w, "attempt %d", attempt)
		assert.LessOrEqual(t, w, MaxBackoff, "attempt %d", attempt)
	}
	assert.Equal(t, 512*time.Second, p.Backoff(9))
	assert.Equal(t, MaxBackoff, p.Backoff(10))
	assert.Equal(t, MaxBackoff, p.Backoff(34))

	huge := RetryPolicy{BaseWait: time.Duration(1) << 62}
	assert.Equal(t, MaxBackoff, huge.Backoff(1))
}

func TestIsAlreadyResolved(t *testing.T) {
	assert.True(t, isAlreadyResolved(&domain.ResolverError{Code: domain.CodeAlreadyResolved}))
	assert.True(t, isAlreadyResolved(errors.New("HostError: Error(Contract, #4)")))
	assert.True(t, isAlreadyResolved(errors.New("MarketAlreadyResolved")))
	assert.False(t, isAlreadyResolved(errors.New("Error(Contract, #5)")))
}

func TestExpiryScanner(t *testing.T) {
	now := time.Unix(1000, 0)
	markets := []domain.Market{
		{ID: 1, EndTime: now.Add(-time.Hour)},
		{ID: 2, EndTime: now.Add(time.Hour)},
		{ID: 3, EndTime: now},
		{ID: 4, EndTime: now.Add(-time.Hour), IsResolved: true},
		{ID: 5, EndTime: now.Add(-time.Second)},
	}

	got := ExpiryScanner{}.Expired(markets, now)

	var ids []domain.MarketID
	for _, m := range got {
		assert.False(t, m.IsResolved)
		assert.False(t, m.EndTime.After(now))
		ids = append(ids, m.ID)
	}
	assert.Equal(t, []domain.MarketID{1, 3, 5}, ids)
	assert.Empty(t, ExpiryScanner{}.Expired(nil, now))
}
