package notify

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/marketkeeper/internal/domain"
)

type subsStub struct {
	subs []domain.Subscriber
}

func (s *subsStub) AddSubscriber(_ context.Context, sub domain.Subscriber) error {
	s.subs = append(s.subs, sub)
	return nil
}

func (s *subsStub) RemoveSubscriber(_ context.Context, chatID int64) error {
	var out []domain.Subscriber
	for _, sub := range s.subs {
		if sub.ChatID != chatID {
			out = append(out, sub)
		}
	}
	s.subs = out
	return nil
}

func (s *subsStub) ListSubscribers(context.Context) ([]domain.Subscriber, error) {
	return s.subs, nil
}

func TestHandleCommand_SubscribeLifecycle(t *testing.T) {
	subs := &subsStub{}
	tg := &Telegram{subs: subs}
	ctx := context.Background()

	reply := tg.handleCommand(ctx, 77, "alice", "start")
	assert.Contains(t, reply, "Subscribed")
	require.Len(t, subs.subs, 1)
	assert.Equal(t, int64(77), subs.subs[0].ChatID)
	assert.Equal(t, "alice", subs.subs[0].UserID)
	assert.True(t, subs.subs[0].Betting)

	assert.Contains(t, tg.handleCommand(ctx, 77, "alice", "status"), "<b>subscribed</b>")

	reply = tg.handleCommand(ctx, 77, "alice", "stop")
	assert.Contains(t, reply, "Unsubscribed")
	assert.Empty(t, subs.subs)

	assert.Contains(t, tg.handleCommand(ctx, 77, "alice", "status"), "not subscribed")
}

func TestHandleCommand_UnknownAndDisabled(t *testing.T) {
	ctx := context.Background()

	assert.Empty(t, (&Telegram{subs: &subsStub{}}).handleCommand(ctx, 1, "", "trade"))
	assert.Contains(t, (&Telegram{}).handleCommand(ctx, 1, "", "start"), "disabled")
	assert.Contains(t, (&Telegram{}).handleCommand(ctx, 1, "", "help"), "/start")
}
