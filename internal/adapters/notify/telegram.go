package notify

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"net/http"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/alejandrodnm/marketkeeper/internal/domain"
	"github.com/alejandrodnm/marketkeeper/internal/ports"
)

// TelegramOptions configura el bot. Endpoint y HTTPClient son opcionales.
type TelegramOptions struct {
	Token      string
	ChatIDs    []int64 // siempre reciben las alertas
	Endpoint   string  // formato tgbotapi.APIEndpoint
	HTTPClient *http.Client
}

// Telegram envía una alerta por mercado resuelto a los chats configurados y a
// los suscriptores con alertas de apuestas activas. Implementa ports.Notifier.
type Telegram struct {
	api     *tgbotapi.BotAPI
	chatIDs []int64
	subs    ports.SubscriberStorage
}

// NewTelegram conecta con la API de Telegram (getMe). subs puede ser nil.
func NewTelegram(opts TelegramOptions, subs ports.SubscriberStorage) (*Telegram, error) {
	if opts.Token == "" {
		return nil, errors.New("notify.NewTelegram: empty bot token")
	}
	if opts.Endpoint == "" {
		opts.Endpoint = tgbotapi.APIEndpoint
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 15 * time.Second}
	}

	api, err := tgbotapi.NewBotAPIWithClient(opts.Token, opts.Endpoint, opts.HTTPClient)
	if err != nil {
		return nil, fmt.Errorf("notify.NewTelegram: %w", err)
	}

	slog.Info("telegram bot connected", "username", api.Self.UserName)
	return &Telegram{api: api, chatIDs: opts.ChatIDs, subs: subs}, nil
}

// Notify envía "Market Resolved!" por cada mercado resuelto por este keeper.
// Un chat que falla no impide el envío al resto.
func (t *Telegram) Notify(ctx context.Context, report domain.PassReport) error {
	notes := report.ResolvedNotifications()
	if len(notes) == 0 {
		return nil
	}

	recipients := t.recipients(ctx)
	if len(recipients) == 0 {
		slog.Debug("telegram: no recipients for resolved markets", "resolved", len(notes))
		return nil
	}

	var errs []error
	sent := 0
	for _, n := range notes {
		text := FormatResolved(n)
		for _, chatID := range recipients {
			if err := t.send(chatID, text); err != nil {
				errs = append(errs, fmt.Errorf("chat %d market %s: %w", chatID, n.MarketID, err))
				continue
			}
			sent++
		}
	}

	slog.Debug("telegram alerts sent", "sent", sent, "failed", len(errs))
	if len(errs) > 0 {
		return fmt.Errorf("notify.Telegram: %w", errors.Join(errs...))
	}
	return nil
}

// recipients une los chats configurados con los suscriptores, sin duplicados.
func (t *Telegram) recipients(ctx context.Context) []int64 {
	seen := make(map[int64]bool, len(t.chatIDs))
	var out []int64
	for _, id := range t.chatIDs {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}

	if t.subs == nil {
		return out
	}
	subs, err := t.subs.ListSubscribers(ctx)
	if err != nil {
		slog.Warn("telegram: list subscribers failed", "err", err)
		return out
	}
	for _, s := range subs {
		if s.Betting && !seen[s.ChatID] {
			seen[s.ChatID] = true
			out = append(out, s.ChatID)
		}
	}
	return out
}

func (t *Telegram) send(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true
	_, err := t.api.Send(msg)
	return err
}

// CheckStatus confirma que el token sigue siendo válido y devuelve el username del bot.
func (t *Telegram) CheckStatus() (string, error) {
	me, err := t.api.GetMe()
	if err != nil {
		return "", fmt.Errorf("notify.CheckStatus: %w", err)
	}
	return me.UserName, nil
}

// Listen atiende /start, /stop, /status y /help hasta que el contexto se cancele.
func (t *Telegram) Listen(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := t.api.GetUpdatesChan(u)
	defer t.api.StopReceivingUpdates()

	slog.Info("telegram listener started")
	for {
		select {
		case <-ctx.Done():
			slog.Info("telegram listener stopped")
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			if update.Message == nil || !update.Message.IsCommand() {
				continue
			}
			user := ""
			if update.Message.From != nil {
				user = update.Message.From.UserName
			}
			reply := t.handleCommand(ctx, update.Message.Chat.ID, user, update.Message.Command())
			if reply == "" {
				continue
			}
			if err := t.send(update.Message.Chat.ID, reply); err != nil {
				slog.Warn("telegram reply failed", "chat_id", update.Message.Chat.ID, "err", err)
			}
		}
	}
}

// handleCommand aplica el comando y devuelve la respuesta HTML.
func (t *Telegram) handleCommand(ctx context.Context, chatID int64, user, cmd string) string {
	slog.Debug("telegram command", "chat_id", chatID, "user", user, "cmd", cmd)

	switch cmd {
	case "start":
		if t.subs == nil {
			return "Subscriptions are disabled on this keeper."
		}
		err := t.subs.AddSubscriber(ctx, domain.Subscriber{
			ChatID:       chatID,
			UserID:       user,
			Betting:      true,
			SubscribedAt: time.Now().UTC(),
		})
		if err != nil {
			slog.Warn("telegram: subscribe failed", "chat_id", chatID, "err", err)
			return "Could not subscribe right now, try again later."
		}
		return "✅ Subscribed. You will receive a message every time a betting market is resolved."
	case "stop":
		if t.subs == nil {
			return "Subscriptions are disabled on this keeper."
		}
		if err := t.subs.RemoveSubscriber(ctx, chatID); err != nil {
			slog.Warn("telegram: unsubscribe failed", "chat_id", chatID, "err", err)
			return "Could not unsubscribe right now, try again later."
		}
		return "Unsubscribed. Send /start to subscribe again."
	case "status":
		return t.statusText(ctx, chatID)
	case "help":
		return "<b>Market keeper</b>\n/start subscribe to resolution alerts\n/stop unsubscribe\n/status subscription status"
	}
	return ""
}

func (t *Telegram) statusText(ctx context.Context, chatID int64) string {
	if t.subs == nil {
		return "🟢 Keeper running. Subscriptions disabled."
	}
	subs, err := t.subs.ListSubscribers(ctx)
	if err != nil {
		return "🟢 Keeper running. Subscriber list unavailable."
	}
	subscribed := false
	for _, s := range subs {
		if s.ChatID == chatID && s.Betting {
			subscribed = true
			break
		}
	}
	state := "not subscribed"
	if subscribed {
		state = "subscribed"
	}
	return fmt.Sprintf("🟢 Keeper running.\nThis chat: <b>%s</b>\nSubscribers: %d", state, len(subs))
}

// FormatResolved construye el mensaje HTML de mercado resuelto.
func FormatResolved(n domain.ResolvedNotification) string {
	var sb strings.Builder
	sb.WriteString("🎯 <b>Market Resolved!</b>\n\n")
	fmt.Fprintf(&sb, "<b>Market ID:</b> #%s\n", n.MarketID)
	fmt.Fprintf(&sb, "<b>Title:</b> %s\n", html.EscapeString(domain.TruncateTitle(n.Title, n.MarketID, 80)))
	fmt.Fprintf(&sb, "<b>Winner:</b> %s\n", n.WinningSide)
	fmt.Fprintf(&sb, "<b>Final Price:</b> %s\n", n.FinalPrice)
	fmt.Fprintf(&sb, "<b>Winners:</b> %d users\n", n.WinnerCount)
	fmt.Fprintf(&sb, "<b>Resolved:</b> %s\n\n", n.ResolvedAt.UTC().Format("2006-01-02 15:04:05 UTC"))
	sb.WriteString("Payouts are being distributed automatically.")
	return sb.String()
}
