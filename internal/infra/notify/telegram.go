package notify

import (
	"context"
	"log/slog"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Telegram pushes operational notifications to the admin chat. Sending is
// best effort: failures are logged and swallowed, never surfaced to the
// operation that triggered them.
type Telegram struct {
	api    *tgbotapi.BotAPI
	chatID int64
	log    *slog.Logger
}

// NewTelegram returns nil when the token is empty; a nil *Telegram is a
// valid no-op notifier.
func NewTelegram(token string, chatID int64, log *slog.Logger) *Telegram {
	if token == "" || chatID == 0 {
		return nil
	}
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		log.Error("telegram notifier disabled", "err", err)
		return nil
	}
	return &Telegram{api: api, chatID: chatID, log: log}
}

func (t *Telegram) Notify(_ context.Context, text string) {
	if t == nil {
		return
	}
	if _, err := t.api.Send(tgbotapi.NewMessage(t.chatID, text)); err != nil {
		t.log.Error("telegram notify failed", "err", err)
	}
}
