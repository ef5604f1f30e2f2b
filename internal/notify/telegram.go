package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/mroshb/rallypoint/pkg/logger"
)

// sender is the part of tgbotapi.BotAPI the notifier uses.
type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramNotifier posts notifications to one chat.
type TelegramNotifier struct {
	api        sender
	chatID     int64
	maxRetries int
	backoff    time.Duration
}

func NewTelegramNotifier(token string, chatID int64, debug bool) (*TelegramNotifier, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}
	api.Debug = debug
	logger.Info("Authorized on account", "username", api.Self.UserName)

	return newTelegramNotifier(api, chatID), nil
}

func newTelegramNotifier(api sender, chatID int64) *TelegramNotifier {
	return &TelegramNotifier{api: api, chatID: chatID, maxRetries: 3, backoff: time.Second}
}

func (n *TelegramNotifier) Notify(ctx context.Context, text string) error {
	msg := tgbotapi.NewMessage(n.chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true

	var lastErr error
	for i := 0; i < n.maxRetries; i++ {
		_, err := n.api.Send(msg)
		if err == nil {
			return nil
		}
		lastErr = err
		logger.Error("Failed to send notification", "error", err, "chat_id", n.chatID, "attempt", i+1)
		if !retryable(err) {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(i+1) * n.backoff):
		}
	}
	return lastErr
}

func retryable(err error) bool {
	s := err.Error()
	return strings.Contains(s, "connection reset") ||
		strings.Contains(s, "timeout") ||
		strings.Contains(s, "network is unreachable")
}
