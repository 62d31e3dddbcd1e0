package notify

import (
	"context"
	"errors"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"library/internal/models"
)

// TelegramSender delivers notifications as Telegram messages to members who
// registered a chat ID
type TelegramSender struct {
	api    *tgbotapi.BotAPI
	logger *zap.Logger
}

// NewTelegramSender creates a Telegram sender from a bot token
func NewTelegramSender(token string, logger *zap.Logger) (*TelegramSender, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}
	logger.Info("Telegram sender created", zap.String("bot_username", api.Self.UserName))
	return &TelegramSender{api: api, logger: logger}, nil
}

// Send delivers one message to the recipient's chat. A member without a
// chat ID is a permanent failure for this channel.
func (s *TelegramSender) Send(ctx context.Context, to models.Recipient, subject, body string) error {
	if to.TelegramChatID == 0 {
		return Permanent(errors.New("recipient has no telegram chat id"))
	}

	msg := tgbotapi.NewMessage(to.TelegramChatID, subject+"\n\n"+body)
	if _, err := s.api.Send(msg); err != nil {
		return Retryable(fmt.Errorf("telegram send failed: %w", err))
	}
	return nil
}
