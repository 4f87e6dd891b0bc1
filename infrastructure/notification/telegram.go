package notification

import (
	"context"
	"fmt"

	tg "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"memorymap-backend/application/ports"
)

// TelegramSender is the subset of *tg.BotAPI used by the sink.
type TelegramSender interface {
	Send(c tg.Chattable) (tg.Message, error)
}

// NewTelegramBot authorises token against the Bot API.
func NewTelegramBot(token string) (*tg.BotAPI, error) {
	bot, err := tg.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to authorise telegram bot: %w", err)
	}
	bot.Debug = false
	return bot, nil
}

// TelegramSink posts reminders to a single chat.
type TelegramSink struct {
	bot    TelegramSender
	chatID int64
}

func NewTelegramSink(bot TelegramSender, chatID int64) *TelegramSink {
	return &TelegramSink{bot: bot, chatID: chatID}
}

func (s *TelegramSink) Notify(ctx context.Context, n ports.Notification) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := tg.NewMessage(s.chatID, n.Title+"\n"+n.Body)
	if _, err := s.bot.Send(msg); err != nil {
		return fmt.Errorf("failed to send telegram message: %w", err)
	}
	return nil
}
