// Package notify sends training outcomes to operators over Telegram
package notify

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// maxMessageLength is the Telegram limit for one text message
const maxMessageLength = 4096

// StatusFunc renders the answer of the /status command
type StatusFunc func() string

// Telegram posts notifications to a single chat and answers a few read-only commands
type Telegram struct {
	api    *tgbotapi.BotAPI
	chatID int64
	status StatusFunc
	logger *zap.Logger
}

// NewTelegram creates the bot. It returns nil, nil when token or chat is not configured.
func NewTelegram(token string, chatID int64, status StatusFunc, logger *zap.Logger) (*Telegram, error) {
	if token == "" || chatID == 0 {
		logger.Info("Telegram notifications are disabled (token or chat id is empty)")
		return nil, nil
	}

	botAPI, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create Telegram bot API: %w", err)
	}

	logger.Info("Telegram bot authorized", zap.String("username", botAPI.Self.UserName))

	return &Telegram{
		api:    botAPI,
		chatID: chatID,
		status: status,
		logger: logger,
	}, nil
}

// Notify sends message to the configured chat
func (t *Telegram) Notify(ctx context.Context, message string) error {
	if t == nil {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	msg := tgbotapi.NewMessage(t.chatID, Truncate(message, maxMessageLength))
	if _, err := t.api.Send(msg); err != nil {
		return fmt.Errorf("failed to send telegram message: %w", err)
	}
	return nil
}

// Start listens for commands until ctx is done
func (t *Telegram) Start(ctx context.Context) error {
	if t == nil {
		return nil
	}

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := t.api.GetUpdatesChan(u)

	t.logger.Info("Telegram bot started, waiting for updates...")

	for {
		select {
		case <-ctx.Done():
			t.logger.Info("Telegram bot shutting down...")
			t.api.StopReceivingUpdates()
			return nil
		case update := <-updates:
			if update.Message != nil && update.Message.IsCommand() {
				t.handleCommand(update.Message)
			}
		}
	}
}

func (t *Telegram) handleCommand(message *tgbotapi.Message) {
	t.logger.Info("Received command",
		zap.Int64("chat_id", message.Chat.ID),
		zap.String("command", message.Command()))

	var reply string
	switch message.Command() {
	case "start", "help":
		reply = "Commands:\n/status - model and queue status"
	case "status":
		reply = "status is not available"
		if t.status != nil {
			reply = t.status()
		}
	default:
		reply = "Unknown command. Use /help"
	}

	msg := tgbotapi.NewMessage(message.Chat.ID, Truncate(reply, maxMessageLength))
	if _, err := t.api.Send(msg); err != nil {
		t.logger.Error("Failed to send reply", zap.Int64("chat_id", message.Chat.ID), zap.Error(err))
	}
}

// Truncate shortens s to at most limit runes, marking the cut with an ellipsis
func Truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	if limit <= 1 {
		return string([]rune(s)[:limit])
	}
	return strings.TrimSpace(string([]rune(s)[:limit-1])) + "…"
}
