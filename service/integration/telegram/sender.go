package telegram

import (
	"context"
	"fmt"
	"html"
	"log/slog"
	"strconv"
	"strings"

	"pushbridge/service/delivery"
	"pushbridge/service/subscription"
)

type Messenger interface {
	SendMessage(ctx context.Context, chatID int64, text string) error
}

type Sender struct {
	messenger Messenger
	logger    *slog.Logger
}

func NewSender(messenger Messenger, logger *slog.Logger) *Sender {
	return &Sender{
		messenger: messenger,
		logger:    logger,
	}
}

func (s *Sender) Send(ctx context.Context, sub *subscription.Subscription, notif delivery.Notification) error {
	if s.messenger == nil {
		return delivery.Permanentf("telegram integration not enabled")
	}

	if sub.Telegram == nil || sub.Telegram.ChatID == "" {
		return delivery.Permanentf("no telegram chat configured for subscription")
	}

	chatID, err := strconv.ParseInt(sub.Telegram.ChatID, 10, 64)
	if err != nil {
		return delivery.Permanentf("invalid chat ID: %w", err)
	}

	if err := s.messenger.SendMessage(ctx, chatID, formatMessage(sub.Topic, notif)); err != nil {
		s.logger.Error("Failed to send telegram message", "chatID", chatID, "error", err)
		return err
	}

	return nil
}

func formatMessage(topic string, notif delivery.Notification) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<b>%s</b>\n\n", html.EscapeString(topic))
	if notif.Title != "" {
		fmt.Fprintf(&b, "<b>%s</b>\n", html.EscapeString(notif.Title))
	}
	b.WriteString(html.EscapeString(notif.Message))
	return b.String()
}
