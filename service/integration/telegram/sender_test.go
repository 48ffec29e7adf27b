package telegram

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"pushbridge/service/delivery"
	"pushbridge/service/subscription"
)

type fakeMessenger struct {
	chatID int64
	text   string
	err    error
}

func (f *fakeMessenger) SendMessage(_ context.Context, chatID int64, text string) error {
	f.chatID = chatID
	f.text = text
	return f.err
}

func telegramSub(chatID string) *subscription.Subscription {
	return &subscription.Subscription{
		ID:       "s1",
		Topic:    "url",
		Channel:  subscription.ChannelTelegram,
		Telegram: &subscription.TelegramSubscription{ChatID: chatID},
	}
}

func TestSender_Send(t *testing.T) {
	m := &fakeMessenger{}
	s := NewSender(m, slog.New(slog.DiscardHandler))

	err := s.Send(context.Background(), telegramSub("-1001"), delivery.Notification{Title: "Opened", Message: "https://a.example/?x=1&y=<2>"})
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if m.chatID != -1001 {
		t.Errorf("chatID = %d, want -1001", m.chatID)
	}
	want := "<b>url</b>\n\n<b>Opened</b>\nhttps://a.example/?x=1&amp;y=&lt;2&gt;"
	if m.text != want {
		t.Errorf("text = %q, want %q", m.text, want)
	}
}

func TestSender_PermanentErrors(t *testing.T) {
	tests := []struct {
		name   string
		sender *Sender
		sub    *subscription.Subscription
	}{
		{"disabled", NewSender(nil, slog.New(slog.DiscardHandler)), telegramSub("1")},
		{"no chat", NewSender(&fakeMessenger{}, slog.New(slog.DiscardHandler)), &subscription.Subscription{ID: "s1"}},
		{"bad chat id", NewSender(&fakeMessenger{}, slog.New(slog.DiscardHandler)), telegramSub("abc")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.sender.Send(context.Background(), tt.sub, delivery.Notification{Message: "m"})
			if !delivery.IsPermanent(err) {
				t.Errorf("Send() error = %v, want permanent", err)
			}
		})
	}
}

func TestSender_TransientError(t *testing.T) {
	s := NewSender(&fakeMessenger{err: errors.New("network")}, slog.New(slog.DiscardHandler))
	err := s.Send(context.Background(), telegramSub("1"), delivery.Notification{Message: "m"})
	if err == nil || delivery.IsPermanent(err) {
		t.Errorf("Send() error = %v, want transient", err)
	}
}
