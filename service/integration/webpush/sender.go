package webpush

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"pushbridge/service/delivery"
	"pushbridge/service/subscription"

	webpush "github.com/SherClockHolmes/webpush-go"
)

const defaultTTL = 86400

type Sender struct {
	client *http.Client
	logger *slog.Logger
}

// NewSender uses a default client with a 30s timeout when client is nil.
func NewSender(client *http.Client, logger *slog.Logger) *Sender {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Sender{
		client: client,
		logger: logger,
	}
}

func (s *Sender) Send(ctx context.Context, sub *subscription.Subscription, notif delivery.Notification) error {
	if sub.WebPush == nil {
		return delivery.Permanentf("no push endpoint configured for subscription %s", sub.ID)
	}

	payload, err := json.Marshal(notif)
	if err != nil {
		return delivery.Permanentf("failed to marshal notification: %w", err)
	}

	if sub.WebPush.HasEncryption() {
		return s.sendEncrypted(ctx, sub, payload)
	}
	if sub.WebPush.P256dh != "" {
		return delivery.Permanentf("VAPID key unavailable for subscription %s, re-register it", sub.ID)
	}
	return s.sendPlain(ctx, sub, payload)
}

func (s *Sender) sendEncrypted(ctx context.Context, sub *subscription.Subscription, payload []byte) error {
	publicKey, err := vapidPublicKey(sub.WebPush.VapidPrivateKey)
	if err != nil {
		return delivery.NewPermanentError(err)
	}

	target := &webpush.Subscription{
		Endpoint: sub.WebPush.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.WebPush.P256dh,
			Auth:   sub.WebPush.Auth,
		},
	}

	resp, err := webpush.SendNotificationWithContext(ctx, payload, target, &webpush.Options{
		HTTPClient:      s.client,
		VAPIDPublicKey:  publicKey,
		VAPIDPrivateKey: sub.WebPush.VapidPrivateKey,
		TTL:             defaultTTL,
	})
	if err != nil {
		return fmt.Errorf("failed to send webpush: %w", err)
	}
	defer resp.Body.Close()

	if err := checkStatus("webpush", resp.StatusCode); err != nil {
		return err
	}

	s.logger.Debug("Sent encrypted webpush notification", "topic", sub.Topic, "url", sub.WebPush.Endpoint)
	return nil
}

func (s *Sender) sendPlain(ctx context.Context, sub *subscription.Subscription, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, sub.WebPush.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return delivery.Permanentf("failed to build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send webhook: %w", err)
	}
	defer resp.Body.Close()

	if err := checkStatus("webhook", resp.StatusCode); err != nil {
		return err
	}

	s.logger.Debug("Sent plain webhook notification", "topic", sub.Topic, "url", sub.WebPush.Endpoint)
	return nil
}

// A push service answering 404 or 410 has dropped the subscription for good.
func checkStatus(kind string, code int) error {
	if code >= 200 && code < 300 {
		return nil
	}
	err := fmt.Errorf("%s returned status %d", kind, code)
	if code == http.StatusNotFound || code == http.StatusGone {
		return delivery.NewPermanentError(err)
	}
	return err
}
