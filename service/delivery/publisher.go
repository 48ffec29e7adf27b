package delivery

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"pushbridge/service/subscription"
	"pushbridge/service/util"
)

type NotificationSender interface {
	Send(ctx context.Context, sub *subscription.Subscription, notif Notification) error
}

const (
	defaultMaxRetries = 5
	defaultBaseDelay  = 500 * time.Millisecond
)

type Publisher struct {
	Store  *subscription.Store
	logger *slog.Logger

	mu      sync.RWMutex
	senders map[subscription.Channel]NotificationSender

	MaxRetries int
	BaseDelay  time.Duration
}

func NewPublisher(store *subscription.Store, logger *slog.Logger) *Publisher {
	return &Publisher{
		Store:      store,
		logger:     logger,
		senders:    make(map[subscription.Channel]NotificationSender),
		MaxRetries: defaultMaxRetries,
		BaseDelay:  defaultBaseDelay,
	}
}

func (p *Publisher) RegisterSender(channel subscription.Channel, sender NotificationSender) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.senders[channel] = sender
}

func (p *Publisher) DeregisterSender(channel subscription.Channel) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.senders, channel)
}

func (p *Publisher) HasChannel(channel subscription.Channel) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.senders[channel]
	return ok
}

func (p *Publisher) sender(channel subscription.Channel) (NotificationSender, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	s, ok := p.senders[channel]
	return s, ok
}

// Publish sends notif to every subscription of topic. It fails only when
// no subscription received the notification.
func (p *Publisher) Publish(ctx context.Context, topic string, notif Notification) error {
	subs, err := p.Store.GetSubscriptions(ctx, topic)
	if err != nil {
		return util.LogError(p.logger, "Failed to get subscriptions", err, "topic", topic)
	}

	if len(subs) == 0 {
		p.logger.Warn("No subscriptions found for topic, dropping notification", "topic", topic)
		return nil
	}

	var lastErr error
	successCount := 0

	for i := range subs {
		sub := &subs[i]
		sender, ok := p.sender(sub.Channel)
		if !ok {
			p.logger.Debug("Skipping subscription for disabled channel", "channel", sub.Channel, "subscriptionID", sub.ID)
			continue
		}

		if err := p.sendWithRetry(ctx, sender, sub, notif, topic); err != nil {
			lastErr = err
		} else {
			successCount++
		}
	}

	if successCount == 0 && lastErr != nil {
		return lastErr
	}
	return nil
}

func (p *Publisher) sendWithRetry(ctx context.Context, sender NotificationSender, sub *subscription.Subscription, notif Notification, topic string) error {
	maxRetries := max(p.MaxRetries, 1)

	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		err := sender.Send(ctx, sub, notif)
		if err == nil {
			if attempt > 0 {
				p.logger.Info("Notification sent after retry", "topic", topic, "subscriptionID", sub.ID, "attempt", attempt+1)
			}
			return nil
		}

		lastErr = err

		if IsPermanent(err) {
			p.logger.Error("Permanent error, not retrying", "topic", topic, "subscriptionID", sub.ID, "error", err)
			return err
		}

		if attempt < maxRetries-1 {
			delay := p.BaseDelay * time.Duration(1<<uint(attempt))
			p.logger.Warn("Failed to send notification, retrying", "topic", topic, "subscriptionID", sub.ID, "attempt", attempt+1, "error", err, "retryIn", delay)

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	p.logger.Error("Failed to send notification after retries", "topic", topic, "subscriptionID", sub.ID, "attempts", maxRetries, "error", lastErr)
	return lastErr
}
