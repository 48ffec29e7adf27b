// Package actions implements the gateway's URL and custom action delegates.
// Each callback is recorded in the activity log and fanned out to the
// subscribers of its topic.
package actions

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"pushbridge/service/activity"
	"pushbridge/service/delivery"
	"pushbridge/service/iterable"
)

// TopicURL receives handled URLs. Custom actions publish to their type.
const TopicURL = "url"

const (
	recordTimeout  = 5 * time.Second
	publishTimeout = 2 * time.Minute
)

type Recorder interface {
	Add(ctx context.Context, rec activity.Record) (activity.Record, error)
}

type Publisher interface {
	Publish(ctx context.Context, topic string, notif delivery.Notification) error
}

type Handler struct {
	prefixes  []string
	recorder  Recorder
	publisher Publisher
	logger    *slog.Logger

	wg sync.WaitGroup
}

func NewHandler(prefixes []string, recorder Recorder, publisher Publisher, logger *slog.Logger) *Handler {
	return &Handler{
		prefixes:  prefixes,
		recorder:  recorder,
		publisher: publisher,
		logger:    logger,
	}
}

// HandleURL claims url when it starts with one of the configured prefixes.
// Unclaimed URLs are left to native to open.
func (h *Handler) HandleURL(url string, actx iterable.ActionContext) bool {
	handled := h.matches(url)

	rec := activity.Record{
		Kind:       activity.KindURL,
		URL:        url,
		ActionType: actx.Action.Type,
		Source:     actx.Source.String(),
		Handled:    handled,
	}
	var notif *delivery.Notification
	if handled {
		notif = &delivery.Notification{
			Title:   "URL opened from " + actx.Source.String(),
			Message: url,
			Tag:     TopicURL,
			URL:     url,
		}
	}
	h.dispatch(rec, TopicURL, notif)

	h.logger.Info("URL callback", "url", url, "source", actx.Source, "handled", handled)
	return handled
}

func (h *Handler) HandleCustomAction(action iterable.Action, actx iterable.ActionContext) bool {
	rec := activity.Record{
		Kind:       activity.KindCustomAction,
		ActionType: action.Type,
		Source:     actx.Source.String(),
		Handled:    true,
	}
	if action.Data != nil {
		rec.ActionData = *action.Data
	}
	if action.UserInput != nil {
		rec.UserInput = *action.UserInput
	}
	var notif *delivery.Notification
	if action.Type != "" {
		message := rec.ActionData
		if message == "" {
			message = action.Type
		}
		notif = &delivery.Notification{
			Title:   "Custom action " + action.Type,
			Message: message,
			Tag:     action.Type,
		}
	}
	h.dispatch(rec, action.Type, notif)

	h.logger.Info("Custom action callback", "type", action.Type, "source", actx.Source)
	return true
}

// Wait blocks until every record and publish started by a callback has
// finished.
func (h *Handler) Wait() {
	h.wg.Wait()
}

func (h *Handler) matches(url string) bool {
	for _, prefix := range h.prefixes {
		if prefix != "" && strings.HasPrefix(url, prefix) {
			return true
		}
	}
	return false
}

// Delegates run on the bridge read loop, so the activity write and delivery
// happen elsewhere. The record is written before the notification goes out.
func (h *Handler) dispatch(rec activity.Record, topic string, notif *delivery.Notification) {
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		h.record(rec)
		if notif != nil {
			h.publish(topic, *notif)
		}
	}()
}

func (h *Handler) record(rec activity.Record) {
	if h.recorder == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()

	if _, err := h.recorder.Add(ctx, rec); err != nil {
		h.logger.Error("Failed to record activity", "kind", rec.Kind, "error", err)
	}
}

func (h *Handler) publish(topic string, notif delivery.Notification) {
	if h.publisher == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()

	if err := h.publisher.Publish(ctx, topic, notif); err != nil {
		h.logger.Error("Failed to publish notification", "topic", topic, "error", err)
	}
}
