package server

import (
	"net/http"
	"strconv"
	"strings"

	"pushbridge/service/integration/webpush"
	"pushbridge/service/subscription"
	"pushbridge/service/util"

	"github.com/go-chi/chi/v5"
)

type telegramSubscriptionRequest struct {
	Topic  string `json:"topic"`
	ChatID string `json:"chatId"`
}

type subscriptionsResponse struct {
	Subscriptions []subscription.Subscription `json:"subscriptions"`
}

type createdResponse struct {
	ID string `json:"id"`
}

func (s *Server) enabledChannels() []string {
	channels := make([]string, 0, 2)
	for _, c := range []subscription.Channel{subscription.ChannelWebPush, subscription.ChannelTelegram} {
		if s.publisher != nil && s.publisher.HasChannel(c) {
			channels = append(channels, c.String())
		}
	}
	return channels
}

func (s *Server) handleListSubscriptions(w http.ResponseWriter, r *http.Request) {
	var (
		subs []subscription.Subscription
		err  error
	)
	if topic := r.URL.Query().Get("topic"); topic != "" {
		subs, err = s.subscriptions.GetSubscriptions(r.Context(), topic)
	} else {
		subs, err = s.subscriptions.ListAll(r.Context())
	}
	if err != nil {
		util.LogAndError(w, s.logger, "Failed to list subscriptions", http.StatusInternalServerError, err)
		return
	}
	util.WriteJSON(w, http.StatusOK, subscriptionsResponse{Subscriptions: subs})
}

func (s *Server) handleCreateWebPushSubscription(w http.ResponseWriter, r *http.Request) {
	var req webpush.Request
	if !decodeJSON(w, r, &req) {
		return
	}

	sub, err := webpush.NewSubscription(req)
	if err != nil {
		util.JSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.createSubscription(w, r, *sub)
}

func (s *Server) handleCreateTelegramSubscription(w http.ResponseWriter, r *http.Request) {
	if s.publisher == nil || !s.publisher.HasChannel(subscription.ChannelTelegram) {
		util.JSONError(w, "Telegram not configured", http.StatusBadRequest)
		return
	}

	var req telegramSubscriptionRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	topic := strings.TrimSpace(req.Topic)
	chatID := strings.TrimSpace(req.ChatID)
	if topic == "" || chatID == "" {
		util.JSONError(w, "topic and chatId are required", http.StatusBadRequest)
		return
	}
	if _, err := strconv.ParseInt(chatID, 10, 64); err != nil {
		util.JSONError(w, "chatId must be numeric", http.StatusBadRequest)
		return
	}

	s.createSubscription(w, r, subscription.Subscription{
		Topic:    topic,
		Channel:  subscription.ChannelTelegram,
		Telegram: &subscription.TelegramSubscription{ChatID: chatID},
	})
}

func (s *Server) createSubscription(w http.ResponseWriter, r *http.Request, sub subscription.Subscription) {
	id, err := s.subscriptions.AddSubscription(r.Context(), sub)
	if err != nil {
		util.LogAndError(w, s.logger, "Failed to create subscription", http.StatusInternalServerError, err)
		return
	}

	s.logger.Info("Created subscription", "id", id, "topic", sub.Topic, "channel", sub.Channel)
	util.WriteJSON(w, http.StatusCreated, createdResponse{ID: id})
}

func (s *Server) handleDeleteSubscription(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	deleted, err := s.subscriptions.DeleteSubscription(r.Context(), id)
	if err != nil {
		util.LogAndError(w, s.logger, "Failed to delete subscription", http.StatusInternalServerError, err)
		return
	}
	if !deleted {
		util.JSONError(w, "Subscription not found", http.StatusNotFound)
		return
	}

	s.logger.Info("Deleted subscription", "id", id)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGetSubscription(w http.ResponseWriter, r *http.Request) {
	sub, err := s.subscriptions.GetSubscription(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		util.LogAndError(w, s.logger, "Failed to get subscription", http.StatusInternalServerError, err)
		return
	}
	if sub == nil {
		util.JSONError(w, "Subscription not found", http.StatusNotFound)
		return
	}
	util.WriteJSON(w, http.StatusOK, sub)
}

// handleDeleteChannelSubscriptions removes every subscription of the channel
// named by the required channel query parameter.
func (s *Server) handleDeleteChannelSubscriptions(w http.ResponseWriter, r *http.Request) {
	channel, err := subscription.ParseChannel(r.URL.Query().Get("channel"))
	if err != nil {
		util.JSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := s.subscriptions.DeleteSubscriptionsByChannel(r.Context(), channel); err != nil {
		util.LogAndError(w, s.logger, "Failed to delete subscriptions", http.StatusInternalServerError, err)
		return
	}

	s.logger.Info("Deleted subscriptions", "channel", channel)
	w.WriteHeader(http.StatusNoContent)
}
