package server

import (
	"net/http"
	"strconv"

	"pushbridge/service/activity"
	"pushbridge/service/iterable"
	"pushbridge/service/util"

	"github.com/go-chi/chi/v5"
)

type inAppResponse struct {
	Messages []iterable.InAppMessage `json:"messages"`
}

type activityResponse struct {
	Activity []activity.Record `json:"activity"`
}

// In-app retrieval never fails; native errors produce an empty list.
func (s *Server) handleGetInAppMessages(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.bridgeContext(r)
	defer cancel()

	messages := s.sdk.GetInAppMessages(ctx)
	if messages == nil {
		messages = []iterable.InAppMessage{}
	}
	util.WriteJSON(w, http.StatusOK, inAppResponse{Messages: messages})
}

func (s *Server) handleListActivity(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			util.JSONError(w, "limit must be a non-negative integer", http.StatusBadRequest)
			return
		}
		limit = n
	}

	records, err := s.activity.List(r.Context(), limit)
	if err != nil {
		util.LogAndError(w, s.logger, "Failed to list activity", http.StatusInternalServerError, err)
		return
	}
	util.WriteJSON(w, http.StatusOK, activityResponse{Activity: records})
}

func (s *Server) handleGetActivity(w http.ResponseWriter, r *http.Request) {
	rec, err := s.activity.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		util.LogAndError(w, s.logger, "Failed to get activity", http.StatusInternalServerError, err)
		return
	}
	if rec == nil {
		util.JSONError(w, "Activity not found", http.StatusNotFound)
		return
	}
	util.WriteJSON(w, http.StatusOK, rec)
}
