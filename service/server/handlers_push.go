package server

import (
	"net/http"

	"pushbridge/service/iterable"
	"pushbridge/service/util"
)

type pushPayloadResponse struct {
	Payload map[string]any `json:"payload"`
}

type trackPushOpenPayloadRequest struct {
	Payload    map[string]any `json:"payload"`
	DataFields map[string]any `json:"dataFields,omitempty"`
}

type trackPushOpenCampaignRequest struct {
	CampaignID        *int64         `json:"campaignId"`
	TemplateID        *int64         `json:"templateId"`
	MessageID         *string        `json:"messageId"`
	AppAlreadyRunning bool           `json:"appAlreadyRunning"`
	DataFields        map[string]any `json:"dataFields,omitempty"`
}

type trackPurchaseRequest struct {
	Total      *float64                `json:"total"`
	Items      []iterable.CommerceItem `json:"items"`
	DataFields map[string]any          `json:"dataFields,omitempty"`
}

func (s *Server) handleGetLastPushPayload(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.bridgeContext(r)
	defer cancel()

	payload, err := s.sdk.GetLastPushPayload(ctx)
	if err != nil {
		s.bridgeError(w, "get last push payload", err)
		return
	}
	util.WriteJSON(w, http.StatusOK, pushPayloadResponse{Payload: payload})
}

func (s *Server) handleGetAttribution(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.bridgeContext(r)
	defer cancel()

	info, err := s.sdk.GetAttributionInfo(ctx)
	if err != nil {
		s.bridgeError(w, "get attribution info", err)
		return
	}
	if info == nil {
		util.JSONError(w, "No attribution info", http.StatusNotFound)
		return
	}
	util.WriteJSON(w, http.StatusOK, info)
}

func (s *Server) handleSetAttribution(w http.ResponseWriter, r *http.Request) {
	var info iterable.AttributionInfo
	if !decodeJSON(w, r, &info) {
		return
	}

	ctx, cancel := s.bridgeContext(r)
	defer cancel()

	if err := s.sdk.SetAttributionInfo(ctx, &info); err != nil {
		s.bridgeError(w, "set attribution info", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleClearAttribution(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.bridgeContext(r)
	defer cancel()

	if err := s.sdk.SetAttributionInfo(ctx, nil); err != nil {
		s.bridgeError(w, "clear attribution info", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleTrackPushOpenPayload(w http.ResponseWriter, r *http.Request) {
	var req trackPushOpenPayloadRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Payload == nil {
		util.JSONError(w, "payload is required", http.StatusBadRequest)
		return
	}

	ctx, cancel := s.bridgeContext(r)
	defer cancel()

	if err := s.sdk.TrackPushOpenWithPayload(ctx, req.Payload, req.DataFields); err != nil {
		s.bridgeError(w, "track push open", err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleTrackPushOpenCampaign(w http.ResponseWriter, r *http.Request) {
	var req trackPushOpenCampaignRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.CampaignID == nil || req.TemplateID == nil {
		util.JSONError(w, "campaignId and templateId are required", http.StatusBadRequest)
		return
	}

	ctx, cancel := s.bridgeContext(r)
	defer cancel()

	err := s.sdk.TrackPushOpenWithCampaignID(ctx, *req.CampaignID, *req.TemplateID, req.MessageID, req.AppAlreadyRunning, req.DataFields)
	if err != nil {
		s.bridgeError(w, "track push open", err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleTrackPurchase(w http.ResponseWriter, r *http.Request) {
	var req trackPurchaseRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Total == nil {
		util.JSONError(w, "total is required", http.StatusBadRequest)
		return
	}
	if req.Items == nil {
		req.Items = []iterable.CommerceItem{}
	}

	ctx, cancel := s.bridgeContext(r)
	defer cancel()

	if err := s.sdk.TrackPurchase(ctx, *req.Total, req.Items, req.DataFields); err != nil {
		s.bridgeError(w, "track purchase", err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}
