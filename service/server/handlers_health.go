package server

import (
	"net/http"
	"time"

	"pushbridge/service/util"
)

type healthResponse struct {
	Version  string       `json:"version"`
	Uptime   string       `json:"uptime"`
	Bridge   bridgeHealth `json:"bridge"`
	Channels []string     `json:"channels"`
}

type bridgeHealth struct {
	Connected bool `json:"connected"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Version:  s.version,
		Uptime:   util.FormatUptime(time.Since(s.startTime)),
		Channels: s.enabledChannels(),
	}
	if s.bridge != nil {
		resp.Bridge.Connected = s.bridge.Connected()
	}

	util.WriteJSON(w, http.StatusOK, resp)
}
