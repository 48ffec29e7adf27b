package server

import (
	"net/http"
	"strings"

	"pushbridge/service/util"
)

type emailRequest struct {
	Email string `json:"email"`
}

type userIDRequest struct {
	UserID string `json:"userId"`
}

type disableDeviceRequest struct {
	AllUsers bool `json:"allUsers"`
}

func (s *Server) handleGetEmail(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.bridgeContext(r)
	defer cancel()

	email, err := s.sdk.GetEmail(ctx)
	if err != nil {
		s.bridgeError(w, "get email", err)
		return
	}
	util.WriteJSON(w, http.StatusOK, emailRequest{Email: email})
}

func (s *Server) handleSetEmail(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" {
		util.JSONError(w, "email is required", http.StatusBadRequest)
		return
	}

	ctx, cancel := s.bridgeContext(r)
	defer cancel()

	if err := s.sdk.SetEmail(ctx, req.Email); err != nil {
		s.bridgeError(w, "set email", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGetUserID(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.bridgeContext(r)
	defer cancel()

	userID, err := s.sdk.GetUserID(ctx)
	if err != nil {
		s.bridgeError(w, "get user id", err)
		return
	}
	util.WriteJSON(w, http.StatusOK, userIDRequest{UserID: userID})
}

func (s *Server) handleSetUserID(w http.ResponseWriter, r *http.Request) {
	var req userIDRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.UserID = strings.TrimSpace(req.UserID)
	if req.UserID == "" {
		util.JSONError(w, "userId is required", http.StatusBadRequest)
		return
	}

	ctx, cancel := s.bridgeContext(r)
	defer cancel()

	if err := s.sdk.SetUserID(ctx, req.UserID); err != nil {
		s.bridgeError(w, "set user id", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDisableDevice(w http.ResponseWriter, r *http.Request) {
	var req disableDeviceRequest
	if r.ContentLength != 0 && !decodeJSON(w, r, &req) {
		return
	}

	ctx, cancel := s.bridgeContext(r)
	defer cancel()

	var err error
	if req.AllUsers {
		err = s.sdk.DisableDeviceForAllUsers(ctx)
	} else {
		err = s.sdk.DisableDeviceForCurrentUser(ctx)
	}
	if err != nil {
		s.bridgeError(w, "disable device", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
