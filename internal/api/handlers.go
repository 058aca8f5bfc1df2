package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/voxdial/voxdial-core/internal/call"
	"github.com/voxdial/voxdial-core/internal/config"
	"github.com/voxdial/voxdial-core/internal/telephony"
)

type createCallRequest struct {
	ToNumber string `json:"toNumber"`
	Message  string `json:"message"`
}

type createCallResponse struct {
	Success   bool      `json:"success"`
	CallSID   string    `json:"callSid"`
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	AudioURL  string    `json:"audioUrl,omitempty"`
}

func (s *Server) handleCreateCall(w http.ResponseWriter, r *http.Request) {
	var req createCallRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	// Validate before touching synthesis or the provider: a malformed
	// number must never cost an external call.
	if !config.ValidPhoneNumber(req.ToNumber) {
		writeError(w, http.StatusBadRequest, "toNumber must be E.164, e.g. +15551234567")
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeError(w, http.StatusBadRequest, "message must not be empty")
		return
	}

	result, err := s.controller.StartSession(r.Context(), req.ToNumber, req.Message)
	if err != nil {
		var gwErr *telephony.GatewayError
		if errors.As(err, &gwErr) {
			s.log.Error("call placement rejected by provider", slog.String("error", err.Error()))
			writeError(w, http.StatusBadGateway, "telephony provider rejected the call")
			return
		}
		s.log.Error("call placement failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to start call")
		return
	}

	writeJSON(w, http.StatusCreated, createCallResponse{
		Success:   true,
		CallSID:   result.Session.CallSID,
		Status:    result.Status,
		Timestamp: time.Now().UTC(),
		AudioURL:  result.AudioURL,
	})
}

type fetchCallResponse struct {
	Success           bool   `json:"success"`
	CallSID           string `json:"callSid"`
	To                string `json:"to"`
	From              string `json:"from"`
	Status            string `json:"status"`
	Duration          string `json:"duration,omitempty"`
	StartTime         string `json:"startTime,omitempty"`
	EndTime           string `json:"endTime,omitempty"`
	SessionState      string `json:"sessionState,omitempty"`
	TerminationReason string `json:"terminationReason,omitempty"`
}

func (s *Server) handleFetchCall(w http.ResponseWriter, r *http.Request) {
	sid := r.PathValue("sid")

	fetched, err := s.gateway.FetchCall(r.Context(), sid)
	if err != nil {
		var gwErr *telephony.GatewayError
		if errors.As(err, &gwErr) && gwErr.Status == http.StatusNotFound {
			writeError(w, http.StatusNotFound, "call not found")
			return
		}
		s.log.Error("call lookup failed", slog.String("call_sid", sid), slog.String("error", err.Error()))
		writeError(w, http.StatusBadGateway, "failed to fetch call")
		return
	}

	resp := fetchCallResponse{
		Success:   true,
		CallSID:   fetched.SID,
		To:        fetched.To,
		From:      fetched.From,
		Status:    fetched.Status,
		Duration:  fetched.Duration,
		StartTime: fetched.StartTime,
		EndTime:   fetched.EndTime,
	}
	if session, ok := s.controller.Session(sid); ok {
		resp.SessionState = string(session.State())
		if reason := session.TerminationReason(); reason != call.ReasonNone {
			resp.TerminationReason = string(reason)
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

type callEventsResponse struct {
	Success bool        `json:"success"`
	CallSID string      `json:"callSid"`
	Events  []callEvent `json:"events"`
}

type callEvent struct {
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// handleCallEvents returns the recorded timeline for a call: turns, status
// changes, and termination.
func (s *Server) handleCallEvents(w http.ResponseWriter, r *http.Request) {
	sid := r.PathValue("sid")

	events, err := s.store.ListCallEvents(r.Context(), sid, 200)
	if err != nil {
		s.log.Error("call timeline lookup failed", slog.String("call_sid", sid), slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to read call events")
		return
	}

	resp := callEventsResponse{Success: true, CallSID: sid, Events: []callEvent{}}
	for _, evt := range events {
		resp.Events = append(resp.Events, callEvent{
			Type:      evt.Type,
			Payload:   evt.Payload,
			Timestamp: evt.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"activeCalls": s.controller.ActiveSessions(),
	})
}

func (s *Server) handleSpeech(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad form", http.StatusBadRequest)
		return
	}
	callSID := r.PostFormValue("CallSid")
	transcript := r.PostFormValue("SpeechResult")

	doc, err := s.controller.HandleUtterance(r.Context(), callSID, transcript)
	if err != nil {
		if errors.Is(err, call.ErrUnknownSession) {
			// The provider still needs a valid document; tell it to
			// hang up the orphaned call.
			writeTwiML(w, call.HangupDocument())
			return
		}
		s.log.Error("speech webhook failed",
			slog.String("call_sid", callSID),
			slog.String("error", err.Error()))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeTwiML(w, doc)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad form", http.StatusBadRequest)
		return
	}
	callSID := r.PostFormValue("CallSid")
	status := r.PostFormValue("CallStatus")
	if callSID == "" || status == "" {
		http.Error(w, "missing CallSid or CallStatus", http.StatusBadRequest)
		return
	}

	s.controller.HandleStatus(r.Context(), callSID, status)
	w.WriteHeader(http.StatusNoContent)
}
