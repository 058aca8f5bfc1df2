// Package api exposes the HTTP surface: the call management API, the
// provider webhook endpoints, audio artifact serving, and the media stream
// ingest used for live transcription.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/voxdial/voxdial-core/internal/bus"
	"github.com/voxdial/voxdial-core/internal/call"
	"github.com/voxdial/voxdial-core/internal/eventstore"
	"github.com/voxdial/voxdial-core/internal/telephony"
	"github.com/voxdial/voxdial-core/internal/transcribe"
)

type Server struct {
	controller *call.Controller
	gateway    telephony.Gateway
	opener     transcribe.Opener
	events     *bus.Client
	store      *eventstore.Store
	audioDir   string
	log        *slog.Logger
	upgrader   websocket.Upgrader
}

// Params wires the server's collaborators. AudioDir is empty unless audio
// artifacts are stored on the local filesystem.
type Params struct {
	Controller *call.Controller
	Gateway    telephony.Gateway
	Opener     transcribe.Opener
	Bus        *bus.Client
	Store      *eventstore.Store
	AudioDir   string
	Logger     *slog.Logger
}

func NewServer(p Params) *Server {
	return &Server{
		controller: p.Controller,
		gateway:    p.Gateway,
		opener:     p.Opener,
		events:     p.Bus,
		store:      p.Store,
		audioDir:   p.AudioDir,
		log:        p.Logger.With(slog.String("component", "api")),
		upgrader: websocket.Upgrader{
			// The telephony provider does not send an Origin header.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// Register mounts all routes on mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/calls", s.handleCreateCall)
	mux.HandleFunc("GET /api/calls/{sid}", s.handleFetchCall)
	if s.store != nil {
		mux.HandleFunc("GET /api/calls/{sid}/events", s.handleCallEvents)
	}
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("POST /webhooks/speech", s.handleSpeech)
	mux.HandleFunc("POST /webhooks/status", s.handleStatus)
	if s.opener != nil {
		mux.HandleFunc("GET /media/{sid}", s.handleMediaStream)
	}
	if s.audioDir != "" {
		mux.Handle("GET /audio/", http.StripPrefix("/audio/", http.FileServer(http.Dir(s.audioDir))))
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"success": false, "error": message})
}

func writeTwiML(w http.ResponseWriter, doc string) {
	w.Header().Set("Content-Type", "text/xml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(doc))
}
