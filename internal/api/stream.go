package api

import (
	"context"
	"encoding/base64"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/voxdial/voxdial-core/internal/protocol"
	"github.com/voxdial/voxdial-core/internal/transcribe"
)

// mediaFrame is one message on the provider's bidirectional media stream.
// Only the events we act on are modeled; everything else is skipped.
type mediaFrame struct {
	Event string `json:"event"`
	Start struct {
		CallSID string `json:"callSid"`
	} `json:"start"`
	Media struct {
		Payload string `json:"payload"` // base64 mu-law audio
	} `json:"media"`
}

// handleMediaStream ingests the provider's live audio stream for a call and
// feeds it to the transcription backend. The resulting transcript is
// published as an event; the webhook-driven turn loop stays authoritative
// for call control.
func (s *Server) handleMediaStream(w http.ResponseWriter, r *http.Request) {
	sid := r.PathValue("sid")

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("media stream upgrade failed",
			slog.String("call_sid", sid),
			slog.String("error", err.Error()))
		return
	}
	defer conn.Close()

	session, err := s.opener.Open(r.Context())
	if err != nil {
		s.log.Error("failed to open transcription session",
			slog.String("call_sid", sid),
			slog.String("error", err.Error()))
		return
	}
	defer session.Close()

	s.log.Info("media stream connected", slog.String("call_sid", sid))

	for {
		var frame mediaFrame
		if err := conn.ReadJSON(&frame); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.log.Warn("media stream read failed",
					slog.String("call_sid", sid),
					slog.String("error", err.Error()))
			}
			break
		}

		switch frame.Event {
		case "start":
			if frame.Start.CallSID != "" {
				sid = frame.Start.CallSID
			}
		case "media":
			audio, err := base64.StdEncoding.DecodeString(frame.Media.Payload)
			if err != nil {
				s.log.Warn("dropping undecodable media frame", slog.String("call_sid", sid))
				continue
			}
			if err := session.SendAudio(audio); err != nil {
				s.log.Warn("failed to forward audio",
					slog.String("call_sid", sid),
					slog.String("error", err.Error()))
			}
		case "stop":
			s.finalizeStream(sid, session)
			return
		}
	}

	s.finalizeStream(sid, session)
}

// finalizeStream drains whatever final transcript the backend accumulated
// and publishes it. Runs after the provider stops the stream, so it uses a
// fresh timeout instead of the request context.
func (s *Server) finalizeStream(sid string, session *transcribe.Session) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	transcript, err := session.Finalize(ctx)
	if err != nil {
		s.log.Warn("transcription finalize failed",
			slog.String("call_sid", sid),
			slog.String("error", err.Error()))
		return
	}
	if transcript == "" {
		return
	}

	s.log.Info("stream transcript finalized",
		slog.String("call_sid", sid),
		slog.Int("length", len(transcript)))
	if s.events != nil {
		s.events.Publish(protocol.SubjectTurnTranscript, protocol.TurnEvent{
			CallSID:    sid,
			Transcript: transcript,
			Timestamp:  time.Now().UTC(),
		})
	}
}
