package protocol

import "time"

// CallEvent describes a lifecycle change for one call session.
type CallEvent struct {
	CallSID   string    `json:"call_sid"`
	To        string    `json:"to,omitempty"`
	Status    string    `json:"status,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// TurnEvent describes one caller-utterance-to-reply cycle.
type TurnEvent struct {
	CallSID    string    `json:"call_sid"`
	Transcript string    `json:"transcript"`
	Reply      string    `json:"reply,omitempty"`
	AudioURL   string    `json:"audio_url,omitempty"`
	Silence    int       `json:"silence,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

const (
	SubjectCallStarted    = "call.session.started"
	SubjectCallEnded      = "call.session.ended"
	SubjectCallStatus     = "call.provider.status"
	SubjectTurnCompleted  = "call.turn.completed"
	SubjectTurnTranscript = "call.turn.transcript"
)
