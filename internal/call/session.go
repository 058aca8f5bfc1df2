// Package call owns the per-call session state machine: turn handling,
// silence tracking, and termination.
package call

import (
	"sync"

	"github.com/voxdial/voxdial-core/internal/dialogue"
)

// State of a session within its lifecycle.
type State string

const (
	StateInitiating     State = "initiating"
	StateAwaitingSpeech State = "awaiting-speech"
	StateProcessing     State = "processing"
	StateTerminating    State = "terminating"
	StateTerminated     State = "terminated"
)

// Reason a session terminated.
type Reason string

const (
	ReasonNone           Reason = "none"
	ReasonUserRequested  Reason = "user-requested"
	ReasonSilenceTimeout Reason = "silence-timeout"
	ReasonError          Reason = "error"
)

// Session is the persistent state of one active call across turns. All
// mutation happens under mu, which also serializes webhook processing for
// the call: the provider delivers speech webhooks one at a time per call,
// and the lock enforces the same discipline inside the process.
type Session struct {
	CallSID string
	To      string

	mu      sync.Mutex
	state   State
	active  bool
	silence int
	reason  Reason
	engine  *dialogue.Engine
}

func newSession(callSID, to string, engine *dialogue.Engine) *Session {
	return &Session{
		CallSID: callSID,
		To:      to,
		state:   StateInitiating,
		active:  true,
		reason:  ReasonNone,
		engine:  engine,
	}
}

// Active reports whether the session is still live.
func (s *Session) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// SilenceCount returns the consecutive empty-transcript count.
func (s *Session) SilenceCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.silence
}

// TerminationReason returns why the session ended, or ReasonNone.
func (s *Session) TerminationReason() Reason {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reason
}

// History returns the recorded conversation turns.
func (s *Session) History() []dialogue.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.History()
}

// terminate transitions to the terminal state. Caller holds mu.
func (s *Session) terminate(reason Reason) {
	s.active = false
	s.state = StateTerminated
	s.reason = reason
}
