// Package dialogue produces the agent's next utterance from conversation
// history and the caller's latest transcript.
package dialogue

import (
	"context"
	"fmt"
)

// Message is one turn of conversation history.
type Message struct {
	Role string `json:"role"` // system, user, assistant
	Text string `json:"content"`
}

// Completer defines a pluggable chat-completion backend.
type Completer interface {
	Complete(ctx context.Context, messages []Message) (string, error)
}

// Error marks a dialogue failure. The session recovers with a spoken
// apology; the conversation history is left untouched.
type Error struct {
	Err error
}

func (e *Error) Error() string { return fmt.Sprintf("dialogue failed: %v", e.Err) }
func (e *Error) Unwrap() error { return e.Err }
