package dialogue

import (
	"context"
	"strings"
)

// Engine owns one call's conversation history. History gains the user turn
// and the agent reply together, and only when the backend succeeds, so a
// retried turn always sees consistent prior context.
//
// Engine is not safe for concurrent use; the session controller serializes
// turns per call.
type Engine struct {
	completer Completer
	system    string
	history   []Message
}

func NewEngine(completer Completer, systemPrompt string) *Engine {
	return &Engine{completer: completer, system: systemPrompt}
}

// Respond produces the next agent utterance for userText.
func (e *Engine) Respond(ctx context.Context, userText string) (string, error) {
	messages := make([]Message, 0, len(e.history)+2)
	if e.system != "" {
		messages = append(messages, Message{Role: "system", Text: e.system})
	}
	messages = append(messages, e.history...)
	messages = append(messages, Message{Role: "user", Text: userText})

	reply, err := e.completer.Complete(ctx, messages)
	if err != nil {
		return "", &Error{Err: err}
	}
	reply = strings.TrimSpace(reply)

	e.history = append(e.history,
		Message{Role: "user", Text: userText},
		Message{Role: "assistant", Text: reply},
	)
	return reply, nil
}

// History returns a copy of the recorded turns, excluding the system prompt.
func (e *Engine) History() []Message {
	out := make([]Message, len(e.history))
	copy(out, e.history)
	return out
}
