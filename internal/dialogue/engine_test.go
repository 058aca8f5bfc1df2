package dialogue

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/voxdial/voxdial-core/internal/config"
)

type scriptedCompleter struct {
	reply string
	err   error
	seen  [][]Message
}

func (s *scriptedCompleter) Complete(_ context.Context, messages []Message) (string, error) {
	copied := make([]Message, len(messages))
	copy(copied, messages)
	s.seen = append(s.seen, copied)
	return s.reply, s.err
}

func TestRespondAppendsBothTurns(t *testing.T) {
	c := &scriptedCompleter{reply: "  I can help with that.  "}
	e := NewEngine(c, "be brief")

	reply, err := e.Respond(context.Background(), "What are your hours?")
	if err != nil {
		t.Fatalf("respond: %v", err)
	}
	if reply != "I can help with that." {
		t.Fatalf("expected trimmed reply, got %q", reply)
	}
	history := e.History()
	if len(history) != 2 {
		t.Fatalf("expected 2 history entries, got %d", len(history))
	}
	if history[0].Role != "user" || history[1].Role != "assistant" {
		t.Fatalf("unexpected history roles: %+v", history)
	}
}

func TestRespondFailureLeavesHistoryUnchanged(t *testing.T) {
	c := &scriptedCompleter{reply: "ok"}
	e := NewEngine(c, "")
	if _, err := e.Respond(context.Background(), "first"); err != nil {
		t.Fatalf("respond: %v", err)
	}
	before := len(e.History())

	c.err = errors.New("backend unavailable")
	_, err := e.Respond(context.Background(), "second")
	if err == nil {
		t.Fatal("expected error")
	}
	var dErr *Error
	if !errors.As(err, &dErr) {
		t.Fatalf("expected dialogue error, got %T", err)
	}
	if got := len(e.History()); got != before {
		t.Fatalf("history changed on failure: before=%d after=%d", before, got)
	}
}

func TestSystemPromptPrecedesHistory(t *testing.T) {
	c := &scriptedCompleter{reply: "sure"}
	e := NewEngine(c, "you are terse")
	if _, err := e.Respond(context.Background(), "hello"); err != nil {
		t.Fatalf("respond: %v", err)
	}
	if _, err := e.Respond(context.Background(), "again"); err != nil {
		t.Fatalf("respond: %v", err)
	}

	last := c.seen[len(c.seen)-1]
	if last[0].Role != "system" || last[0].Text != "you are terse" {
		t.Fatalf("expected system prompt first, got %+v", last[0])
	}
	// system + user/assistant pair + new user turn
	if len(last) != 4 {
		t.Fatalf("expected 4 messages, got %d", len(last))
	}
}

func TestOpenAICompleter(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Fatalf("unexpected path %q", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Fatalf("unexpected auth header %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"hi there"}}]}`))
	}))
	defer srv.Close()

	c := NewOpenAICompleter(config.DialogueConfig{Endpoint: srv.URL, APIKey: "sk-test", Model: "gpt-4o-mini"})
	reply, err := c.Complete(context.Background(), []Message{{Role: "user", Text: "hello"}})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if reply != "hi there" {
		t.Fatalf("unexpected reply %q", reply)
	}
}

func TestOpenAICompleterErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"rate limited"}}`))
	}))
	defer srv.Close()

	c := NewOpenAICompleter(config.DialogueConfig{Endpoint: srv.URL, APIKey: "sk-test", Model: "gpt-4o-mini"})
	if _, err := c.Complete(context.Background(), nil); err == nil {
		t.Fatal("expected error for non-2xx status")
	}
}
