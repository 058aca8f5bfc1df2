package dialogue

import (
	"context"
	"strings"
	"time"
)

type mockCompleter struct{}

func NewMockCompleter() Completer { return &mockCompleter{} }

func (m *mockCompleter) Complete(ctx context.Context, messages []Message) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case <-time.After(20 * time.Millisecond):
	}
	last := ""
	if len(messages) > 0 {
		last = messages[len(messages)-1].Text
	}
	return "[mock reply to " + strings.TrimSpace(last) + "]", nil
}
