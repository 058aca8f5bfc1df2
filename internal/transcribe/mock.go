package transcribe

import (
	"context"
	"log/slog"
	"time"
)

type mockOpener struct {
	timeout time.Duration
	log     *slog.Logger
}

// NewMockOpener returns sessions that immediately finalize with a canned
// transcript. Useful without a transcription provider.
func NewMockOpener(timeout time.Duration, log *slog.Logger) Opener {
	return &mockOpener{timeout: timeout, log: log}
}

func (o *mockOpener) Open(_ context.Context) (*Session, error) {
	events := make(chan Event, 1)
	events <- Event{Text: "[mock transcript]", IsFinal: true, SpeechFinal: true}
	return newEventSession(events, o.timeout, o.log), nil
}
