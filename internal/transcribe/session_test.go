package transcribe

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/voxdial/voxdial-core/internal/config"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestFinalizeOnSpeechFinal(t *testing.T) {
	events := make(chan Event, 8)
	events <- Event{Text: "hello", IsFinal: false}
	events <- Event{Text: "hello there", IsFinal: true}
	events <- Event{Text: "how are you", IsFinal: true, SpeechFinal: true}
	s := newEventSession(events, 10*time.Second, newLogger())

	got, err := s.Finalize(context.Background())
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if got != "hello there how are you" {
		t.Fatalf("unexpected transcript: %q", got)
	}
}

func TestFinalizeSkipsEmptyAndPartialSegments(t *testing.T) {
	events := make(chan Event, 8)
	events <- Event{Text: "   ", IsFinal: true}
	events <- Event{Text: "ignored partial", IsFinal: false}
	events <- Event{Text: "  kept  ", IsFinal: true, SpeechFinal: true}
	s := newEventSession(events, 10*time.Second, newLogger())

	got, err := s.Finalize(context.Background())
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if got != "kept" {
		t.Fatalf("unexpected transcript: %q", got)
	}
}

func TestFinalizeTimeoutReturnsAccumulated(t *testing.T) {
	events := make(chan Event, 8)
	events <- Event{Text: "partial words", IsFinal: true}
	s := newEventSession(events, 50*time.Millisecond, newLogger())

	start := time.Now()
	got, err := s.Finalize(context.Background())
	if err != nil {
		t.Fatalf("timeout must not be an error: %v", err)
	}
	if got != "partial words" {
		t.Fatalf("unexpected transcript: %q", got)
	}
	if time.Since(start) < 50*time.Millisecond {
		t.Fatal("finalize returned before the deadline without a speech-final signal")
	}
}

func TestFinalizeEmptyTimeout(t *testing.T) {
	s := newEventSession(make(chan Event), 30*time.Millisecond, newLogger())
	got, err := s.Finalize(context.Background())
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if got != "" {
		t.Fatalf("expected empty transcript, got %q", got)
	}
}

func TestFinalizeStopsOnClosedStream(t *testing.T) {
	events := make(chan Event, 2)
	events <- Event{Text: "tail", IsFinal: true}
	close(events)
	s := newEventSession(events, 10*time.Second, newLogger())

	got, err := s.Finalize(context.Background())
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if got != "tail" {
		t.Fatalf("unexpected transcript: %q", got)
	}
}

func TestCloseStopsStreamReader(t *testing.T) {
	upgrader := websocket.Upgrader{}
	frame := []byte(`{"type":"Results","is_final":true,"channel":{"alternatives":[{"transcript":"words"}]}}`)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
			time.Sleep(time.Millisecond)
		}
	}))
	defer srv.Close()

	before := runtime.NumGoroutine()

	opener := NewDeepgramOpener(config.TranscribeConfig{
		Endpoint:        "ws" + strings.TrimPrefix(srv.URL, "http"),
		Model:           "nova-2-phonecall",
		Language:        "en-US",
		SampleRate:      8000,
		Encoding:        "mulaw",
		FinalizeAfterMS: 30,
	}, newLogger())
	s, err := opener.Open(context.Background())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := s.Finalize(context.Background()); err != nil {
		t.Fatalf("finalize: %v", err)
	}

	// Nobody is draining events anymore; give the server time to refill the
	// buffer so the read loop is parked on a send before Close.
	time.Sleep(100 * time.Millisecond)
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if runtime.NumGoroutine() <= before {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("read loop still running after close: %d goroutines, started with %d", runtime.NumGoroutine(), before)
}

func TestMockOpener(t *testing.T) {
	s, err := NewMockOpener(time.Second, newLogger()).Open(context.Background())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	got, err := s.Finalize(context.Background())
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if got == "" {
		t.Fatal("expected canned transcript")
	}
}
