package eventstore

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/voxdial/voxdial-core/internal/config"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestOpenEphemeral(t *testing.T) {
	cfg := config.CallStoreConfig{RetentionMode: "ephemeral"}
	es, err := Open(context.Background(), cfg, newLogger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	t.Cleanup(func() { _ = es.Close() })

	if err := es.AppendEvent(context.Background(), Event{CallSID: "CA1", Type: "turn"}); err != nil {
		t.Fatalf("ephemeral append must be a no-op: %v", err)
	}
	events, err := es.ListCallEvents(context.Background(), "CA1", 10)
	if err != nil || events != nil {
		t.Fatalf("expected nothing recorded, got %v (%v)", events, err)
	}
}

func TestAppendAndQuery(t *testing.T) {
	tmp := t.TempDir()
	cfg := config.CallStoreConfig{Path: filepath.Join(tmp, "calls.db"), RetentionMode: "session"}
	es, err := Open(context.Background(), cfg, newLogger())
	if err != nil {
		t.Fatalf("open call store: %v", err)
	}
	t.Cleanup(func() { _ = es.Close() })

	callSID := "CA123"
	if err := es.AppendCall(context.Background(), callSID, "+15551234567", "+15550001111"); err != nil {
		t.Fatalf("append call: %v", err)
	}
	if err := es.AppendEvent(context.Background(), Event{CallSID: callSID, Type: "turn", Payload: []byte("hello")}); err != nil {
		t.Fatalf("append event: %v", err)
	}
	if err := es.SetTerminationReason(context.Background(), callSID, "user-requested"); err != nil {
		t.Fatalf("set reason: %v", err)
	}
	events, err := es.ListCallEvents(context.Background(), callSID, 10)
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if string(events[0].Payload) != "hello" {
		t.Fatalf("unexpected payload: %s", events[0].Payload)
	}
}

func TestPruneByDaysAndCalls(t *testing.T) {
	tmp := t.TempDir()
	cfg := config.CallStoreConfig{Path: filepath.Join(tmp, "calls.db"), RetentionMode: "persistent", RetentionDays: 1, MaxCalls: 1}
	es, err := Open(context.Background(), cfg, newLogger())
	if err != nil {
		t.Fatalf("open call store: %v", err)
	}
	t.Cleanup(func() { _ = es.Close() })

	es.clock = func() time.Time { return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) }
	if err := es.AppendCall(context.Background(), "CAold", "+15551230000", "+15550001111"); err != nil {
		t.Fatalf("append call: %v", err)
	}
	if err := es.AppendEvent(context.Background(), Event{CallSID: "CAold", Type: "turn"}); err != nil {
		t.Fatalf("append event: %v", err)
	}

	es.clock = func() time.Time { return time.Date(2026, 1, 3, 0, 0, 0, 0, time.UTC) }
	if err := es.AppendCall(context.Background(), "CAnew", "+15551230001", "+15550001111"); err != nil {
		t.Fatalf("append call: %v", err)
	}
	if err := es.Prune(context.Background()); err != nil {
		t.Fatalf("prune: %v", err)
	}

	events, err := es.ListCallEvents(context.Background(), "CAold", 10)
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if len(events) != 0 {
		t.Fatalf("expected old call pruned")
	}
}
