package synth

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/voxdial/voxdial-core/internal/config"
	"github.com/voxdial/voxdial-core/internal/storage"
)

func newStore(t *testing.T) (*storage.LocalStore, string) {
	t.Helper()
	dir := t.TempDir()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	s, err := storage.NewLocalStore(config.StorageConfig{Directory: dir, RetentionMinutes: 60}, "http://localhost:8080", log)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s, dir
}

func TestMockSynthRoundTrip(t *testing.T) {
	store, dir := newStore(t)
	s := NewMockSynth(store, "mp3")

	art, err := s.Synthesize(context.Background(), "Hello there")
	if err != nil {
		t.Fatalf("synthesize: %v", err)
	}
	if art.Name == "" || art.URL == "" {
		t.Fatalf("expected populated artifact, got %+v", art)
	}
	if art.Format != "mp3" || art.ContentType != "audio/mpeg" {
		t.Fatalf("format tag mismatch: %+v", art)
	}
	if !strings.HasSuffix(art.Name, ".mp3") {
		t.Fatalf("artifact name missing format extension: %q", art.Name)
	}
	data, err := os.ReadFile(filepath.Join(dir, art.Name))
	if err != nil {
		t.Fatalf("fetch artifact: %v", err)
	}
	if !strings.Contains(string(data), "Hello there") {
		t.Fatalf("unexpected artifact content: %q", data)
	}
}

func TestArtifactNamesUnique(t *testing.T) {
	store, _ := newStore(t)
	s := NewMockSynth(store, "mp3")

	seen := map[string]bool{}
	for i := 0; i < 10; i++ {
		art, err := s.Synthesize(context.Background(), "same text")
		if err != nil {
			t.Fatalf("synthesize: %v", err)
		}
		if seen[art.Name] {
			t.Fatalf("duplicate artifact name %q", art.Name)
		}
		seen[art.Name] = true
	}
}

func TestPCMToWavHeader(t *testing.T) {
	pcm := make([]byte, 3200) // 100ms of silence at 16kHz mono
	data, err := pcmToWav(pcm, 16000, 1)
	if err != nil {
		t.Fatalf("pcm to wav: %v", err)
	}
	if len(data) <= len(pcm) {
		t.Fatalf("expected container overhead, got %d bytes", len(data))
	}
	if string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		t.Fatalf("not a wav container: % x", data[:12])
	}
}

func TestPCMToWavRejectsMisaligned(t *testing.T) {
	if _, err := pcmToWav([]byte{0x01}, 16000, 1); err == nil {
		t.Fatal("expected error for misaligned pcm")
	}
}
