package synth

import (
	"context"
	"fmt"

	"github.com/voxdial/voxdial-core/internal/storage"
)

type mockSynth struct {
	store  storage.Store
	format string
}

// NewMockSynth stores a placeholder payload per utterance. Useful in
// development without cloud credentials.
func NewMockSynth(store storage.Store, format string) Synthesizer {
	if format == "" {
		format = "mp3"
	}
	return &mockSynth{store: store, format: format}
}

func (m *mockSynth) Synthesize(ctx context.Context, text string) (Artifact, error) {
	name := artifactName(m.format)
	contentType := contentTypeFor(m.format)
	payload := []byte(fmt.Sprintf("[mock %s audio for %q]", m.format, text))
	url, err := m.store.Save(ctx, name, contentType, payload)
	if err != nil {
		return Artifact{}, &Error{Err: err}
	}
	return Artifact{Name: name, URL: url, ContentType: contentType, Format: m.format}, nil
}
