// Package synth converts utterance text into durable audio artifacts.
package synth

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Artifact is a stored, immutable audio file produced for one utterance.
type Artifact struct {
	Name        string
	URL         string
	ContentType string
	Format      string
}

// Synthesizer is the contract for producing playable audio from text.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) (Artifact, error)
}

// Error marks a synthesis failure. Sessions recover from it with a spoken
// re-prompt rather than hanging up.
type Error struct {
	Err error
}

func (e *Error) Error() string { return fmt.Sprintf("synthesis failed: %v", e.Err) }
func (e *Error) Unwrap() error { return e.Err }

// artifactName returns a globally unique name carrying the format extension.
func artifactName(format string) string {
	return fmt.Sprintf("%s_%s.%s", time.Now().UTC().Format("20060102T150405"), uuid.NewString(), format)
}
