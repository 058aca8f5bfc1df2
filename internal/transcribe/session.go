// Package transcribe turns a streaming speech-to-text socket into a
// bounded-time finalize operation: one finalized utterance per turn.
package transcribe

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/voxdial/voxdial-core/internal/config"
)

// Event is one recognition result from the stream.
type Event struct {
	Text        string
	IsFinal     bool
	SpeechFinal bool
}

// Session accumulates recognition events for one caller turn at a time.
type Session struct {
	events    chan Event
	timeout   time.Duration
	log       *slog.Logger
	conn      *websocket.Conn
	done      chan struct{}
	closeOnce sync.Once
}

// Opener creates transcription sessions. One session serves one call.
type Opener interface {
	Open(ctx context.Context) (*Session, error)
}

type deepgramOpener struct {
	cfg config.TranscribeConfig
	log *slog.Logger
}

// NewDeepgramOpener connects sessions to the Deepgram live endpoint.
func NewDeepgramOpener(cfg config.TranscribeConfig, log *slog.Logger) Opener {
	return &deepgramOpener{cfg: cfg, log: log.With(slog.String("component", "transcribe"))}
}

func (o *deepgramOpener) Open(ctx context.Context) (*Session, error) {
	endpoint, err := url.Parse(o.cfg.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse transcribe endpoint: %w", err)
	}
	q := endpoint.Query()
	q.Set("model", o.cfg.Model)
	q.Set("language", o.cfg.Language)
	q.Set("sample_rate", strconv.Itoa(o.cfg.SampleRate))
	q.Set("encoding", o.cfg.Encoding)
	q.Set("interim_results", "true")
	q.Set("punctuate", "true")
	endpoint.RawQuery = q.Encode()

	header := http.Header{}
	header.Set("Authorization", "Token "+o.cfg.APIKey)

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, endpoint.String(), header)
	if err != nil {
		return nil, fmt.Errorf("dial transcription stream: %w", err)
	}

	s := &Session{
		events:  make(chan Event, 32),
		timeout: time.Duration(o.cfg.FinalizeAfterMS) * time.Millisecond,
		log:     o.log,
		conn:    conn,
		done:    make(chan struct{}),
	}
	go s.readLoop()
	return s, nil
}

// deepgramResult is the subset of the live API response we consume.
type deepgramResult struct {
	Type    string `json:"type"`
	IsFinal bool   `json:"is_final"`
	Channel struct {
		Alternatives []struct {
			Transcript string `json:"transcript"`
		} `json:"alternatives"`
	} `json:"channel"`
	SpeechFinal bool `json:"speech_final"`
}

func (s *Session) readLoop() {
	defer close(s.events)
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			return
		}
		var result deepgramResult
		if err := json.Unmarshal(data, &result); err != nil {
			// Malformed events are dropped; the turn proceeds with
			// whatever was accumulated.
			s.log.Warn("malformed transcription event", slog.String("error", err.Error()))
			continue
		}
		if result.Type != "" && result.Type != "Results" {
			continue
		}
		var text string
		if len(result.Channel.Alternatives) > 0 {
			text = result.Channel.Alternatives[0].Transcript
		}
		// The stream can outpace the consumer once Finalize has returned;
		// a plain send would pin this goroutine forever after Close.
		select {
		case s.events <- Event{Text: text, IsFinal: result.IsFinal, SpeechFinal: result.SpeechFinal}:
		case <-s.done:
			return
		}
	}
}

// SendAudio forwards raw caller audio into the stream.
func (s *Session) SendAudio(data []byte) error {
	if s.conn == nil {
		return nil
	}
	return s.conn.WriteMessage(websocket.BinaryMessage, data)
}

// Finalize consumes events until a speech-final signal or the configured
// deadline, whichever comes first, and returns the concatenated final
// segments. On timeout the partial accumulation is returned as-is; a timeout
// is data, not an error.
func (s *Session) Finalize(ctx context.Context) (string, error) {
	timer := time.NewTimer(s.timeout)
	defer timer.Stop()

	var segments []string
	for {
		select {
		case <-ctx.Done():
			return joined(segments), ctx.Err()
		case <-timer.C:
			return joined(segments), nil
		case evt, ok := <-s.events:
			if !ok {
				return joined(segments), nil
			}
			if evt.IsFinal && strings.TrimSpace(evt.Text) != "" {
				segments = append(segments, strings.TrimSpace(evt.Text))
			}
			if evt.SpeechFinal {
				return joined(segments), nil
			}
		}
	}
}

func joined(segments []string) string {
	return strings.TrimSpace(strings.Join(segments, " "))
}

// Close tears down the stream and releases the read loop. Safe to call more
// than once.
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		if s.done != nil {
			close(s.done)
		}
		if s.conn != nil {
			err = s.conn.Close()
		}
	})
	return err
}

// newEventSession builds a session fed from a caller-owned channel. Used by
// the mock opener and tests.
func newEventSession(events chan Event, timeout time.Duration, log *slog.Logger) *Session {
	return &Session{events: events, timeout: timeout, log: log, done: make(chan struct{})}
}
