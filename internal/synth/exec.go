package synth

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"sync"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/mattn/go-shellwords"

	"github.com/voxdial/voxdial-core/internal/config"
	"github.com/voxdial/voxdial-core/internal/storage"
)

// execSynth runs a local TTS command. The command receives a JSON request on
// stdin and writes raw little-endian 16-bit PCM to stdout; the PCM is wrapped
// into a WAV container before storing so the provider can play it.
type execSynth struct {
	cmd   []string
	cfg   config.SynthesisConfig
	store storage.Store
	log   *slog.Logger
	mu    sync.Mutex
}

type execRequest struct {
	Text       string `json:"text"`
	Voice      string `json:"voice"`
	SampleRate int    `json:"sample_rate"`
	Channels   int    `json:"channels"`
}

func NewExecSynth(cfg config.SynthesisConfig, store storage.Store, log *slog.Logger) (Synthesizer, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(cfg.Command)
	if err != nil {
		return nil, fmt.Errorf("parse synthesis command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("synthesis command is empty")
	}
	return &execSynth{
		cmd:   args,
		cfg:   cfg,
		store: store,
		log:   log.With(slog.String("component", "exec-synth")),
	}, nil
}

func (e *execSynth) Synthesize(ctx context.Context, text string) (Artifact, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	payload, err := json.Marshal(execRequest{
		Text:       text,
		Voice:      e.cfg.Voice,
		SampleRate: e.cfg.SampleRate,
		Channels:   e.cfg.Channels,
	})
	if err != nil {
		return Artifact{}, &Error{Err: err}
	}

	base := e.cmd[0]
	args := append([]string{}, e.cmd[1:]...)
	command := exec.CommandContext(ctx, base, args...)
	command.Stdin = bytes.NewReader(payload)
	var stdout bytes.Buffer
	var stderr bytes.Buffer
	command.Stdout = &stdout
	command.Stderr = &stderr

	if err := command.Run(); err != nil {
		return Artifact{}, &Error{Err: fmt.Errorf("synthesis command failed: %w: %s", err, stderr.String())}
	}

	wavData, err := pcmToWav(stdout.Bytes(), e.cfg.SampleRate, e.cfg.Channels)
	if err != nil {
		return Artifact{}, &Error{Err: err}
	}

	name := artifactName("wav")
	url, err := e.store.Save(ctx, name, "audio/wav", wavData)
	if err != nil {
		return Artifact{}, &Error{Err: fmt.Errorf("store artifact: %w", err)}
	}

	e.log.Info("utterance synthesized", slog.String("artifact", name), slog.Int("bytes", len(wavData)))
	return Artifact{Name: name, URL: url, ContentType: "audio/wav", Format: "wav"}, nil
}

func pcmToWav(pcm []byte, sampleRate, channels int) ([]byte, error) {
	if len(pcm)%2 != 0 {
		return nil, fmt.Errorf("pcm payload not aligned")
	}

	tmp, err := os.CreateTemp("", "voxdial_tts_*.wav")
	if err != nil {
		return nil, fmt.Errorf("temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	defer tmp.Close()

	buffer := &audio.IntBuffer{Format: &audio.Format{NumChannels: channels, SampleRate: sampleRate}}
	samples := make([]int, len(pcm)/2)
	for i := 0; i < len(samples); i++ {
		samples[i] = int(int16(binary.LittleEndian.Uint16(pcm[i*2:])))
	}
	buffer.Data = samples

	enc := wav.NewEncoder(tmp, sampleRate, 16, channels, 1)
	if err := enc.Write(buffer); err != nil {
		return nil, fmt.Errorf("write wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("close wav encoder: %w", err)
	}
	return os.ReadFile(tmp.Name())
}
