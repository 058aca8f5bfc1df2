package synth

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/polly"
	pollytypes "github.com/aws/aws-sdk-go-v2/service/polly/types"

	"github.com/voxdial/voxdial-core/internal/config"
	"github.com/voxdial/voxdial-core/internal/storage"
)

type pollySynth struct {
	client *polly.Client
	store  storage.Store
	cfg    config.SynthesisConfig
	log    *slog.Logger
}

// NewPollySynth synthesizes speech with Amazon Polly and writes the result
// through the configured store.
func NewPollySynth(ctx context.Context, cfg config.SynthesisConfig, store storage.Store, log *slog.Logger) (Synthesizer, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return &pollySynth{
		client: polly.NewFromConfig(awsCfg),
		store:  store,
		cfg:    cfg,
		log:    log.With(slog.String("component", "polly-synth")),
	}, nil
}

func (p *pollySynth) Synthesize(ctx context.Context, text string) (Artifact, error) {
	out, err := p.client.SynthesizeSpeech(ctx, &polly.SynthesizeSpeechInput{
		Text:         &text,
		VoiceId:      pollytypes.VoiceId(p.cfg.Voice),
		Engine:       pollytypes.Engine(p.cfg.Engine),
		OutputFormat: pollytypes.OutputFormat(p.cfg.OutputFormat),
		TextType:     pollytypes.TextTypeText,
	})
	if err != nil {
		return Artifact{}, &Error{Err: fmt.Errorf("polly synthesize: %w", err)}
	}
	defer out.AudioStream.Close()

	data, err := io.ReadAll(out.AudioStream)
	if err != nil {
		return Artifact{}, &Error{Err: fmt.Errorf("read audio stream: %w", err)}
	}

	name := artifactName(p.cfg.OutputFormat)
	contentType := contentTypeFor(p.cfg.OutputFormat)
	url, err := p.store.Save(ctx, name, contentType, data)
	if err != nil {
		return Artifact{}, &Error{Err: fmt.Errorf("store artifact: %w", err)}
	}

	p.log.Info("utterance synthesized",
		slog.String("artifact", name),
		slog.Int("bytes", len(data)),
		slog.Int("text_len", len(text)))

	return Artifact{Name: name, URL: url, ContentType: contentType, Format: p.cfg.OutputFormat}, nil
}

func contentTypeFor(format string) string {
	switch format {
	case "mp3":
		return "audio/mpeg"
	case "ogg_vorbis":
		return "audio/ogg"
	case "pcm":
		return "audio/l16"
	case "wav":
		return "audio/wav"
	default:
		return "application/octet-stream"
	}
}
