package runtime

import (
	"context"
	"testing"

	"github.com/voxdial/voxdial-core/internal/config"
)

func TestTelemetryResourceCarriesBackendModes(t *testing.T) {
	cfg := config.Default()
	cfg.Synthesis.Mode = "polly"
	cfg.Dialogue.Mode = "openai"
	cfg.Transcribe.Mode = "deepgram"
	cfg.Storage.Mode = "s3"

	res, err := telemetryResource(context.Background(), cfg)
	if err != nil {
		t.Fatalf("build resource: %v", err)
	}

	attrs := make(map[string]string)
	for _, kv := range res.Attributes() {
		attrs[string(kv.Key)] = kv.Value.AsString()
	}
	want := map[string]string{
		"service.name":             cfg.RuntimeName,
		"voxdial.synthesis.mode":   "polly",
		"voxdial.dialogue.mode":    "openai",
		"voxdial.transcribe.mode":  "deepgram",
		"voxdial.storage.mode":     "s3",
	}
	for key, value := range want {
		if attrs[key] != value {
			t.Errorf("attribute %s = %q, want %q", key, attrs[key], value)
		}
	}
}
