package config

import "testing"

func testEnv(t *testing.T) {
	t.Helper()
	t.Setenv("TWILIO_ACCOUNT_SID", "ACtest")
	t.Setenv("TWILIO_AUTH_TOKEN", "token")
	t.Setenv("TWILIO_PHONE_NUMBER", "+15550001111")
}

func TestLoadDefaults(t *testing.T) {
	testEnv(t)
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Session.SilenceThreshold != 3 {
		t.Fatalf("expected silence threshold 3, got %d", cfg.Session.SilenceThreshold)
	}
	if len(cfg.Session.TerminationPhrases) != 2 {
		t.Fatalf("expected default termination phrases, got %v", cfg.Session.TerminationPhrases)
	}
	if cfg.Transcribe.FinalizeAfterMS != 10000 {
		t.Fatalf("expected finalize timeout 10000ms, got %d", cfg.Transcribe.FinalizeAfterMS)
	}
	if cfg.Synthesis.OutputFormat != "mp3" {
		t.Fatalf("expected mp3 output format, got %q", cfg.Synthesis.OutputFormat)
	}
}

func TestMissingCredentialsFatal(t *testing.T) {
	t.Setenv("TWILIO_ACCOUNT_SID", "")
	t.Setenv("TWILIO_AUTH_TOKEN", "")
	t.Setenv("TWILIO_PHONE_NUMBER", "")
	if _, err := Load(""); err == nil {
		t.Fatal("expected error when provider credentials are missing")
	}
}

func TestEnvOverrides(t *testing.T) {
	testEnv(t)
	t.Setenv("VOXDIAL_HTTP_PUBLIC_URL", "https://calls.example.com")
	t.Setenv("VOXDIAL_SESSION_SILENCE_THRESHOLD", "5")
	t.Setenv("VOXDIAL_SESSION_TERMINATION_PHRASES", "goodbye, hang up now")
	t.Setenv("VOXDIAL_STORAGE_MODE", "s3")
	t.Setenv("AWS_S3_BUCKET", "voxdial-audio")
	t.Setenv("AWS_REGION", "eu-west-1")
	t.Setenv("VOXDIAL_DIALOGUE_MODE", "openai")
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("VOXDIAL_TRANSCRIBE_MODE", "deepgram")
	t.Setenv("DEEPGRAM_API_KEY", "dg-test")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.HTTP.PublicURL != "https://calls.example.com" {
		t.Fatalf("expected public url override, got %q", cfg.HTTP.PublicURL)
	}
	if cfg.Session.SilenceThreshold != 5 {
		t.Fatalf("expected silence threshold override, got %d", cfg.Session.SilenceThreshold)
	}
	if len(cfg.Session.TerminationPhrases) != 2 || cfg.Session.TerminationPhrases[1] != "hang up now" {
		t.Fatalf("expected phrase override, got %v", cfg.Session.TerminationPhrases)
	}
	if cfg.Storage.Mode != "s3" || cfg.Storage.Bucket != "voxdial-audio" {
		t.Fatalf("expected s3 storage override")
	}
	if cfg.Storage.Region != "eu-west-1" || cfg.Synthesis.Region != "eu-west-1" {
		t.Fatalf("expected region override")
	}
	if cfg.Dialogue.Mode != "openai" || cfg.Dialogue.APIKey != "sk-test" {
		t.Fatalf("expected dialogue override")
	}
	if cfg.Transcribe.Mode != "deepgram" || cfg.Transcribe.APIKey != "dg-test" {
		t.Fatalf("expected transcribe override")
	}
}

func TestValidPhoneNumber(t *testing.T) {
	valid := []string{"+15551234567", "+442071838750", "+81312345678"}
	for _, number := range valid {
		if !ValidPhoneNumber(number) {
			t.Fatalf("expected %q to be valid", number)
		}
	}
	invalid := []string{"5551234567", "+05551234567", "15551234567", "+1", ""}
	for _, number := range invalid {
		if ValidPhoneNumber(number) {
			t.Fatalf("expected %q to be invalid", number)
		}
	}
}

func TestInvalidModesRejected(t *testing.T) {
	testEnv(t)
	t.Setenv("VOXDIAL_SYNTHESIS_MODE", "espeak")
	if _, err := Load(""); err == nil {
		t.Fatal("expected error for unknown synthesis mode")
	}
}
