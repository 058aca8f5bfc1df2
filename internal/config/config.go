package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type TelemetryConfig struct {
	LogLevel       string `yaml:"log_level"`
	OTLPEndpoint   string `yaml:"otlp_endpoint"`
	OTLPInsecure   bool   `yaml:"otlp_insecure"`
	PrometheusBind string `yaml:"prometheus_bind"`
}

type HTTPConfig struct {
	Bind string `yaml:"bind"`
	Port int    `yaml:"port"`
	// PublicURL is the externally reachable base URL the telephony
	// provider uses to fetch audio and deliver webhooks.
	PublicURL string `yaml:"public_url"`
}

type Config struct {
	RuntimeName string           `yaml:"runtime_name"`
	Environment string           `yaml:"environment"`
	HTTP        HTTPConfig       `yaml:"http"`
	Telemetry   TelemetryConfig  `yaml:"telemetry"`
	Bus         BusConfig        `yaml:"bus"`
	Telephony   TelephonyConfig  `yaml:"telephony"`
	Synthesis   SynthesisConfig  `yaml:"synthesis"`
	Storage     StorageConfig    `yaml:"storage"`
	Transcribe  TranscribeConfig `yaml:"transcribe"`
	Dialogue    DialogueConfig   `yaml:"dialogue"`
	Session     SessionConfig    `yaml:"session"`
	CallStore   CallStoreConfig  `yaml:"call_store"`
}

type BusConfig struct {
	Enabled        bool     `yaml:"enabled"`
	Embedded       bool     `yaml:"embedded"`
	Port           int      `yaml:"port"`
	Servers        []string `yaml:"servers"`
	Username       string   `yaml:"username"`
	Password       string   `yaml:"password"`
	Token          string   `yaml:"token"`
	TLSInsecure    bool     `yaml:"tls_insecure"`
	ConnectTimeout int      `yaml:"connect_timeout_ms"`
}

type TelephonyConfig struct {
	AccountSID  string `yaml:"account_sid"`
	AuthToken   string `yaml:"auth_token"`
	FromNumber  string `yaml:"from_number"`
	APIBaseURL  string `yaml:"api_base_url"`
	RingTimeout int    `yaml:"ring_timeout_s"`
}

type SynthesisConfig struct {
	Mode         string `yaml:"mode"` // mock, polly, exec
	Voice        string `yaml:"voice"`
	Engine       string `yaml:"engine"`
	OutputFormat string `yaml:"output_format"`
	Region       string `yaml:"region"`
	Command      string `yaml:"command"`
	SampleRate   int    `yaml:"sample_rate"`
	Channels     int    `yaml:"channels"`
}

type StorageConfig struct {
	Mode             string `yaml:"mode"` // local, s3
	Directory        string `yaml:"directory"`
	Bucket           string `yaml:"bucket"`
	Region           string `yaml:"region"`
	KeyPrefix        string `yaml:"key_prefix"`
	RetentionMinutes int    `yaml:"retention_minutes"`
}

type TranscribeConfig struct {
	Mode            string `yaml:"mode"` // mock, deepgram
	APIKey          string `yaml:"api_key"`
	Endpoint        string `yaml:"endpoint"`
	Model           string `yaml:"model"`
	Language        string `yaml:"language"`
	SampleRate      int    `yaml:"sample_rate"`
	Encoding        string `yaml:"encoding"`
	FinalizeAfterMS int    `yaml:"finalize_after_ms"`
}

type DialogueConfig struct {
	Mode         string  `yaml:"mode"` // mock, openai, ollama
	Endpoint     string  `yaml:"endpoint"`
	APIKey       string  `yaml:"api_key"`
	Model        string  `yaml:"model"`
	SystemPrompt string  `yaml:"system_prompt"`
	MaxTokens    int     `yaml:"max_tokens"`
	Temperature  float64 `yaml:"temperature"`
}

type SessionConfig struct {
	SilenceThreshold   int      `yaml:"silence_threshold"`
	TerminationPhrases []string `yaml:"termination_phrases"`
	Greeting           string   `yaml:"greeting"`
	RepromptText       string   `yaml:"reprompt_text"`
	ApologyText        string   `yaml:"apology_text"`
	GoodbyeText        string   `yaml:"goodbye_text"`
	Voice              string   `yaml:"voice"`
}

type CallStoreConfig struct {
	Path          string `yaml:"path"`
	RetentionMode string `yaml:"retention_mode"`
	RetentionDays int    `yaml:"retention_days"`
	MaxCalls      int    `yaml:"max_calls"`
	VacuumOnStart bool   `yaml:"vacuum_on_start"`
}

func Default() Config {
	return Config{
		RuntimeName: "voxdial-runtime",
		Environment: "development",
		HTTP: HTTPConfig{
			Bind:      "0.0.0.0",
			Port:      8080,
			PublicURL: "http://localhost:8080",
		},
		Telemetry: TelemetryConfig{
			LogLevel:       "info",
			OTLPEndpoint:   "",
			OTLPInsecure:   true,
			PrometheusBind: ":9091",
		},
		Bus: BusConfig{
			Enabled:        false,
			Embedded:       true,
			Port:           4222,
			Servers:        []string{"nats://localhost:4222"},
			ConnectTimeout: 2000,
		},
		Telephony: TelephonyConfig{
			APIBaseURL:  "https://api.twilio.com/2010-04-01",
			RingTimeout: 30,
		},
		Synthesis: SynthesisConfig{
			Mode:         "mock",
			Voice:        "Joanna",
			Engine:       "neural",
			OutputFormat: "mp3",
			Region:       "us-east-1",
			SampleRate:   22050,
			Channels:     1,
		},
		Storage: StorageConfig{
			Mode:             "local",
			Directory:        "./data/audio",
			KeyPrefix:        "audio",
			Region:           "us-east-1",
			RetentionMinutes: 60,
		},
		Transcribe: TranscribeConfig{
			Mode:            "mock",
			Endpoint:        "wss://api.deepgram.com/v1/listen",
			Model:           "nova-2-phonecall",
			Language:        "en-US",
			SampleRate:      8000,
			Encoding:        "mulaw",
			FinalizeAfterMS: 10000,
		},
		Dialogue: DialogueConfig{
			Mode:         "mock",
			Endpoint:     "https://api.openai.com/v1",
			Model:        "gpt-4o-mini",
			SystemPrompt: "You are a friendly voice assistant on a phone call. Keep replies short and conversational.",
			MaxTokens:    256,
			Temperature:  0.7,
		},
		Session: SessionConfig{
			SilenceThreshold:   3,
			TerminationPhrases: []string{"goodbye", "end call"},
			Greeting:           "Hello! This is an automated assistant. How can I help you today?",
			RepromptText:       "Sorry, I didn't catch that. Could you say it again?",
			ApologyText:        "I'm sorry, I'm having trouble right now. Could you repeat that?",
			GoodbyeText:        "Goodbye!",
		},
		CallStore: CallStoreConfig{
			Path:          "./data/voxdial-calls.db",
			RetentionMode: "session",
			RetentionDays: 30,
			MaxCalls:      10000,
		},
	}
}

func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return cfg, fmt.Errorf("config file not found: %w", err)
			}
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	overrideString(&cfg.RuntimeName, "VOXDIAL_RUNTIME_NAME")
	overrideString(&cfg.Environment, "VOXDIAL_RUNTIME_ENVIRONMENT")
	overrideString(&cfg.HTTP.Bind, "VOXDIAL_HTTP_BIND")
	overrideInt(&cfg.HTTP.Port, "VOXDIAL_HTTP_PORT")
	overrideString(&cfg.HTTP.PublicURL, "VOXDIAL_HTTP_PUBLIC_URL")
	overrideString(&cfg.Telemetry.LogLevel, "VOXDIAL_TELEMETRY_LOG_LEVEL")
	overrideString(&cfg.Telemetry.OTLPEndpoint, "VOXDIAL_TELEMETRY_OTLP_ENDPOINT")
	overrideBool(&cfg.Telemetry.OTLPInsecure, "VOXDIAL_TELEMETRY_OTLP_INSECURE")
	overrideString(&cfg.Telemetry.PrometheusBind, "VOXDIAL_TELEMETRY_PROMETHEUS_BIND")
	overrideBool(&cfg.Bus.Enabled, "VOXDIAL_BUS_ENABLED")
	overrideBool(&cfg.Bus.Embedded, "VOXDIAL_BUS_EMBEDDED")
	overrideInt(&cfg.Bus.Port, "VOXDIAL_BUS_PORT")
	overrideStringSlice(&cfg.Bus.Servers, "VOXDIAL_BUS_SERVERS")
	overrideString(&cfg.Bus.Username, "VOXDIAL_BUS_USERNAME")
	overrideString(&cfg.Bus.Password, "VOXDIAL_BUS_PASSWORD")
	overrideString(&cfg.Bus.Token, "VOXDIAL_BUS_TOKEN")
	overrideBool(&cfg.Bus.TLSInsecure, "VOXDIAL_BUS_TLS_INSECURE")
	overrideInt(&cfg.Bus.ConnectTimeout, "VOXDIAL_BUS_CONNECT_TIMEOUT_MS")
	overrideString(&cfg.Telephony.AccountSID, "TWILIO_ACCOUNT_SID")
	overrideString(&cfg.Telephony.AuthToken, "TWILIO_AUTH_TOKEN")
	overrideString(&cfg.Telephony.FromNumber, "TWILIO_PHONE_NUMBER")
	overrideString(&cfg.Telephony.APIBaseURL, "VOXDIAL_TELEPHONY_API_BASE_URL")
	overrideInt(&cfg.Telephony.RingTimeout, "VOXDIAL_TELEPHONY_RING_TIMEOUT_S")
	overrideString(&cfg.Synthesis.Mode, "VOXDIAL_SYNTHESIS_MODE")
	overrideString(&cfg.Synthesis.Voice, "VOXDIAL_SYNTHESIS_VOICE")
	overrideString(&cfg.Synthesis.Engine, "VOXDIAL_SYNTHESIS_ENGINE")
	overrideString(&cfg.Synthesis.OutputFormat, "VOXDIAL_SYNTHESIS_OUTPUT_FORMAT")
	overrideString(&cfg.Synthesis.Region, "AWS_REGION")
	overrideString(&cfg.Synthesis.Command, "VOXDIAL_SYNTHESIS_COMMAND")
	overrideInt(&cfg.Synthesis.SampleRate, "VOXDIAL_SYNTHESIS_SAMPLE_RATE")
	overrideInt(&cfg.Synthesis.Channels, "VOXDIAL_SYNTHESIS_CHANNELS")
	overrideString(&cfg.Storage.Mode, "VOXDIAL_STORAGE_MODE")
	overrideString(&cfg.Storage.Directory, "VOXDIAL_STORAGE_DIRECTORY")
	overrideString(&cfg.Storage.Bucket, "AWS_S3_BUCKET")
	overrideString(&cfg.Storage.Region, "AWS_REGION")
	overrideString(&cfg.Storage.KeyPrefix, "VOXDIAL_STORAGE_KEY_PREFIX")
	overrideInt(&cfg.Storage.RetentionMinutes, "VOXDIAL_STORAGE_RETENTION_MINUTES")
	overrideString(&cfg.Transcribe.Mode, "VOXDIAL_TRANSCRIBE_MODE")
	overrideString(&cfg.Transcribe.APIKey, "DEEPGRAM_API_KEY")
	overrideString(&cfg.Transcribe.Endpoint, "VOXDIAL_TRANSCRIBE_ENDPOINT")
	overrideString(&cfg.Transcribe.Model, "VOXDIAL_TRANSCRIBE_MODEL")
	overrideString(&cfg.Transcribe.Language, "VOXDIAL_TRANSCRIBE_LANGUAGE")
	overrideInt(&cfg.Transcribe.SampleRate, "VOXDIAL_TRANSCRIBE_SAMPLE_RATE")
	overrideString(&cfg.Transcribe.Encoding, "VOXDIAL_TRANSCRIBE_ENCODING")
	overrideInt(&cfg.Transcribe.FinalizeAfterMS, "VOXDIAL_TRANSCRIBE_FINALIZE_AFTER_MS")
	overrideString(&cfg.Dialogue.Mode, "VOXDIAL_DIALOGUE_MODE")
	overrideString(&cfg.Dialogue.Endpoint, "VOXDIAL_DIALOGUE_ENDPOINT")
	overrideString(&cfg.Dialogue.APIKey, "OPENAI_API_KEY")
	overrideString(&cfg.Dialogue.Model, "VOXDIAL_DIALOGUE_MODEL")
	overrideString(&cfg.Dialogue.SystemPrompt, "VOXDIAL_DIALOGUE_SYSTEM_PROMPT")
	overrideInt(&cfg.Dialogue.MaxTokens, "VOXDIAL_DIALOGUE_MAX_TOKENS")
	overrideFloat(&cfg.Dialogue.Temperature, "VOXDIAL_DIALOGUE_TEMPERATURE")
	overrideInt(&cfg.Session.SilenceThreshold, "VOXDIAL_SESSION_SILENCE_THRESHOLD")
	overrideStringSlice(&cfg.Session.TerminationPhrases, "VOXDIAL_SESSION_TERMINATION_PHRASES")
	overrideString(&cfg.Session.Greeting, "VOXDIAL_SESSION_GREETING")
	overrideString(&cfg.Session.RepromptText, "VOXDIAL_SESSION_REPROMPT_TEXT")
	overrideString(&cfg.Session.ApologyText, "VOXDIAL_SESSION_APOLOGY_TEXT")
	overrideString(&cfg.Session.GoodbyeText, "VOXDIAL_SESSION_GOODBYE_TEXT")
	overrideString(&cfg.Session.Voice, "VOXDIAL_SESSION_VOICE")
	overrideString(&cfg.CallStore.Path, "VOXDIAL_CALL_STORE_PATH")
	overrideString(&cfg.CallStore.RetentionMode, "VOXDIAL_CALL_STORE_RETENTION_MODE")
	overrideInt(&cfg.CallStore.RetentionDays, "VOXDIAL_CALL_STORE_RETENTION_DAYS")
	overrideInt(&cfg.CallStore.MaxCalls, "VOXDIAL_CALL_STORE_MAX_CALLS")
	overrideBool(&cfg.CallStore.VacuumOnStart, "VOXDIAL_CALL_STORE_VACUUM_ON_START")
}

func overrideString(target *string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok && strings.TrimSpace(value) != "" {
		*target = value
	}
}

func overrideInt(target *int, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			*target = parsed
		}
	}
}

func overrideBool(target *bool, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseBool(value); err == nil {
			*target = parsed
		}
	}
}

func overrideStringSlice(target *[]string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		parts := strings.Split(value, ",")
		var trimmed []string
		for _, p := range parts {
			if s := strings.TrimSpace(p); s != "" {
				trimmed = append(trimmed, s)
			}
		}
		if len(trimmed) > 0 {
			*target = trimmed
		}
	}
}

func overrideFloat(target *float64, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			*target = parsed
		}
	}
}

var e164Pattern = regexp.MustCompile(`^\+[1-9]\d{1,14}$`)

// ValidPhoneNumber reports whether number is in E.164 form.
func ValidPhoneNumber(number string) bool {
	return e164Pattern.MatchString(number)
}

func validate(cfg Config) error {
	if cfg.RuntimeName == "" {
		return errors.New("runtime_name must not be empty")
	}
	if cfg.HTTP.Port <= 0 || cfg.HTTP.Port > 65535 {
		return errors.New("http.port must be between 1 and 65535")
	}
	if cfg.HTTP.PublicURL == "" {
		return errors.New("http.public_url must not be empty")
	}
	if cfg.Telemetry.PrometheusBind == "" {
		return errors.New("telemetry.prometheus_bind must not be empty")
	}
	if cfg.Bus.Enabled {
		if cfg.Bus.Embedded {
			if cfg.Bus.Port <= 0 || cfg.Bus.Port > 65535 {
				return errors.New("bus.port must be between 1 and 65535 when embedded mode is enabled")
			}
		} else if len(cfg.Bus.Servers) == 0 {
			return errors.New("bus.servers must not be empty when embedded mode is disabled")
		}
	}
	if cfg.Telephony.AccountSID == "" {
		return errors.New("telephony.account_sid must be set (TWILIO_ACCOUNT_SID)")
	}
	if cfg.Telephony.AuthToken == "" {
		return errors.New("telephony.auth_token must be set (TWILIO_AUTH_TOKEN)")
	}
	if cfg.Telephony.FromNumber == "" {
		return errors.New("telephony.from_number must be set (TWILIO_PHONE_NUMBER)")
	}
	if !ValidPhoneNumber(cfg.Telephony.FromNumber) {
		return fmt.Errorf("telephony.from_number %q is not E.164", cfg.Telephony.FromNumber)
	}
	switch cfg.Synthesis.Mode {
	case "mock", "polly", "exec":
	default:
		return errors.New("synthesis.mode must be one of mock|polly|exec")
	}
	if cfg.Synthesis.Mode == "polly" && cfg.Synthesis.Region == "" {
		return errors.New("synthesis.region must be set when mode=polly")
	}
	if cfg.Synthesis.Mode == "exec" {
		if cfg.Synthesis.Command == "" {
			return errors.New("synthesis.command must be set when mode=exec")
		}
		if cfg.Synthesis.SampleRate <= 0 {
			return errors.New("synthesis.sample_rate must be positive")
		}
		if cfg.Synthesis.Channels <= 0 {
			return errors.New("synthesis.channels must be positive")
		}
	}
	switch cfg.Storage.Mode {
	case "local":
		if cfg.Storage.Directory == "" {
			return errors.New("storage.directory must not be empty when mode=local")
		}
	case "s3":
		if cfg.Storage.Bucket == "" {
			return errors.New("storage.bucket must be set when mode=s3 (AWS_S3_BUCKET)")
		}
		if cfg.Storage.Region == "" {
			return errors.New("storage.region must be set when mode=s3 (AWS_REGION)")
		}
	default:
		return errors.New("storage.mode must be one of local|s3")
	}
	if cfg.Storage.RetentionMinutes < 0 {
		return errors.New("storage.retention_minutes must be >= 0")
	}
	switch cfg.Transcribe.Mode {
	case "mock":
	case "deepgram":
		if cfg.Transcribe.APIKey == "" {
			return errors.New("transcribe.api_key must be set when mode=deepgram (DEEPGRAM_API_KEY)")
		}
		if cfg.Transcribe.Endpoint == "" {
			return errors.New("transcribe.endpoint must not be empty")
		}
	default:
		return errors.New("transcribe.mode must be one of mock|deepgram")
	}
	if cfg.Transcribe.SampleRate <= 0 {
		return errors.New("transcribe.sample_rate must be positive")
	}
	if cfg.Transcribe.FinalizeAfterMS <= 0 {
		return errors.New("transcribe.finalize_after_ms must be positive")
	}
	switch cfg.Dialogue.Mode {
	case "mock":
	case "openai":
		if cfg.Dialogue.APIKey == "" {
			return errors.New("dialogue.api_key must be set when mode=openai (OPENAI_API_KEY)")
		}
		if cfg.Dialogue.Endpoint == "" {
			return errors.New("dialogue.endpoint must not be empty")
		}
	case "ollama":
		if cfg.Dialogue.Endpoint == "" {
			return errors.New("dialogue.endpoint must be set when mode=ollama")
		}
	default:
		return errors.New("dialogue.mode must be one of mock|openai|ollama")
	}
	if cfg.Dialogue.MaxTokens < 0 {
		return errors.New("dialogue.max_tokens must be >= 0")
	}
	if cfg.Session.SilenceThreshold <= 0 {
		return errors.New("session.silence_threshold must be >= 1")
	}
	if len(cfg.Session.TerminationPhrases) == 0 {
		return errors.New("session.termination_phrases must not be empty")
	}
	if cfg.CallStore.Path == "" {
		return errors.New("call_store.path must not be empty")
	}
	switch cfg.CallStore.RetentionMode {
	case "ephemeral", "session", "persistent":
	default:
		return errors.New("call_store.retention_mode must be one of ephemeral|session|persistent")
	}
	if cfg.CallStore.RetentionDays < 0 {
		return errors.New("call_store.retention_days must be >= 0")
	}
	return nil
}
