// Package config loads and validates the process-wide configuration from the
// environment. It uses godotenv to populate os.Environ from an optional
// .env file, then struct-tag validation via validator/v10 to fail fast on a
// malformed deployment instead of surfacing the problem mid-call.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"

	"github.com/voxrelay/callbridge/pkg/core"
)

// Config is the fully resolved process configuration: required carrier and
// collaborator credentials, plus every pipeline and dialogue tunable.
type Config struct {
	CarrierAccountSID string `validate:"required"`
	CarrierAuthToken  string `validate:"required"`
	CarrierFromNumber string `validate:"required"`

	STTProvider string `validate:"omitempty,oneof=openai groq deepgram assemblyai"`
	LLMProvider string `validate:"omitempty,oneof=openai anthropic google groq"`
	TTSProvider string `validate:"omitempty,oneof=lokutor"`

	OpenAIAPIKey     string
	AnthropicAPIKey  string
	GoogleAPIKey     string
	GroqAPIKey       string
	DeepgramAPIKey   string
	AssemblyAIAPIKey string
	LokutorAPIKey    string `validate:"required"`

	PublicBaseURL string `validate:"required,url"`
	ListenPort    int    `validate:"required,gte=1,lte=65535"`

	VADAggressiveness      int     `validate:"gte=1,lte=3"`
	VADSilenceMS           int     `validate:"gt=0"`
	VADMinSpeechMS         int     `validate:"gt=0"`
	MaxUtteranceLengthMS   int     `validate:"gt=0"`
	EchoCancellationMS     int     `validate:"gte=0"`
	AgentResponseDelayMS   int     `validate:"gte=0"`
	MinAudioLevelThreshold float64 `validate:"gte=0,lte=1"`
	MinMeaningfulWords     int     `validate:"gte=0"`
	MaxCallDurationS       int     `validate:"gt=0"`
	MaxConcurrentCalls     int     `validate:"gt=0"`
	RateLimitWindowMinutes int     `validate:"gt=0"`
	RateLimitCallsPerWin   int     `validate:"gt=0"`

	Language core.Language
	Voice    core.Voice
}

// Load reads .env (if present), falls back to the process environment, fills
// in defaults, and validates the result. A missing .env file is not an
// error: production deployments set real environment variables instead.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("config: reading .env: %w", err)
		}
	}

	cfg := &Config{
		CarrierAccountSID: os.Getenv("CARRIER_ACCOUNT_SID"),
		CarrierAuthToken:  os.Getenv("CARRIER_AUTH_TOKEN"),
		CarrierFromNumber: os.Getenv("CARRIER_FROM_NUMBER"),

		STTProvider: os.Getenv("STT_PROVIDER"),
		LLMProvider: os.Getenv("LLM_PROVIDER"),
		TTSProvider: os.Getenv("TTS_PROVIDER"),

		OpenAIAPIKey:     os.Getenv("OPENAI_API_KEY"),
		AnthropicAPIKey:  os.Getenv("ANTHROPIC_API_KEY"),
		GoogleAPIKey:     os.Getenv("GOOGLE_API_KEY"),
		GroqAPIKey:       os.Getenv("GROQ_API_KEY"),
		DeepgramAPIKey:   os.Getenv("DEEPGRAM_API_KEY"),
		AssemblyAIAPIKey: os.Getenv("ASSEMBLYAI_API_KEY"),
		LokutorAPIKey:    os.Getenv("LOKUTOR_API_KEY"),

		PublicBaseURL: os.Getenv("PUBLIC_BASE_URL"),

		Language: core.Language(envOr("AGENT_LANGUAGE", string(core.LanguageEn))),
		Voice:    core.Voice(envOr("AGENT_VOICE", "default")),
	}

	cfg.ListenPort = envInt("LISTEN_PORT", 8080)
	cfg.VADAggressiveness = envInt("VAD_AGGRESSIVENESS", 1)
	cfg.VADSilenceMS = envInt("VAD_SILENCE_MS", 600)
	cfg.VADMinSpeechMS = envInt("VAD_MIN_SPEECH_MS", 150)
	cfg.MaxUtteranceLengthMS = envInt("MAX_UTTERANCE_LENGTH_MS", 10000)
	cfg.EchoCancellationMS = envInt("ECHO_CANCELLATION_MS", 100)
	cfg.AgentResponseDelayMS = envInt("AGENT_RESPONSE_DELAY_MS", 100)
	cfg.MinAudioLevelThreshold = envFloat("MIN_AUDIO_LEVEL_THRESHOLD", 0.015)
	cfg.MinMeaningfulWords = envInt("MIN_MEANINGFUL_WORDS", 2)
	cfg.MaxCallDurationS = envInt("MAX_CALL_DURATION_S", 600)
	cfg.MaxConcurrentCalls = envInt("MAX_CONCURRENT_CALLS", 5)
	cfg.RateLimitWindowMinutes = envInt("RATE_LIMIT_WINDOW_MINUTES", 1)
	cfg.RateLimitCallsPerWin = envInt("RATE_LIMIT_CALLS_PER_WINDOW", 10)

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		slog.Warn("config: malformed integer env var, using default", "key", key, "value", raw, "default", fallback)
		return fallback
	}
	return v
}

func envFloat(key string, fallback float64) float64 {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		slog.Warn("config: malformed number env var, using default", "key", key, "value", raw, "default", fallback)
		return fallback
	}
	return v
}
