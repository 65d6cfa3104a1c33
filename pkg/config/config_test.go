package config

import (
	"os"
	"testing"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"CARRIER_ACCOUNT_SID", "CARRIER_AUTH_TOKEN", "CARRIER_FROM_NUMBER",
		"STT_PROVIDER", "LLM_PROVIDER", "TTS_PROVIDER",
		"OPENAI_API_KEY", "ANTHROPIC_API_KEY", "GOOGLE_API_KEY", "GROQ_API_KEY",
		"DEEPGRAM_API_KEY", "ASSEMBLYAI_API_KEY", "LOKUTOR_API_KEY",
		"PUBLIC_BASE_URL", "LISTEN_PORT",
		"VAD_AGGRESSIVENESS", "VAD_SILENCE_MS", "VAD_MIN_SPEECH_MS",
		"MAX_UTTERANCE_LENGTH_MS", "ECHO_CANCELLATION_MS", "AGENT_RESPONSE_DELAY_MS",
		"MIN_AUDIO_LEVEL_THRESHOLD", "MIN_MEANINGFUL_WORDS", "MAX_CALL_DURATION_S",
		"MAX_CONCURRENT_CALLS", "RATE_LIMIT_WINDOW_MINUTES", "RATE_LIMIT_CALLS_PER_WINDOW",
		"AGENT_LANGUAGE", "AGENT_VOICE",
	} {
		os.Unsetenv(key)
	}
}

func setRequiredEnv(t *testing.T) {
	t.Helper()
	os.Setenv("CARRIER_ACCOUNT_SID", "AC123")
	os.Setenv("CARRIER_AUTH_TOKEN", "secret")
	os.Setenv("CARRIER_FROM_NUMBER", "+15551234567")
	os.Setenv("LOKUTOR_API_KEY", "lokutor-key")
	os.Setenv("PUBLIC_BASE_URL", "https://bridge.example.com")
}

func TestLoadAppliesDefaultsWhenTunablesUnset(t *testing.T) {
	clearEnv(t)
	defer clearEnv(t)
	setRequiredEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.VADSilenceMS != 600 {
		t.Errorf("expected default VADSilenceMS 600, got %d", cfg.VADSilenceMS)
	}
	if cfg.MaxCallDurationS != 600 {
		t.Errorf("expected default MaxCallDurationS 600, got %d", cfg.MaxCallDurationS)
	}
	if cfg.MinAudioLevelThreshold != 0.015 {
		t.Errorf("expected default MinAudioLevelThreshold 0.015, got %v", cfg.MinAudioLevelThreshold)
	}
	if cfg.ListenPort != 8080 {
		t.Errorf("expected default ListenPort 8080, got %d", cfg.ListenPort)
	}
}

func TestLoadFailsWhenRequiredFieldMissing(t *testing.T) {
	clearEnv(t)
	defer clearEnv(t)
	setRequiredEnv(t)
	os.Unsetenv("CARRIER_ACCOUNT_SID")

	if _, err := Load(); err == nil {
		t.Fatal("expected an error when a required field is missing")
	}
}

func TestLoadFailsOnOutOfRangeVADAggressiveness(t *testing.T) {
	clearEnv(t)
	defer clearEnv(t)
	setRequiredEnv(t)
	os.Setenv("VAD_AGGRESSIVENESS", "7")

	if _, err := Load(); err == nil {
		t.Fatal("expected an error for an out-of-range VAD_AGGRESSIVENESS")
	}
}

func TestLoadFallsBackToDefaultOnMalformedInteger(t *testing.T) {
	clearEnv(t)
	defer clearEnv(t)
	setRequiredEnv(t)
	os.Setenv("MAX_CALL_DURATION_S", "not-a-number")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.MaxCallDurationS != 600 {
		t.Errorf("expected malformed MAX_CALL_DURATION_S to fall back to default 600, got %d", cfg.MaxCallDurationS)
	}
}

func TestLoadFallsBackToDefaultOnMalformedFloat(t *testing.T) {
	clearEnv(t)
	defer clearEnv(t)
	setRequiredEnv(t)
	os.Setenv("MIN_AUDIO_LEVEL_THRESHOLD", "not-a-number")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.MinAudioLevelThreshold != 0.015 {
		t.Errorf("expected malformed MIN_AUDIO_LEVEL_THRESHOLD to fall back to default 0.015, got %v", cfg.MinAudioLevelThreshold)
	}
}

func TestLoadRejectsUnknownProvider(t *testing.T) {
	clearEnv(t)
	defer clearEnv(t)
	setRequiredEnv(t)
	os.Setenv("STT_PROVIDER", "carrier-pigeon")

	if _, err := Load(); err == nil {
		t.Fatal("expected an error for an unknown STT provider name")
	}
}

func TestLoadDefaultsLanguageAndVoice(t *testing.T) {
	clearEnv(t)
	defer clearEnv(t)
	setRequiredEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Language != "en" {
		t.Errorf("expected default language en, got %q", cfg.Language)
	}
	if cfg.Voice != "default" {
		t.Errorf("expected default voice \"default\", got %q", cfg.Voice)
	}
}
