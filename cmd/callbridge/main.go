// Command callbridge runs the telephony voice-agent bridge: an HTTP server
// exposing the carrier's call-setup webhook and media WebSocket, wired to
// the configured STT/LLM/TTS collaborators.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/voxrelay/callbridge/pkg/config"
	"github.com/voxrelay/callbridge/pkg/dialogue"
	"github.com/voxrelay/callbridge/pkg/httpapi"
	"github.com/voxrelay/callbridge/pkg/pipeline"
	"github.com/voxrelay/callbridge/pkg/providers"
	"github.com/voxrelay/callbridge/pkg/ratelimit"
	"github.com/voxrelay/callbridge/pkg/telemetry"
	"github.com/voxrelay/callbridge/pkg/transport"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := telemetry.NewLogger(slog.LevelInfo)

	metrics, err := telemetry.NewMetrics("callbridge")
	if err != nil {
		logger.Error("telemetry disabled: failed to construct metrics", "error", err)
	}

	stt, err := providers.NewSTT(cfg.STTProvider, apiKeyFor(cfg, cfg.STTProvider), "")
	if err != nil {
		log.Fatalf("providers: %v", err)
	}
	llm, err := providers.NewLLM(cfg.LLMProvider, apiKeyFor(cfg, cfg.LLMProvider), "")
	if err != nil {
		log.Fatalf("providers: %v", err)
	}
	tts, err := providers.NewTTS(cfg.TTSProvider, cfg.LokutorAPIKey)
	if err != nil {
		log.Fatalf("providers: %v", err)
	}

	logger.Info("collaborators configured", "stt", stt.Name(), "llm", llm.Name(), "tts", tts.Name())

	limiter := ratelimit.New(
		cfg.MaxConcurrentCalls,
		time.Duration(cfg.RateLimitWindowMinutes)*time.Minute,
		cfg.RateLimitCallsPerWin,
	)

	pipelineCfg := pipeline.Config{
		VADAggressiveness:      cfg.VADAggressiveness,
		VADSilenceMS:           cfg.VADSilenceMS,
		VADMinSpeechMS:         cfg.VADMinSpeechMS,
		MaxUtteranceLengthMS:   cfg.MaxUtteranceLengthMS,
		EchoCancellationMS:     cfg.EchoCancellationMS,
		MinAudioLevelThreshold: cfg.MinAudioLevelThreshold,
	}

	dialogueCfg := dialogue.DefaultConfig()
	dialogueCfg.Language = cfg.Language
	dialogueCfg.Voice = cfg.Voice
	dialogueCfg.AgentResponseDelayMS = cfg.AgentResponseDelayMS
	dialogueCfg.MinMeaningfulWords = cfg.MinMeaningfulWords
	dialogueCfg.MaxCallDurationS = cfg.MaxCallDurationS

	server := httpapi.New(
		limiter,
		transport.Providers{STT: stt, LLM: llm, TTS: tts},
		pipelineCfg,
		dialogueCfg,
		logger,
		metrics,
		cfg.PublicBaseURL,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	addr := fmt.Sprintf(":%d", cfg.ListenPort)
	logger.Info("callbridge starting", "addr", addr)

	errCh := make(chan error, 1)
	go func() {
		if err := server.Echo().Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		if err != nil {
			logger.Error("server exited with error", "error", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		logger.Info("shutting down")
		shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Echo().Shutdown(shutCtx); err != nil {
			logger.Error("graceful shutdown failed", "error", err)
		}
		if metrics != nil {
			_ = metrics.Shutdown(shutCtx)
		}
	}
}

func apiKeyFor(cfg *config.Config, provider string) string {
	switch provider {
	case providers.LLMAnthropic:
		return cfg.AnthropicAPIKey
	case providers.LLMGoogle:
		return cfg.GoogleAPIKey
	case providers.STTDeepgram:
		return cfg.DeepgramAPIKey
	case providers.STTAssemblyAI:
		return cfg.AssemblyAIAPIKey
	case providers.LLMGroq: // shared with STTGroq
		return cfg.GroqAPIKey
	case providers.STTOpenAI: // shared with LLMOpenAI
		return cfg.OpenAIAPIKey
	default:
		return cfg.OpenAIAPIKey
	}
}
