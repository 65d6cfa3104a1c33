// Package providers selects concrete STT/LLM/TTS vendor implementations by
// name, so the call-setup wiring in cmd/callbridge doesn't construct vendor
// clients itself.
package providers

import (
	"fmt"

	"github.com/voxrelay/callbridge/pkg/core"
	"github.com/voxrelay/callbridge/pkg/providers/llm"
	"github.com/voxrelay/callbridge/pkg/providers/stt"
	"github.com/voxrelay/callbridge/pkg/providers/tts"
)

// Keys identify a provider implementation by name, resolved from
// configuration (e.g. STT_PROVIDER=deepgram).
const (
	STTOpenAI     = "openai"
	STTGroq       = "groq"
	STTDeepgram   = "deepgram"
	STTAssemblyAI = "assemblyai"

	LLMOpenAI    = "openai"
	LLMAnthropic = "anthropic"
	LLMGoogle    = "google"
	LLMGroq      = "groq"

	TTSLokutor = "lokutor"
)

// NewSTT constructs the named STT provider. apiKey is the vendor credential;
// model may be empty to accept the provider's default.
func NewSTT(name, apiKey, model string) (core.STTProvider, error) {
	switch name {
	case STTOpenAI, "":
		return stt.NewOpenAI(apiKey, model), nil
	case STTGroq:
		return stt.NewGroq(apiKey, model), nil
	case STTDeepgram:
		return stt.NewDeepgram(apiKey), nil
	case STTAssemblyAI:
		return stt.NewAssemblyAI(apiKey), nil
	default:
		return nil, fmt.Errorf("providers: unknown STT provider %q", name)
	}
}

// NewLLM constructs the named LLM provider.
func NewLLM(name, apiKey, model string) (core.LLMProvider, error) {
	switch name {
	case LLMOpenAI, "":
		return llm.NewOpenAI(apiKey, model), nil
	case LLMAnthropic:
		return llm.NewAnthropic(apiKey, model), nil
	case LLMGoogle:
		return llm.NewGoogle(apiKey, model), nil
	case LLMGroq:
		return llm.NewGroq(apiKey, model), nil
	default:
		return nil, fmt.Errorf("providers: unknown LLM provider %q", name)
	}
}

// NewTTS constructs the named TTS provider.
func NewTTS(name, apiKey string) (core.TTSProvider, error) {
	switch name {
	case TTSLokutor, "":
		return tts.NewLokutor(apiKey), nil
	default:
		return nil, fmt.Errorf("providers: unknown TTS provider %q", name)
	}
}
