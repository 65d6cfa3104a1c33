// Package dialogue implements the dialogue engine: it consumes completed
// utterances from the audio pipeline, drives the STT/LLM/TTS collaborators,
// coalesces rapid-fire partial utterances, and enforces conversation policy
// (hangup, max call duration).
package dialogue

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/voxrelay/callbridge/pkg/codec"
	"github.com/voxrelay/callbridge/pkg/core"
	"github.com/voxrelay/callbridge/pkg/errs"
	"github.com/voxrelay/callbridge/pkg/pipeline"
)

// Speaker is the subset of the audio pipeline the engine drives. Pipeline
// satisfies it; tests substitute a fake.
type Speaker interface {
	Speak(ctx context.Context, pcm []byte) error
}

// CollaboratorMetrics is the subset of telemetry.Metrics the engine reports
// against. Left unset, the engine simply doesn't record anything.
type CollaboratorMetrics interface {
	CollaboratorCall(ctx context.Context, kind string, ok bool, seconds float64)
}

// Config holds the engine's tunables.
type Config struct {
	SystemPrompt         string
	GreetingText         string
	Voice                core.Voice
	Language             core.Language
	Temperature          float64
	MaxTokens            int
	STTPrompt            string
	AgentResponseDelayMS int
	MinMeaningfulWords   int
	MaxCallDurationS     int
	UtteranceTimeout     time.Duration
}

// DefaultConfig returns the engine's tunable defaults.
func DefaultConfig() Config {
	return Config{
		GreetingText:         "Hello, this is Jennifer. How can I help you today?",
		Voice:                "default",
		Language:             core.LanguageEn,
		Temperature:          0.8,
		MaxTokens:            200,
		AgentResponseDelayMS: 100,
		MinMeaningfulWords:   2,
		MaxCallDurationS:     600,
		UtteranceTimeout:     3 * time.Second,
	}
}

// Engine is the per-call dialogue engine. It implements pipeline.InterruptionSink
// so the audio pipeline can signal barge-in directly.
type Engine struct {
	session *core.Session
	speak   Speaker
	stt     core.STTProvider
	llm     core.LLMProvider
	tts     core.TTSProvider
	cfg     Config
	log     core.Logger
	metrics CollaboratorMetrics

	interrupted    atomic.Bool
	interruptMu    sync.Mutex
	interruptTimer *time.Timer

	pendingMu       sync.Mutex
	pendingText     string
	lastUtteranceAt time.Time

	stopFlag    atomic.Bool
	stopOnce    sync.Once
	stopCh      chan struct{}
	hangupMu    sync.Mutex
	hangupTimer *time.Timer
}

// New constructs an Engine wired to the given collaborators and the audio
// pipeline's Speak entry point.
func New(session *core.Session, speak Speaker, stt core.STTProvider, llm core.LLMProvider, tts core.TTSProvider, cfg Config, log core.Logger) *Engine {
	if log == nil {
		log = core.NoOpLogger{}
	}
	return &Engine{
		session: session,
		speak:   speak,
		stt:     stt,
		llm:     llm,
		tts:     tts,
		cfg:     cfg,
		log:     log,
		stopCh:  make(chan struct{}),
	}
}

// SetMetrics wires a metrics recorder in after construction. Safe to leave
// unset.
func (e *Engine) SetMetrics(metrics CollaboratorMetrics) {
	e.metrics = metrics
}

func (e *Engine) recordCollaboratorCall(ctx context.Context, kind string, ok bool, start time.Time) {
	if e.metrics == nil {
		return
	}
	e.metrics.CollaboratorCall(ctx, kind, ok, time.Since(start).Seconds())
}

func (e *Engine) requestStop() {
	e.stopFlag.Store(true)
	e.stopOnce.Do(func() { close(e.stopCh) })
}

var _ pipeline.InterruptionSink = (*Engine)(nil)

// Interrupt is the barge-in callback invoked by the audio pipeline. Rapid
// repeated barge-in re-arms the 100ms auto-clear window rather than leaving
// an earlier timer to fire mid-turn.
func (e *Engine) Interrupt() {
	e.interrupted.Store(true)
	e.session.SetState(core.StateListening)

	e.interruptMu.Lock()
	if e.interruptTimer != nil {
		e.interruptTimer.Stop()
	}
	e.interruptTimer = time.AfterFunc(100*time.Millisecond, func() {
		e.interrupted.Store(false)
	})
	e.interruptMu.Unlock()
}

// StopRequested reports whether the engine has scheduled or reached
// termination (hangup action or max call duration).
func (e *Engine) StopRequested() bool {
	return e.stopFlag.Load()
}

// Close cancels any pending timers. The transport adapter calls this when
// tearing down a call so a stray hangup or auto-clear timer doesn't fire
// against a discarded engine.
func (e *Engine) Close() {
	e.interruptMu.Lock()
	if e.interruptTimer != nil {
		e.interruptTimer.Stop()
	}
	e.interruptMu.Unlock()

	e.hangupMu.Lock()
	if e.hangupTimer != nil {
		e.hangupTimer.Stop()
	}
	e.hangupMu.Unlock()
}

// Run drives the greeting, then the utterance/idle loop, until ctx is
// cancelled, the call reaches MAX_CALL_DURATION_S, or a hangup action fires.
func (e *Engine) Run(ctx context.Context, utterances <-chan pipeline.Utterance) {
	e.greet(ctx)

	maxDuration := time.Duration(e.cfg.MaxCallDurationS) * time.Second
	ticker := time.NewTicker(e.cfg.UtteranceTimeout)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-e.stopCh:
			return
		case utt, ok := <-utterances:
			if !ok {
				return
			}
			e.handleUtterance(ctx, utt)
		case <-ticker.C:
			e.onIdleTick(ctx)
		}

		if e.session.Duration() >= maxDuration {
			e.requestStop()
			return
		}
	}
}

func (e *Engine) greet(ctx context.Context) {
	if e.interrupted.Load() {
		return
	}
	start := time.Now()
	wav, err := e.tts.Synthesize(ctx, e.cfg.GreetingText, e.cfg.Voice, e.cfg.Language, 8000)
	e.recordCollaboratorCall(ctx, "tts", err == nil, start)
	if err != nil {
		e.log.Error("greeting synthesis failed", "error", err)
		return
	}
	pcm, err := codec.UnwrapWAV(wav)
	if err != nil {
		e.log.Error("greeting audio not a valid WAV container", "error", err)
		return
	}
	if e.interrupted.Load() {
		return
	}
	if err := e.speak.Speak(ctx, pcm); err != nil {
		e.log.Warn("greeting playback aborted", "error", err)
	}
}

func (e *Engine) handleUtterance(ctx context.Context, utt pipeline.Utterance) {
	e.session.SetState(core.StateThinking)

	wav := codec.WrapWAV(utt.PCM, 8000)
	start := time.Now()
	transcript, err := e.stt.Transcribe(ctx, wav, e.cfg.Language, e.cfg.STTPrompt)
	e.recordCollaboratorCall(ctx, "stt", err == nil, start)
	if err != nil {
		e.log.Warn("transcription failed, dropping turn", "error", err)
		e.session.SetState(core.StateListening)
		return
	}

	if rejectTranscript(transcript, e.cfg.MinMeaningfulWords) {
		e.log.Debug("transcript rejected", "transcript", transcript)
		e.session.SetState(core.StateListening)
		return
	}

	merged, ready := e.coalesce(strings.TrimSpace(transcript))
	if !ready {
		e.session.SetState(core.StateListening)
		return
	}

	if e.interrupted.Load() {
		e.interrupted.Store(false)
		e.session.SetState(core.StateListening)
		return
	}

	e.turn(ctx, merged)
}

func (e *Engine) onIdleTick(ctx context.Context) {
	e.pendingMu.Lock()
	if e.pendingText == "" || time.Since(e.lastUtteranceAt) < e.cfg.UtteranceTimeout {
		e.pendingMu.Unlock()
		return
	}
	text := e.pendingText
	e.pendingText = ""
	e.pendingMu.Unlock()

	e.turn(ctx, text)
}

// coalesce merges text with any stashed pending utterance. Whether this
// utterance is ready to send is gated purely on elapsed time since the
// last accepted one, not on whether anything is currently pending: a
// fresh utterance arriving inside the timeout window is always accepted
// (merged with pendingText when there is one, passed through as-is when
// there isn't); only an utterance arriving after the window, and too
// short or unterminated to stand alone, gets stashed to wait for a
// continuation.
func (e *Engine) coalesce(text string) (merged string, ready bool) {
	e.pendingMu.Lock()
	defer e.pendingMu.Unlock()

	now := time.Now()
	if now.Sub(e.lastUtteranceAt) < e.cfg.UtteranceTimeout {
		merged = strings.TrimSpace(e.pendingText + " " + text)
		e.pendingText = ""
		e.lastUtteranceAt = now
		return merged, true
	}

	if !endsWithSentencePunctuation(text) && wordCount(text) < 5 {
		e.pendingText = text
		e.lastUtteranceAt = now
		return "", false
	}

	e.pendingText = ""
	e.lastUtteranceAt = now
	return text, true
}

func (e *Engine) turn(ctx context.Context, text string) {
	e.session.SetState(core.StateThinking)

	e.session.AddTurn(core.RoleUser, text)
	history := e.session.History()
	start := time.Now()
	reply, err := e.llm.Complete(ctx, e.cfg.SystemPrompt, history, e.cfg.Temperature, e.cfg.MaxTokens)
	e.recordCollaboratorCall(ctx, "llm", err == nil, start)
	if errors.Is(err, errs.ErrCollaboratorRateLimit) {
		e.log.Warn("LLM rate limited, dropping turn", "error", err)
		e.session.SetState(core.StateListening)
		return
	}
	if err != nil {
		e.log.Error("LLM turn failed, falling back to canned reply", "error", err)
		reply = core.LLMReply{Action: "respond", Text: "Sorry, could you repeat that?"}
	}

	e.session.AddTurn(core.RoleAssistant, reply.Text)

	select {
	case <-ctx.Done():
		return
	case <-time.After(time.Duration(e.cfg.AgentResponseDelayMS) * time.Millisecond):
	}

	if len(strings.TrimSpace(reply.Text)) > 2 {
		e.speakReply(ctx, reply.Text)
	} else {
		e.session.SetState(core.StateListening)
	}

	if reply.Action == "hangup" {
		e.scheduleHangup(3 * time.Second)
	}
}

func (e *Engine) speakReply(ctx context.Context, text string) {
	start := time.Now()
	wav, err := e.tts.Synthesize(ctx, text, e.cfg.Voice, e.cfg.Language, 8000)
	e.recordCollaboratorCall(ctx, "tts", err == nil, start)
	if err != nil {
		e.log.Warn("reply synthesis failed, dropping turn", "error", err)
		e.session.SetState(core.StateListening)
		return
	}
	pcm, err := codec.UnwrapWAV(wav)
	if err != nil {
		e.log.Error("reply audio not a valid WAV container", "error", err)
		e.session.SetState(core.StateListening)
		return
	}
	if e.interrupted.Load() {
		e.session.SetState(core.StateListening)
		return
	}
	if err := e.speak.Speak(ctx, pcm); err != nil {
		e.log.Warn("reply playback aborted", "error", err)
	}
}

func (e *Engine) scheduleHangup(d time.Duration) {
	e.hangupMu.Lock()
	defer e.hangupMu.Unlock()
	if e.hangupTimer != nil {
		e.hangupTimer.Stop()
	}
	e.hangupTimer = time.AfterFunc(d, e.requestStop)
}
