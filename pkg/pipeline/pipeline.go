// Package pipeline implements the audio pipeline: frame-level VAD, utterance
// segmentation, barge-in detection, and the interruptible outbound send
// loop.
package pipeline

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/voxrelay/callbridge/pkg/codec"
	"github.com/voxrelay/callbridge/pkg/core"
	"github.com/voxrelay/callbridge/pkg/vad"
)

// FrameBytes is the exact size of one 20ms/8kHz/16-bit-mono PCM frame.
const FrameBytes = 320

// outboundChunkBytes is the μ-law chunk size sent per outbound media event
// (~20ms at 8kHz).
const outboundChunkBytes = 160

const maxPauseToleranceFrames = 10

const frameDuration = 20 * time.Millisecond

// chunkTick is the pause between outbound chunks; also the maximum latency
// before a barge-in interrupts an in-flight send.
const chunkTick = 10 * time.Millisecond

// Sender is the wire-level outbound surface the transport adapter provides.
// The pipeline is the only caller of these methods; the adapter owns the
// actual socket write.
type Sender interface {
	SendMedia(ulawChunk []byte) error
	SendMark(name string) error
	SendClear() error
}

// InterruptionSink is the callback the dialogue engine implements so the
// pipeline can signal barge-in without importing the dialogue package,
// avoiding a bidirectional ownership cycle.
type InterruptionSink interface {
	Interrupt()
}

// Metrics is the subset of telemetry.Metrics the pipeline reports against.
// Left unset, the pipeline simply doesn't record anything.
type Metrics interface {
	BargeIn(ctx context.Context)
	UtteranceEmitted(ctx context.Context)
}

// Config holds the pipeline's tunables.
type Config struct {
	VADAggressiveness      int
	VADSilenceMS           int
	VADMinSpeechMS         int
	MaxUtteranceLengthMS   int
	EchoCancellationMS     int
	MinAudioLevelThreshold float64
}

// DefaultConfig returns the pipeline's tunable defaults.
func DefaultConfig() Config {
	return Config{
		VADAggressiveness:      1,
		VADSilenceMS:           600,
		VADMinSpeechMS:         150,
		MaxUtteranceLengthMS:   10000,
		EchoCancellationMS:     100,
		MinAudioLevelThreshold: 0.015,
	}
}

// Utterance is a completed caller turn handed to the dialogue engine.
type Utterance struct {
	PCM      []byte
	Duration time.Duration
}

// Pipeline is the per-call audio pipeline. Construct with New and start the
// inbound worker with Run; feed frames with PushFrame.
type Pipeline struct {
	session *core.Session
	sender  Sender
	sink    InterruptionSink
	detector vad.Detector
	echo    *EchoGuard
	cfg     Config
	log     core.Logger
	metrics Metrics

	frameCh     chan []byte
	utteranceCh chan Utterance

	// Owned exclusively by the outbound send path; read without locking by
	// the inbound path for coarse timing decisions.
	lastAgentSpeechAt atomic.Int64 // unix nano
	stopTransmission  atomic.Bool
	isSendingAudio    atomic.Bool

	// segmentation state, touched only by the Run goroutine.
	inSpeech          bool
	buf               []byte
	pauseCount        int
	silentFramesBeyond int
	totalFrames       int
}

// New constructs a Pipeline. sink may be nil until the engine is ready to
// receive barge-in notifications; SetInterruptionSink wires it in afterward
// to avoid a construction-order cycle with the dialogue engine.
func New(session *core.Session, sender Sender, detector vad.Detector, cfg Config, log core.Logger) *Pipeline {
	if log == nil {
		log = core.NoOpLogger{}
	}
	return &Pipeline{
		session:     session,
		sender:      sender,
		detector:    detector,
		echo:        NewEchoGuard(time.Duration(cfg.EchoCancellationMS) * time.Millisecond * 10),
		cfg:         cfg,
		log:         log,
		frameCh:     make(chan []byte, 50),
		utteranceCh: make(chan Utterance, 4),
	}
}

// SetInterruptionSink wires the dialogue engine's barge-in callback in after
// construction.
func (p *Pipeline) SetInterruptionSink(sink InterruptionSink) {
	p.sink = sink
}

// SetMetrics wires a metrics recorder in after construction, mirroring
// SetInterruptionSink. Safe to leave unset.
func (p *Pipeline) SetMetrics(metrics Metrics) {
	p.metrics = metrics
}

// Utterances returns the channel of completed caller turns.
func (p *Pipeline) Utterances() <-chan Utterance {
	return p.utteranceCh
}

// PushFrame enqueues a 320-byte PCM frame from the transport adapter.
// Overflow drops the oldest queued frame rather than blocking the reader:
// liveness matters more than any single dropped frame.
func (p *Pipeline) PushFrame(frame []byte) {
	select {
	case p.frameCh <- frame:
		return
	default:
	}
	select {
	case <-p.frameCh:
	default:
	}
	select {
	case p.frameCh <- frame:
	default:
	}
}

// Run processes inbound frames until ctx is cancelled. It flushes any
// buffered utterance when the queue has been idle for ~100ms while in
// speech.
func (p *Pipeline) Run(ctx context.Context) {
	const idleFlush = 100 * time.Millisecond
	timer := time.NewTimer(idleFlush)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case frame := <-p.frameCh:
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			p.processFrame(frame)
			timer.Reset(idleFlush)
		case <-timer.C:
			if p.inSpeech {
				p.flush()
			}
			timer.Reset(idleFlush)
		}
	}
}

func (p *Pipeline) processFrame(frame []byte) {
	rms := vad.RMS(frame)
	meaningful := rms >= p.cfg.MinAudioLevelThreshold && p.detector.IsSpeech(frame)

	if p.session.State() == core.StateSpeaking && meaningful {
		if p.sink != nil {
			p.sink.Interrupt()
		}
		if p.metrics != nil {
			p.metrics.BargeIn(context.Background())
		}
		p.StopSpeaking()
	}

	if p.sinceLastSpeech() < time.Duration(p.cfg.EchoCancellationMS)*time.Millisecond {
		return
	}
	if p.echo.IsEcho(frame) {
		return
	}

	p.segment(frame, meaningful)
}

func (p *Pipeline) sinceLastSpeech() time.Duration {
	last := p.lastAgentSpeechAt.Load()
	if last == 0 {
		return time.Hour // no audio ever sent: never suppress
	}
	return time.Since(time.Unix(0, last))
}

func (p *Pipeline) segment(frame []byte, meaningful bool) {
	if !p.inSpeech {
		if !meaningful {
			return
		}
		p.inSpeech = true
		p.buf = append([]byte(nil), frame...)
		p.pauseCount = 0
		p.silentFramesBeyond = 0
		p.totalFrames = 1
		return
	}

	p.totalFrames++
	if meaningful {
		p.buf = append(p.buf, frame...)
		p.pauseCount = 0
		p.silentFramesBeyond = 0
	} else {
		p.pauseCount++
		if p.pauseCount <= maxPauseToleranceFrames {
			p.buf = append(p.buf, frame...)
		} else {
			p.silentFramesBeyond++
		}
	}

	silenceMS := p.silentFramesBeyond * int(frameDuration/time.Millisecond)
	totalMS := p.totalFrames * int(frameDuration/time.Millisecond)

	if silenceMS > p.cfg.VADSilenceMS || totalMS > p.cfg.MaxUtteranceLengthMS {
		p.flush()
	}
}

func (p *Pipeline) flush() {
	durationMS := p.totalFrames * int(frameDuration/time.Millisecond)
	if durationMS > p.cfg.VADMinSpeechMS {
		select {
		case p.utteranceCh <- Utterance{PCM: p.buf, Duration: time.Duration(durationMS) * time.Millisecond}:
			if p.metrics != nil {
				p.metrics.UtteranceEmitted(context.Background())
			}
		default:
			p.log.Warn("utterance queue full, dropping completed utterance")
		}
	}
	p.resetSegmentation()
}

func (p *Pipeline) resetSegmentation() {
	p.inSpeech = false
	p.buf = nil
	p.pauseCount = 0
	p.silentFramesBeyond = 0
	p.totalFrames = 0
}

// Speak streams pcm to the carrier in interruptible 160-byte μ-law chunks.
// It sets the session to SPEAKING and, on normal completion, emits an
// agent_speech_complete mark. A concurrent StopSpeaking (barge-in) aborts
// within one chunk tick and suppresses the mark.
func (p *Pipeline) Speak(ctx context.Context, pcm []byte) error {
	p.session.SetState(core.StateSpeaking)
	p.touchLastSpeech()
	p.stopTransmission.Store(false)
	p.isSendingAudio.Store(true)
	defer p.isSendingAudio.Store(false)

	ulaw := codec.EncodeUlaw(pcm)

	completed := true
	for off := 0; off < len(ulaw); off += outboundChunkBytes {
		if p.stopTransmission.Load() {
			completed = false
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		end := off + outboundChunkBytes
		if end > len(ulaw) {
			end = len(ulaw)
		}
		chunk := ulaw[off:end]
		if err := p.sender.SendMedia(chunk); err != nil {
			return err
		}
		p.echo.RecordPlayed(codec.DecodeUlaw(chunk))
		p.touchLastSpeech()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(chunkTick):
		}
	}

	if completed && !p.stopTransmission.Load() {
		return p.sender.SendMark("agent_speech_complete")
	}
	return nil
}

func (p *Pipeline) touchLastSpeech() {
	p.lastAgentSpeechAt.Store(time.Now().UnixNano())
}

// StopSpeaking aborts any in-flight Speak, drains the carrier's playback
// buffer with silence, and returns the session to LISTENING. Idempotent:
// calling it while nothing is speaking is harmless.
func (p *Pipeline) StopSpeaking() {
	p.stopTransmission.Store(true)

	silence := codec.SilenceUlaw(outboundChunkBytes)
	for i := 0; i < 5; i++ {
		if err := p.sender.SendMedia(silence); err != nil {
			p.log.Warn("failed to flush silence frame", "error", err)
			break
		}
		p.touchLastSpeech()
	}

	if err := p.sender.SendClear(); err != nil {
		p.log.Warn("failed to send clear event", "error", err)
	}
	if err := p.sender.SendMark("agent_speech_stopped"); err != nil {
		p.log.Warn("failed to send agent_speech_stopped mark", "error", err)
	}
	p.session.SetState(core.StateListening)
	p.echo.Clear()
}

// IsSendingAudio reports whether the outbound send loop is currently active.
func (p *Pipeline) IsSendingAudio() bool {
	return p.isSendingAudio.Load()
}
