// Package transport owns the carrier-facing media WebSocket: it parses the
// start/media/mark/stop control protocol, re-frames inbound audio to exactly
// 320 PCM bytes, and is the only component that writes to the socket.
package transport

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/voxrelay/callbridge/pkg/codec"
	"github.com/voxrelay/callbridge/pkg/core"
	"github.com/voxrelay/callbridge/pkg/dialogue"
	"github.com/voxrelay/callbridge/pkg/errs"
	"github.com/voxrelay/callbridge/pkg/pipeline"
	"github.com/voxrelay/callbridge/pkg/ratelimit"
	"github.com/voxrelay/callbridge/pkg/telemetry"
	"github.com/voxrelay/callbridge/pkg/vad"
)

func vadDetectorFor(cfg pipeline.Config) vad.Detector {
	return vad.NewEnergy(cfg.VADAggressiveness, cfg.MinAudioLevelThreshold)
}

type startPayload struct {
	StreamSid string `json:"streamSid"`
	From      string `json:"from,omitempty"`
	To        string `json:"to,omitempty"`
}

type mediaPayload struct {
	Payload string `json:"payload"`
}

type markPayload struct {
	Name string `json:"name"`
}

type inboundEnvelope struct {
	Event string        `json:"event"`
	Start *startPayload `json:"start,omitempty"`
	Media *mediaPayload `json:"media,omitempty"`
	Mark  *markPayload  `json:"mark,omitempty"`
}

type outboundMedia struct {
	Event     string       `json:"event"`
	StreamSid string       `json:"streamSid"`
	Media     mediaPayload `json:"media"`
}

type outboundMark struct {
	Event     string      `json:"event"`
	StreamSid string      `json:"streamSid"`
	Mark      markPayload `json:"mark"`
}

type outboundClear struct {
	Event     string `json:"event"`
	StreamSid string `json:"streamSid"`
}

// Providers bundles the collaborator implementations a call needs. It is
// constructed once at process startup and handed to every Adapter.
type Providers struct {
	STT core.STTProvider
	LLM core.LLMProvider
	TTS core.TTSProvider
}

// Adapter owns one carrier WebSocket connection for the lifetime of a call.
type Adapter struct {
	conn       *websocket.Conn
	callerID   string
	limiter    *ratelimit.Limiter
	providers  Providers
	pipelineCfg pipeline.Config
	engineCfg  dialogue.Config
	log        core.Logger
	metrics    *telemetry.Metrics

	writeMu   sync.Mutex
	streamSid string

	tail []byte // undersized leftover PCM from the previous media event

	session *core.Session
	pipe    *pipeline.Pipeline
	engine  *dialogue.Engine
	cancel  context.CancelFunc
}

// New constructs an Adapter around an accepted carrier WebSocket connection.
// limiter.Release is called exactly once when the call ends, however it ends.
func New(conn *websocket.Conn, callerID string, limiter *ratelimit.Limiter, providers Providers, pipelineCfg pipeline.Config, engineCfg dialogue.Config, log core.Logger, metrics *telemetry.Metrics) *Adapter {
	if log == nil {
		log = core.NoOpLogger{}
	}
	return &Adapter{
		conn:        conn,
		callerID:    callerID,
		limiter:     limiter,
		providers:   providers,
		pipelineCfg: pipelineCfg,
		engineCfg:   engineCfg,
		log:         log,
		metrics:     metrics,
	}
}

// Run reads control frames until the carrier sends stop, the connection
// errors, or ctx is cancelled. It always releases the rate-limiter slot
// exactly once before returning.
func (a *Adapter) Run(ctx context.Context) error {
	defer a.limiter.Release()
	defer a.teardown()

	for {
		var env inboundEnvelope
		if err := wsjson.Read(ctx, a.conn, &env); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("%w: %v", errs.ErrTransport, err)
		}

		switch env.Event {
		case "start":
			if env.Start == nil {
				return fmt.Errorf("%w: start event missing start payload", errs.ErrTransport)
			}
			a.handleStart(ctx, *env.Start)
		case "media":
			if env.Media == nil {
				continue
			}
			a.handleMedia(*env.Media)
		case "mark":
			if env.Mark == nil {
				continue
			}
			a.handleMark(*env.Mark)
		case "stop":
			return nil
		}
	}
}

func (a *Adapter) handleStart(ctx context.Context, start startPayload) {
	a.streamSid = start.StreamSid
	a.session = core.NewSession(start.StreamSid, start.From, start.To, a.engineCfg.Voice, a.engineCfg.Language)

	a.pipe = pipeline.New(a.session, a, vadDetectorFor(a.pipelineCfg), a.pipelineCfg, a.log)
	a.engine = dialogue.New(a.session, a.pipe, a.providers.STT, a.providers.LLM, a.providers.TTS, a.engineCfg, a.log)
	a.pipe.SetInterruptionSink(a.engine)
	if a.metrics != nil {
		a.pipe.SetMetrics(a.metrics)
		a.engine.SetMetrics(a.metrics)
	}

	callCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	go a.pipe.Run(callCtx)
	go a.engine.Run(callCtx, a.pipe.Utterances())
}

func (a *Adapter) handleMedia(media mediaPayload) {
	if a.pipe == nil {
		return
	}
	ulaw, err := base64.StdEncoding.DecodeString(media.Payload)
	if err != nil {
		a.log.Warn("dropping media frame with invalid base64 payload", "error", err)
		return
	}
	pcm := codec.DecodeUlaw(ulaw)
	var frames [][]byte
	frames, a.tail = reframe(append(a.tail, pcm...))
	for _, frame := range frames {
		a.pipe.PushFrame(frame)
	}
}

// reframe splits buf into as many exact pipeline.FrameBytes-sized frames as
// it holds, returning the undersized remainder to be prefixed onto the next
// media event's PCM.
func reframe(buf []byte) (frames [][]byte, tail []byte) {
	for len(buf) >= pipeline.FrameBytes {
		frame := make([]byte, pipeline.FrameBytes)
		copy(frame, buf[:pipeline.FrameBytes])
		frames = append(frames, frame)
		buf = buf[pipeline.FrameBytes:]
	}
	tail = append([]byte(nil), buf...)
	return frames, tail
}

func (a *Adapter) handleMark(mark markPayload) {
	if a.session == nil {
		return
	}
	if mark.Name == "agent_speech_complete" || mark.Name == "agent_speech_stopped" {
		a.session.SetState(core.StateListening)
	}
}

func (a *Adapter) teardown() {
	if a.cancel != nil {
		a.cancel()
	}
	if a.engine != nil {
		a.engine.Close()
	}
}

// SendMedia implements pipeline.Sender: writes are serialized on writeMu so
// concurrent callers never interleave WebSocket frames.
func (a *Adapter) SendMedia(ulawChunk []byte) error {
	a.writeMu.Lock()
	defer a.writeMu.Unlock()
	msg := outboundMedia{
		Event:     "media",
		StreamSid: a.streamSid,
		Media:     mediaPayload{Payload: base64.StdEncoding.EncodeToString(ulawChunk)},
	}
	return a.write(msg)
}

func (a *Adapter) SendMark(name string) error {
	a.writeMu.Lock()
	defer a.writeMu.Unlock()
	msg := outboundMark{
		Event:     "mark",
		StreamSid: a.streamSid,
		Mark:      markPayload{Name: name},
	}
	return a.write(msg)
}

func (a *Adapter) SendClear() error {
	a.writeMu.Lock()
	defer a.writeMu.Unlock()
	msg := outboundClear{Event: "clear", StreamSid: a.streamSid}
	return a.write(msg)
}

func (a *Adapter) write(v interface{}) error {
	body, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if err := a.conn.Write(context.Background(), websocket.MessageText, body); err != nil {
		return fmt.Errorf("%w: %v", errs.ErrTransport, err)
	}
	return nil
}
