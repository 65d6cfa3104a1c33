// Package tts adapts third-party speech synthesis vendors to core.TTSProvider,
// which returns a WAV container so every caller extracts PCM the same way.
package tts

import (
	"context"
	"fmt"
	"net/url"
	"sync"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/voxrelay/callbridge/pkg/codec"
	"github.com/voxrelay/callbridge/pkg/core"
)

// Lokutor streams synthesis over a persistent websocket connection,
// reconnecting lazily after any read/write failure.
type Lokutor struct {
	apiKey string
	host   string
	scheme string
	mu     sync.Mutex
	conn   *websocket.Conn
}

func NewLokutor(apiKey string) *Lokutor {
	return &Lokutor{
		apiKey: apiKey,
		host:   "api.lokutor.com",
		scheme: "wss",
	}
}

func (t *Lokutor) Name() string { return "lokutor_tts" }

func (t *Lokutor) getConn(ctx context.Context) (*websocket.Conn, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.conn != nil {
		return t.conn, nil
	}

	u := url.URL{Scheme: t.scheme, Host: t.host, Path: "/ws", RawQuery: "api_key=" + t.apiKey}
	conn, _, err := websocket.Dial(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to lokutor: %w", err)
	}
	t.conn = conn
	return conn, nil
}

// Synthesize streams text to completion and wraps the resulting PCM in a
// WAV container at sampleRate.
func (t *Lokutor) Synthesize(ctx context.Context, text string, voice core.Voice, lang core.Language, sampleRate int) ([]byte, error) {
	var pcm []byte
	err := t.StreamSynthesize(ctx, text, voice, lang, func(chunk []byte) error {
		pcm = append(pcm, chunk...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return codec.WrapWAV(pcm, sampleRate), nil
}

// StreamSynthesize hands raw PCM chunks to onChunk as they arrive, for
// callers that want to start playback before synthesis completes.
func (t *Lokutor) StreamSynthesize(ctx context.Context, text string, voice core.Voice, lang core.Language, onChunk func([]byte) error) error {
	conn, err := t.getConn(ctx)
	if err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	req := map[string]interface{}{
		"text":    text,
		"voice":   string(voice),
		"lang":    string(lang),
		"speed":   1.05,
		"steps":   5,
		"version": "versa-1.0",
	}

	if err := wsjson.Write(ctx, conn, req); err != nil {
		t.conn = nil
		conn.Close(websocket.StatusAbnormalClosure, "failed to write json")
		return fmt.Errorf("failed to send synthesis request: %w", err)
	}

	for {
		messageType, payload, err := conn.Read(ctx)
		if err != nil {
			t.conn = nil
			conn.Close(websocket.StatusAbnormalClosure, "failed to read")
			return fmt.Errorf("failed to read from lokutor: %w", err)
		}

		switch messageType {
		case websocket.MessageBinary:
			if err := onChunk(payload); err != nil {
				return err
			}
		case websocket.MessageText:
			msg := string(payload)
			if msg == "EOS" {
				return nil
			}
			if len(msg) >= 4 && msg[:4] == "ERR:" {
				return fmt.Errorf("lokutor error: %s", msg)
			}
		}
	}
}

func (t *Lokutor) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn != nil {
		err := t.conn.Close(websocket.StatusNormalClosure, "")
		t.conn = nil
		return err
	}
	return nil
}
