package tts

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/voxrelay/callbridge/pkg/codec"
	"github.com/voxrelay/callbridge/pkg/core"
)

func newTestLokutorServer(pcmChunks [][]byte) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "closing")

		var req map[string]interface{}
		if err := wsjson.Read(r.Context(), conn, &req); err != nil {
			return
		}
		for _, chunk := range pcmChunks {
			conn.Write(r.Context(), websocket.MessageBinary, chunk)
		}
		conn.Write(r.Context(), websocket.MessageText, []byte("EOS"))
	}))
}

func TestLokutorStreamSynthesize(t *testing.T) {
	server := newTestLokutorServer([][]byte{{1, 2, 3}, {4, 5, 6}})
	defer server.Close()

	tts := NewLokutor("test-key")
	tts.host = strings.TrimPrefix(server.URL, "http://")
	tts.scheme = "ws"

	var audio []byte
	err := tts.StreamSynthesize(context.Background(), "hello", core.Voice("f1"), core.LanguageEn, func(chunk []byte) error {
		audio = append(audio, chunk...)
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(audio) != 6 {
		t.Errorf("expected 6 bytes, got %d", len(audio))
	}
	if tts.Name() != "lokutor_tts" {
		t.Errorf("expected lokutor_tts, got %s", tts.Name())
	}
	tts.Close()
}

func TestLokutorSynthesizeWrapsWAV(t *testing.T) {
	server := newTestLokutorServer([][]byte{{1, 2, 3, 4}})
	defer server.Close()

	tts := NewLokutor("test-key")
	tts.host = strings.TrimPrefix(server.URL, "http://")
	tts.scheme = "ws"
	defer tts.Close()

	wav, err := tts.Synthesize(context.Background(), "hello", core.Voice("f1"), core.LanguageEn, 8000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	pcm, err := codec.UnwrapWAV(wav)
	if err != nil {
		t.Fatalf("expected a valid WAV container, got error: %v", err)
	}
	if len(pcm) != 4 {
		t.Fatalf("expected 4 bytes of PCM, got %d", len(pcm))
	}
}
