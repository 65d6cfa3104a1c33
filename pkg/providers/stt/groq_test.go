package stt

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/voxrelay/callbridge/pkg/core"
)

func TestGroqTranscribe(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer test-key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Write([]byte(`{"text":"groq transcription"}`))
	}))
	defer server.Close()

	s := NewGroq("test-key", "whisper-large-v3")
	s.url = server.URL
	s.client = server.Client()

	result, err := s.Transcribe(context.Background(), []byte{0}, core.LanguageEn, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != "groq transcription" {
		t.Errorf("expected 'groq transcription', got '%s'", result)
	}
	if s.Name() != "groq_stt" {
		t.Errorf("expected groq_stt, got %s", s.Name())
	}
}
