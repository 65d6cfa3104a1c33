package stt

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/voxrelay/callbridge/pkg/core"
	"github.com/voxrelay/callbridge/pkg/errs"
)

func TestOpenAITranscribe(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer test-key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Write([]byte(`{"text":"transcribed text"}`))
	}))
	defer server.Close()

	s := NewOpenAI("test-key", "")
	s.url = server.URL
	s.client = server.Client()

	result, err := s.Transcribe(context.Background(), []byte{0, 0, 0, 0}, core.LanguageEn, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != "transcribed text" {
		t.Errorf("expected 'transcribed text', got '%s'", result)
	}
	if s.Name() != "openai_stt" {
		t.Errorf("expected openai_stt, got %s", s.Name())
	}
}

func TestOpenAITranscribeRateLimit(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	s := NewOpenAI("test-key", "")
	s.url = server.URL
	s.client = server.Client()

	_, err := s.Transcribe(context.Background(), []byte{0, 0}, core.LanguageEn, "")
	if err != errs.ErrCollaboratorRateLimit {
		t.Fatalf("expected ErrCollaboratorRateLimit, got %v", err)
	}
}
