package llm

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/voxrelay/callbridge/pkg/core"
)

func TestGroqComplete(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer test-key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Write([]byte(`{"choices":[{"message":{"content":"{\"action\":\"respond\",\"text\":\"hello from groq\"}"}}]}`))
	}))
	defer server.Close()

	l := NewGroq("test-key", "llama3-70b")
	l.url = server.URL
	l.client = server.Client()

	reply, err := l.Complete(context.Background(), "", []core.Turn{{Role: core.RoleUser, Content: "hi"}}, 0.8, 200)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reply.Text != "hello from groq" {
		t.Fatalf("unexpected reply: %+v", reply)
	}
	if l.Name() != "groq_llm" {
		t.Errorf("expected groq_llm, got %s", l.Name())
	}
}
