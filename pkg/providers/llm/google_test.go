package llm

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/voxrelay/callbridge/pkg/core"
)

func TestGoogleComplete(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.RawQuery, "key=test-key") {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"{\"action\":\"respond\",\"text\":\"hello from google\"}"}]}}]}`))
	}))
	defer server.Close()

	l := NewGoogle("test-key", "gemini")
	l.url = server.URL
	l.client = server.Client()

	reply, err := l.Complete(context.Background(), "", []core.Turn{{Role: core.RoleUser, Content: "hi"}}, 0.8, 200)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reply.Text != "hello from google" {
		t.Fatalf("unexpected reply: %+v", reply)
	}
}
