package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jason-c-dev/harmonia-memory/internal/apperr"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func TestCompleteReturnsModelReply(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/tags":
			w.WriteHeader(http.StatusOK)
		case "/api/chat":
			json.NewEncoder(w).Encode(chatResponse{
				Model:   "qwen2.5:3b",
				Message: chatMessage{Role: "assistant", Content: `{"memories":[]}`},
				Done:    true,
			})
		default:
			http.NotFound(w, r)
		}
	})

	c := New(Config{BaseURL: srv.URL, HealthInterval: time.Hour})
	defer c.Close()

	reply, err := c.Complete(context.Background(), "system prompt", "user prompt")
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if reply != `{"memories":[]}` {
		t.Errorf("unexpected reply: %q", reply)
	}

	stats := c.Stats()
	if stats.Requests != 1 || stats.Failures != 0 {
		t.Errorf("expected 1 request and 0 failures, got %+v", stats)
	}
}

func TestCompleteClassifiesModelMissing(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/tags":
			w.WriteHeader(http.StatusOK)
		case "/api/chat":
			w.WriteHeader(http.StatusNotFound)
		}
	})

	c := New(Config{BaseURL: srv.URL, HealthInterval: time.Hour, MaxRetries: 1})
	defer c.Close()

	_, err := c.Complete(context.Background(), "system", "user")
	if err == nil {
		t.Fatal("expected an error for a missing model")
	}
	if apperr.KindOf(err) != apperr.LLMModelMissing {
		t.Errorf("expected LLMModelMissing, got %v", apperr.KindOf(err))
	}
}

func TestCompleteRetriesTransientFailures(t *testing.T) {
	attempts := 0
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/tags":
			w.WriteHeader(http.StatusOK)
		case "/api/chat":
			attempts++
			if attempts < 2 {
				w.WriteHeader(http.StatusInternalServerError)
				return
			}
			json.NewEncoder(w).Encode(chatResponse{Message: chatMessage{Content: "ok"}, Done: true})
		}
	})

	c := New(Config{BaseURL: srv.URL, HealthInterval: time.Hour, MaxRetries: 3})
	defer c.Close()

	reply, err := c.Complete(context.Background(), "system", "user")
	if err != nil {
		t.Fatalf("expected eventual success after a retry, got: %v", err)
	}
	if reply != "ok" {
		t.Errorf("unexpected reply: %q", reply)
	}
	if attempts < 2 {
		t.Errorf("expected at least 2 attempts, got %d", attempts)
	}
}

func TestIsAvailableReflectsHealthProbe(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/tags" {
			w.WriteHeader(http.StatusOK)
		}
	})
	c := New(Config{BaseURL: srv.URL, HealthInterval: time.Hour})
	defer c.Close()

	if !c.IsAvailable() {
		t.Error("expected the client to report available after a successful probe")
	}
}

func TestConfigDefaults(t *testing.T) {
	cfg := Config{}.withDefaults()
	if cfg.BaseURL == "" || cfg.ChatModel == "" || cfg.RequestTimeout <= 0 || cfg.MaxRetries <= 0 {
		t.Errorf("expected sensible defaults, got %+v", cfg)
	}
}
