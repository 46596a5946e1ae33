package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jason-c-dev/harmonia-memory/internal/extraction"
	"github.com/jason-c-dev/harmonia-memory/internal/llm"
	"github.com/jason-c-dev/harmonia-memory/internal/memory"
	"github.com/jason-c-dev/harmonia-memory/internal/memtype"
	"github.com/jason-c-dev/harmonia-memory/internal/ratelimit"
	"github.com/jason-c-dev/harmonia-memory/internal/router"
	"github.com/jason-c-dev/harmonia-memory/pkg/config"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.DataDir = t.TempDir()
	cfg.RestAPI.CORS = false
	cfg.RateLimit.Enabled = false

	rtr := router.New(cfg.DataDir)
	llmClient := llm.New(llm.Config{BaseURL: "http://127.0.0.1:1", MaxRetries: 1})
	pipeline := extraction.New(llmClient)
	mgr := memory.NewManager(rtr, pipeline)

	s := &Server{
		config:    cfg,
		router:    rtr,
		llmClient: llmClient,
		pipeline:  pipeline,
		manager:   mgr,
		limiter:   ratelimit.NewLimiter(&ratelimit.Config{Enabled: false}),
	}
	s.setupRouter()
	t.Cleanup(func() { llmClient.Close() })
	return s
}

func doRequest(s *Server, method, path string, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealthSimple(t *testing.T) {
	s := newTestServer(t)
	rec := doRequest(s, http.MethodGet, "/api/v1/health/simple", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	rec := doRequest(s, http.MethodGet, "/api/v1/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp Response
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if !resp.Success {
		t.Error("expected success=true")
	}
}

func TestStoreRejectsMissingFields(t *testing.T) {
	s := newTestServer(t)
	rec := doRequest(s, http.MethodPost, "/api/v1/memory/store", []byte(`{}`))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestGetMemoryRequiresUserID(t *testing.T) {
	s := newTestServer(t)
	rec := doRequest(s, http.MethodGet, "/api/v1/memory/some-id", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestGetMemoryNotFound(t *testing.T) {
	s := newTestServer(t)
	rec := doRequest(s, http.MethodGet, "/api/v1/memory/missing?user_id=alice", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestStoreThenGetAndDelete(t *testing.T) {
	s := newTestServer(t)

	wr, err := s.manager.Store(context.Background(), memory.StoreRequest{
		UserID:          "alice",
		Content:         "prefers dark mode",
		OriginalMessage: "I prefer dark mode in every app",
		Category:        memtype.Preference,
		ConfidenceScore: 0.9,
		Timestamp:       timePtr(time.Now()),
	})
	if err != nil {
		t.Fatalf("Store failed: %v", err)
	}

	rec := doRequest(s, http.MethodGet, "/api/v1/memory/"+wr.Memory.ID+"?user_id=alice", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = doRequest(s, http.MethodDelete, "/api/v1/memory/"+wr.Memory.ID+"?user_id=alice", nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = doRequest(s, http.MethodGet, "/api/v1/memory/"+wr.Memory.ID+"?user_id=alice", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected soft-deleted memory to read back as not found, got %d", rec.Code)
	}
}

func TestSearchRequiresQuery(t *testing.T) {
	s := newTestServer(t)
	rec := doRequest(s, http.MethodGet, "/api/v1/memory/search?user_id=alice", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestListEmpty(t *testing.T) {
	s := newTestServer(t)
	rec := doRequest(s, http.MethodGet, "/api/v1/memory/list?user_id=alice", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
}

func timePtr(t time.Time) *time.Time { return &t }
