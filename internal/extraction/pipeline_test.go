package extraction

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jason-c-dev/harmonia-memory/internal/llm"
)

func newStubLLM(t *testing.T, reply string) *llm.Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/tags":
			w.WriteHeader(http.StatusOK)
		case "/api/chat":
			w.Write([]byte(`{"model":"stub","message":{"role":"assistant","content":` + encodeJSONString(reply) + `},"done":true}`))
		}
	}))
	t.Cleanup(srv.Close)
	c := llm.New(llm.Config{BaseURL: srv.URL, HealthInterval: time.Hour})
	t.Cleanup(c.Close)
	return c
}

func encodeJSONString(s string) string {
	out := `"`
	for _, r := range s {
		switch r {
		case '"':
			out += `\"`
		case '\n':
			out += `\n`
		default:
			out += string(r)
		}
	}
	return out + `"`
}

func TestRunSkipsTrivialMessages(t *testing.T) {
	p := New(newStubLLM(t, `{"memories":[]}`))
	res, err := p.Run(context.Background(), Request{UserID: "alice", Message: "ok"})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if !res.Skipped {
		t.Error("expected a short, low-content message to be skipped")
	}
}

func TestRunExtractsAndScoresCandidates(t *testing.T) {
	reply := `{"memories":[{"content":"works at Acme Corp as a software engineer","memory_type":"factual","confidence":0.9,"entities":["Acme Corp"],"temporal_info":"","context":"","relationships":[]}],"extraction_confidence":0.9,"reasoning":"clear factual statement"}`
	p := New(newStubLLM(t, reply))

	res, err := p.Run(context.Background(), Request{
		UserID:  "alice",
		Message: "I just started working at Acme Corp as a software engineer last week.",
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if res.Skipped {
		t.Fatal("did not expect this message to be skipped")
	}
	if len(res.Memories) != 1 {
		t.Fatalf("expected 1 surviving candidate, got %d", len(res.Memories))
	}
	if res.Memories[0].Factors.FinalScore <= 0 {
		t.Error("expected a positive final confidence score")
	}
}

func TestRunFiltersBelowThresholdCandidates(t *testing.T) {
	reply := `{"memories":[{"content":"a","memory_type":"factual","confidence":0.05,"entities":[],"temporal_info":"","context":"","relationships":[]}],"extraction_confidence":0.2,"reasoning":"weak"}`
	p := New(newStubLLM(t, reply))

	res, err := p.Run(context.Background(), Request{
		UserID:  "alice",
		Message: "Something vague happened, maybe, not sure what though honestly.",
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(res.Memories) != 0 {
		t.Errorf("expected low-confidence candidate to be filtered out, got %d", len(res.Memories))
	}
}

func TestRunRejectsUnknownMemoryType(t *testing.T) {
	reply := `{"memories":[{"content":"something","memory_type":"not_a_type","confidence":0.9}],"extraction_confidence":0.9,"reasoning":""}`
	p := New(newStubLLM(t, reply))

	_, err := p.Run(context.Background(), Request{
		UserID:  "alice",
		Message: "A clear, specific, detailed statement with real content in it.",
	})
	if err == nil {
		t.Fatal("expected an error for an unrecognized memory_type in the response")
	}
}

func TestRunMergesSweptRelationships(t *testing.T) {
	reply := `{"memories":[{"content":"sister Emma is visiting this weekend","memory_type":"relational","confidence":0.9,"entities":["Emma"],"temporal_info":"this weekend","context":"","relationships":[]}],"extraction_confidence":0.9,"reasoning":"family visit"}`
	p := New(newStubLLM(t, reply))

	res, err := p.Run(context.Background(), Request{
		UserID:  "alice",
		Message: "My sister Emma is visiting this weekend and staying through Monday.",
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(res.Memories) != 1 {
		t.Fatalf("expected 1 surviving candidate, got %d", len(res.Memories))
	}

	var foundFamily bool
	for _, r := range res.Memories[0].Relationships {
		if len(r) >= 6 && r[:6] == "family" {
			foundFamily = true
		}
	}
	if !foundFamily {
		t.Errorf("expected a swept family relationship to be merged in, got %v", res.Memories[0].Relationships)
	}
}

func TestParseResponseStripsCodeFences(t *testing.T) {
	raw := "```json\n{\"memories\":[],\"extraction_confidence\":0.5,\"reasoning\":\"none\"}\n```"
	parsed, err := parseResponse(raw)
	if err != nil {
		t.Fatalf("parseResponse failed: %v", err)
	}
	if parsed.ExtractionConfidence != 0.5 {
		t.Errorf("expected extraction_confidence 0.5, got %v", parsed.ExtractionConfidence)
	}
}
