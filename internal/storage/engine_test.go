package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jason-c-dev/harmonia-memory/internal/vector"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	e, err := Open(path)
	if err != nil {
		t.Fatalf("failed to open engine: %v", err)
	}
	t.Cleanup(func() { e.Close() })
	return e
}

func TestOpenCreatesSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "test.db")
	e, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer e.Close()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Error("database file was not created")
	}

	stats, err := e.GetStats()
	if err != nil {
		t.Fatalf("GetStats failed: %v", err)
	}
	if stats.SchemaVersion != SchemaVersion {
		t.Errorf("expected schema version %d, got %d", SchemaVersion, stats.SchemaVersion)
	}
}

func TestCreateGetMemory(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	m := &Memory{
		ID:              "mem-1",
		Content:         "likes coffee in the morning",
		Category:        "preference",
		ConfidenceScore: 0.8,
	}
	if err := e.CreateMemory(ctx, m); err != nil {
		t.Fatalf("CreateMemory failed: %v", err)
	}

	got, err := e.GetMemory(ctx, "mem-1")
	if err != nil {
		t.Fatalf("GetMemory failed: %v", err)
	}
	if got == nil {
		t.Fatal("expected memory, got nil")
	}
	if got.Content != m.Content {
		t.Errorf("expected content %q, got %q", m.Content, got.Content)
	}
	if !got.IsActive {
		t.Error("expected memory to be active")
	}
}

func TestCreateMemoryDuplicate(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	m := &Memory{ID: "dup-1", Content: "first", Category: "factual", ConfidenceScore: 0.5}
	if err := e.CreateMemory(ctx, m); err != nil {
		t.Fatalf("first create failed: %v", err)
	}
	err := e.CreateMemory(ctx, &Memory{ID: "dup-1", Content: "second", Category: "factual", ConfidenceScore: 0.5})
	if err == nil {
		t.Fatal("expected duplicate error")
	}
}

func TestUpdateMemoryWritesAudit(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	m := &Memory{ID: "upd-1", Content: "original content", Category: "factual", ConfidenceScore: 0.5}
	if err := e.CreateMemory(ctx, m); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	newContent := "updated content"
	if err := e.UpdateMemory(ctx, "upd-1", UpdateFields{Content: &newContent, UpdatedBy: "tester"}); err != nil {
		t.Fatalf("update failed: %v", err)
	}

	got, err := e.GetMemory(ctx, "upd-1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.Content != newContent {
		t.Errorf("expected content %q, got %q", newContent, got.Content)
	}
}

func TestUpdateMemoryNotFound(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	newContent := "whatever"
	err := e.UpdateMemory(ctx, "missing", UpdateFields{Content: &newContent})
	if err == nil {
		t.Fatal("expected not_found error")
	}
}

func TestDeleteMemorySoftAndHard(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	if err := e.CreateMemory(ctx, &Memory{ID: "del-1", Content: "a", Category: "factual", ConfidenceScore: 0.5}); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if err := e.DeleteMemory(ctx, "del-1", true); err != nil {
		t.Fatalf("soft delete failed: %v", err)
	}
	got, err := e.GetMemory(ctx, "del-1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got != nil {
		t.Error("expected soft-deleted memory to be invisible to GetMemory")
	}

	if err := e.ReactivateMemory(ctx, "del-1"); err != nil {
		t.Fatalf("reactivate failed: %v", err)
	}
	got, err = e.GetMemory(ctx, "del-1")
	if err != nil {
		t.Fatalf("get after reactivate failed: %v", err)
	}
	if got == nil {
		t.Fatal("expected memory to be visible again after reactivation")
	}

	if err := e.DeleteMemory(ctx, "del-1", false); err != nil {
		t.Fatalf("hard delete failed: %v", err)
	}
	if err := e.ReactivateMemory(ctx, "del-1"); err == nil {
		t.Error("expected not_found after hard delete")
	}
}

func TestListMemoriesFilters(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	for i, cat := range []string{"factual", "preference", "factual"} {
		id := "list-" + string(rune('a'+i))
		if err := e.CreateMemory(ctx, &Memory{ID: id, Content: "content " + id, Category: cat, ConfidenceScore: 0.6}); err != nil {
			t.Fatalf("create failed: %v", err)
		}
	}

	results, err := e.ListMemories(ctx, Filters{Category: "factual", ActiveOnly: true}, Page{})
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(results) != 2 {
		t.Errorf("expected 2 factual memories, got %d", len(results))
	}
}

func TestSearchMemoriesFTS(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	if err := e.CreateMemory(ctx, &Memory{ID: "s-1", Content: "enjoys hiking in the mountains", Category: "preference", ConfidenceScore: 0.7}); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if err := e.CreateMemory(ctx, &Memory{ID: "s-2", Content: "works as a software engineer", Category: "factual", ConfidenceScore: 0.7}); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	results, err := e.SearchMemories(ctx, "hiking", Filters{ActiveOnly: true}, Page{})
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	if results[0].Memory.ID != "s-1" {
		t.Errorf("expected s-1, got %s", results[0].Memory.ID)
	}
}

func TestCheckpointAndStats(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	if err := e.CreateMemory(ctx, &Memory{ID: "chk-1", Content: "a", Category: "factual", ConfidenceScore: 0.5}); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if err := e.Checkpoint(); err != nil {
		t.Fatalf("checkpoint failed: %v", err)
	}
	stats, err := e.GetStats()
	if err != nil {
		t.Fatalf("stats failed: %v", err)
	}
	if stats.ActiveCount != 1 {
		t.Errorf("expected 1 active memory, got %d", stats.ActiveCount)
	}
}

// fakeVectorStore is an in-memory vector.Store used to prove the engine
// actually routes embeddings through the store, not just the column.
type fakeVectorStore struct {
	embeddings map[string][]byte
}

func newFakeVectorStore() *fakeVectorStore {
	return &fakeVectorStore{embeddings: make(map[string][]byte)}
}

func (s *fakeVectorStore) Put(userID, memoryID string, embedding []byte) error {
	s.embeddings[userID+"/"+memoryID] = embedding
	return nil
}

func (s *fakeVectorStore) Get(userID, memoryID string) ([]byte, bool) {
	e, ok := s.embeddings[userID+"/"+memoryID]
	return e, ok
}

func TestCreateMemoryMirrorsEmbeddingToVectorStore(t *testing.T) {
	e := newTestEngine(t)
	store := newFakeVectorStore()
	e.SetVectorStore(store)
	ctx := context.Background()

	m := &Memory{ID: "vec-1", Content: "a", Category: "factual", ConfidenceScore: 0.5, Embedding: []byte{1, 2, 3}}
	if err := e.CreateMemory(ctx, m); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	got, ok := store.Get(e.userID, "vec-1")
	if !ok {
		t.Fatal("expected embedding to be mirrored into the vector store")
	}
	if string(got) != string([]byte{1, 2, 3}) {
		t.Errorf("unexpected embedding in vector store: %v", got)
	}
}

func TestGetMemoryFallsBackToVectorStore(t *testing.T) {
	e := newTestEngine(t)
	store := newFakeVectorStore()
	e.SetVectorStore(store)
	ctx := context.Background()

	if err := e.CreateMemory(ctx, &Memory{ID: "vec-2", Content: "a", Category: "factual", ConfidenceScore: 0.5}); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if err := store.Put(e.userID, "vec-2", []byte{9, 9}); err != nil {
		t.Fatalf("store put failed: %v", err)
	}

	got, err := e.GetMemory(ctx, "vec-2")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if string(got.Embedding) != string([]byte{9, 9}) {
		t.Errorf("expected embedding fallback from vector store, got %v", got.Embedding)
	}
}

func TestNoopVectorStoreIsDefault(t *testing.T) {
	var s vector.Store = vector.NewNoopStore()
	if err := s.Put("u", "m", []byte{1}); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if _, ok := s.Get("u", "m"); ok {
		t.Error("expected NoopStore to report every lookup as a miss")
	}
}

func TestMemoryTimestampOptional(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	ts := time.Now().Add(-time.Hour)
	m := &Memory{ID: "ts-1", Content: "a", Category: "factual", ConfidenceScore: 0.5, Timestamp: &ts}
	if err := e.CreateMemory(ctx, m); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	got, err := e.GetMemory(ctx, "ts-1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.Timestamp == nil {
		t.Fatal("expected timestamp to round-trip")
	}
}
