package memory

import (
	"context"
	"testing"

	"github.com/jason-c-dev/harmonia-memory/internal/memtype"
	"github.com/jason-c-dev/harmonia-memory/internal/router"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	rtr := router.New(t.TempDir())
	return NewManager(rtr, nil)
}

func TestStoreCreatesNewMemory(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	res, err := m.Store(ctx, StoreRequest{
		UserID:          "alice",
		Content:         "enjoys hiking on weekends",
		Category:        memtype.Preference,
		ConfidenceScore: 0.8,
	})
	if err != nil {
		t.Fatalf("Store failed: %v", err)
	}
	if res.Outcome != OutcomeCreated {
		t.Errorf("expected created outcome, got %s", res.Outcome)
	}
	if res.Memory == nil || res.Memory.ID == "" {
		t.Fatal("expected a persisted memory with an assigned id")
	}
}

func TestStoreRejectsInvalidCategory(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	_, err := m.Store(ctx, StoreRequest{
		UserID:          "alice",
		Content:         "something",
		Category:        memtype.Type("not_a_real_type"),
		ConfidenceScore: 0.5,
	})
	if err == nil {
		t.Fatal("expected a validation error for an unrecognized category")
	}
}

func TestStoreRejectsEmptyContent(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	_, err := m.Store(ctx, StoreRequest{
		UserID:          "alice",
		Content:         "   ",
		Category:        memtype.Factual,
		ConfidenceScore: 0.5,
	})
	if err == nil {
		t.Fatal("expected a validation error for empty content")
	}
}

func TestStoreRejectsDuplicateExplicitID(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	req := StoreRequest{
		UserID:          "alice",
		ID:              "fixed-id",
		Content:         "works at Acme",
		Category:        memtype.Factual,
		ConfidenceScore: 0.8,
	}
	if _, err := m.Store(ctx, req); err != nil {
		t.Fatalf("first store failed: %v", err)
	}
	if _, err := m.Store(ctx, req); err == nil {
		t.Fatal("expected a duplicate id error on the second store")
	}
}

func TestStoreDetectsExactDuplicateAndUpdatesTimestamp(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	first, err := m.Store(ctx, StoreRequest{
		UserID:          "alice",
		Content:         "works at Acme Corp",
		Category:        memtype.Factual,
		ConfidenceScore: 0.8,
	})
	if err != nil {
		t.Fatalf("first store failed: %v", err)
	}

	second, err := m.Store(ctx, StoreRequest{
		UserID:          "alice",
		Content:         "works at Acme Corp",
		Category:        memtype.Factual,
		ConfidenceScore: 0.85,
	})
	if err != nil {
		t.Fatalf("second store failed: %v", err)
	}
	if second.Outcome != OutcomeUpdated {
		t.Fatalf("expected updated outcome for an exact duplicate, got %s", second.Outcome)
	}
	if second.Memory == nil || second.Memory.ID != first.Memory.ID {
		t.Error("expected the updated outcome to reference the original memory")
	}
}

func TestStoreIsolatesUsers(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	if _, err := m.Store(ctx, StoreRequest{
		UserID: "alice", Content: "likes tea", Category: memtype.Preference, ConfidenceScore: 0.7,
	}); err != nil {
		t.Fatalf("alice store failed: %v", err)
	}
	res, err := m.Store(ctx, StoreRequest{
		UserID: "bob", Content: "likes tea", Category: memtype.Preference, ConfidenceScore: 0.7,
	})
	if err != nil {
		t.Fatalf("bob store failed: %v", err)
	}
	if res.Outcome != OutcomeCreated {
		t.Errorf("expected bob's identical content to be a fresh create in his own store, got %s", res.Outcome)
	}
}

func TestSanitizeFTSQuery(t *testing.T) {
	got := SanitizeFTSQuery("  coffee's (great) shop^  ", 0)
	want := "coffees great shop"
	if got != want {
		t.Errorf("SanitizeFTSQuery = %q, want %q", got, want)
	}
	if got := SanitizeFTSQuery("abcdef", 3); got != "abc" {
		t.Errorf("expected truncation to 3 runes, got %q", got)
	}
}
