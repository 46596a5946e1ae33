package conflict

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/jason-c-dev/harmonia-memory/internal/storage"
)

func newTestResolver(t *testing.T) (*Resolver, *storage.Engine) {
	t.Helper()
	eng, err := storage.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open storage: %v", err)
	}
	t.Cleanup(func() { eng.Close() })
	return NewResolver(eng), eng
}

func mustCreate(t *testing.T, eng *storage.Engine, m *storage.Memory) {
	t.Helper()
	if err := eng.CreateMemory(context.Background(), m); err != nil {
		t.Fatalf("failed to seed memory %s: %v", m.ID, err)
	}
}

func TestResolveExactDuplicateUpdatesTimestamp(t *testing.T) {
	r, eng := newTestResolver(t)
	ctx := context.Background()

	existing := &storage.Memory{ID: "e1", Content: "works at Acme", Category: "factual", ConfidenceScore: 0.8, IsActive: true}
	mustCreate(t, eng, existing)

	c := Conflict{
		Type: ExactDuplicate, Severity: SeverityLow,
		NewMemory: &storage.Memory{ID: "n1", Content: "works at Acme"},
		ExistingMemory: existing, SimilarityScore: 0.99, Confidence: 0.95,
	}

	res, err := r.Resolve(ctx, "user-1", c, nil)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if res.Action != ActionUpdated {
		t.Errorf("expected updated action, got %s", res.Action)
	}
	if res.AuditInfo == nil {
		t.Error("expected an audit entry to be recorded")
	}
}

func TestResolveMergePersistsCombinedContent(t *testing.T) {
	r, eng := newTestResolver(t)
	ctx := context.Background()

	existing := &storage.Memory{ID: "e2", Content: "Enjoys hiking on weekends.", Category: "preference", ConfidenceScore: 0.6, IsActive: true}
	mustCreate(t, eng, existing)

	c := Conflict{
		Type: MergeCandidate, Severity: SeverityMedium,
		NewMemory: &storage.Memory{ID: "n2", Content: "Enjoys hiking and camping on weekends.", ConfidenceScore: 0.7},
		ExistingMemory: existing, SimilarityScore: 0.65, Confidence: 0.75,
	}

	res, err := r.Resolve(ctx, "user-1", c, nil)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if res.Action != ActionMerged {
		t.Fatalf("expected merged action, got %s", res.Action)
	}

	got, err := eng.GetMemory(ctx, "e2")
	if err != nil {
		t.Fatalf("GetMemory failed: %v", err)
	}
	if got.Content == "Enjoys hiking on weekends." {
		t.Error("expected merged content to differ from original")
	}
}

func TestRollbackRestoresMergedContent(t *testing.T) {
	r, eng := newTestResolver(t)
	ctx := context.Background()

	existing := &storage.Memory{ID: "e3", Content: "Original statement.", Category: "factual", ConfidenceScore: 0.6, IsActive: true}
	mustCreate(t, eng, existing)

	c := Conflict{
		Type: MergeCandidate, Severity: SeverityMedium,
		NewMemory: &storage.Memory{ID: "n3", Content: "A different statement.", ConfidenceScore: 0.7},
		ExistingMemory: existing, SimilarityScore: 0.65, Confidence: 0.75,
	}

	res, err := r.Resolve(ctx, "user-1", c, nil)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	ok, err := r.Rollback(ctx, res.AuditInfo.ID)
	if err != nil {
		t.Fatalf("Rollback failed: %v", err)
	}
	if !ok {
		t.Fatal("expected rollback to succeed")
	}

	got, err := eng.GetMemory(ctx, "e3")
	if err != nil {
		t.Fatalf("GetMemory failed: %v", err)
	}
	if got.Content != "Original statement." {
		t.Errorf("expected rollback to restore original content, got %q", got.Content)
	}
}

func TestRollbackRestoresArchivedMemory(t *testing.T) {
	r, eng := newTestResolver(t)
	ctx := context.Background()

	existing := &storage.Memory{ID: "e4", Content: "now unemployed", Category: "factual", ConfidenceScore: 0.5, IsActive: true}
	mustCreate(t, eng, existing)

	c := Conflict{
		Type: UpdateNeeded, Severity: SeverityHigh,
		NewMemory: &storage.Memory{ID: "n4", Content: "now works at Acme", ConfidenceScore: 0.9},
		ExistingMemory: existing, SimilarityScore: 0.65, Confidence: 0.9,
	}

	res, err := r.Resolve(ctx, "user-1", c, DefaultUserPreferences())
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if res.Action != ActionReplaced {
		t.Fatalf("expected replaced action, got %s", res.Action)
	}

	if got, _ := eng.GetMemory(ctx, "e4"); got != nil {
		t.Fatal("expected existing memory to be archived (inactive)")
	}

	ok, err := r.Rollback(ctx, res.AuditInfo.ID)
	if err != nil || !ok {
		t.Fatalf("Rollback failed: ok=%v err=%v", ok, err)
	}

	if got, _ := eng.GetMemory(ctx, "e4"); got == nil {
		t.Error("expected archived memory to be restored by rollback")
	}
}

func TestResolveAllCapsMergesPerBatch(t *testing.T) {
	r, eng := newTestResolver(t)
	ctx := context.Background()

	prefs := DefaultUserPreferences()
	prefs.MaxMergeAttempts = 1

	var conflicts []Conflict
	for i := 0; i < 3; i++ {
		id := "m" + string(rune('0'+i))
		existing := &storage.Memory{ID: id, Content: "base content " + id, Category: "factual", ConfidenceScore: 0.5, IsActive: true}
		mustCreate(t, eng, existing)
		conflicts = append(conflicts, Conflict{
			Type: MergeCandidate, Severity: SeverityMedium,
			NewMemory:      &storage.Memory{ID: "new-" + id, Content: "extra detail for " + id},
			ExistingMemory: existing, SimilarityScore: 0.65, Confidence: 0.7,
		})
	}

	resolutions, err := r.ResolveAll(ctx, "user-1", conflicts, prefs)
	if err != nil {
		t.Fatalf("ResolveAll failed: %v", err)
	}
	if len(resolutions) != 3 {
		t.Fatalf("expected 3 resolutions, got %d", len(resolutions))
	}

	merged := 0
	for _, res := range resolutions {
		if res.Action == ActionMerged {
			merged++
		}
	}
	if merged == 0 {
		t.Error("expected at least one merge before the cap kicked in")
	}
	if merged == len(resolutions) {
		t.Error("expected the merge cap to downgrade later merge candidates to user_choose")
	}
}

func TestAuditTrailFilterAndLimit(t *testing.T) {
	r, eng := newTestResolver(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		id := "a" + string(rune('0'+i))
		existing := &storage.Memory{ID: id, Content: "content", Category: "factual", ConfidenceScore: 0.5, IsActive: true}
		mustCreate(t, eng, existing)
		c := Conflict{
			Type: ExactDuplicate, Severity: SeverityLow,
			NewMemory: &storage.Memory{ID: "dup-" + id, Content: "content"},
			ExistingMemory: existing, SimilarityScore: 0.99, Confidence: 0.95,
		}
		if _, err := r.Resolve(ctx, "user-1", c, nil); err != nil {
			t.Fatalf("Resolve failed: %v", err)
		}
	}

	entries := r.AuditTrail("user-1", 1)
	if len(entries) != 1 {
		t.Fatalf("expected limit to cap results at 1, got %d", len(entries))
	}

	stats := r.Statistics()
	if stats.TotalResolutions < 2 {
		t.Errorf("expected at least 2 resolutions recorded, got %d", stats.TotalResolutions)
	}
}
