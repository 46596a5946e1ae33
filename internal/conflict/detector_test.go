package conflict

import (
	"testing"
	"time"

	"github.com/jason-c-dev/harmonia-memory/internal/storage"
)

func TestSimilarityIdenticalContent(t *testing.T) {
	d := NewDetector()
	s := d.Similarity("I love coffee", "I love coffee")
	if s != 1.0 {
		t.Errorf("expected similarity 1.0 for identical content, got %v", s)
	}
}

func TestSimilarityUnrelatedContent(t *testing.T) {
	d := NewDetector()
	s := d.Similarity("I love coffee in the morning", "The quarterly report is due Friday")
	if s > 0.3 {
		t.Errorf("expected low similarity for unrelated content, got %v", s)
	}
}

func TestDetectExactDuplicate(t *testing.T) {
	d := NewDetector()
	existing := &storage.Memory{ID: "e1", Content: "I work at Acme Corp", IsActive: true}
	newMem := &storage.Memory{ID: "n1", Content: "I work at Acme Corp"}

	conflicts := d.Detect(newMem, []*storage.Memory{existing})
	if len(conflicts) != 1 {
		t.Fatalf("expected 1 conflict, got %d", len(conflicts))
	}
	if conflicts[0].Type != ExactDuplicate {
		t.Errorf("expected exact_duplicate, got %s", conflicts[0].Type)
	}
}

func TestDetectContradiction(t *testing.T) {
	d := NewDetector()
	existing := &storage.Memory{ID: "e1", Content: "I love coffee in the morning", IsActive: true}
	newMem := &storage.Memory{ID: "n1", Content: "I don't love coffee in the morning"}

	conflicts := d.Detect(newMem, []*storage.Memory{existing})
	if len(conflicts) == 0 {
		t.Fatal("expected at least one conflict")
	}
	found := false
	for _, c := range conflicts {
		if c.Type == Contradiction {
			found = true
		}
	}
	if !found {
		t.Errorf("expected a contradiction conflict, got %v", conflicts)
	}
}

func TestDetectSkipsInactiveMemories(t *testing.T) {
	d := NewDetector()
	existing := &storage.Memory{ID: "e1", Content: "identical content here", IsActive: false}
	newMem := &storage.Memory{ID: "n1", Content: "identical content here"}

	conflicts := d.Detect(newMem, []*storage.Memory{existing})
	if len(conflicts) != 0 {
		t.Errorf("expected no conflicts against an inactive memory, got %d", len(conflicts))
	}
}

func TestSortBySeverityThenSimilarity(t *testing.T) {
	conflicts := []Conflict{
		{Type: RelatedMemory, Severity: SeverityLow, SimilarityScore: 0.5},
		{Type: Contradiction, Severity: SeverityHigh, SimilarityScore: 0.7},
		{Type: UpdateNeeded, Severity: SeverityMedium, SimilarityScore: 0.9},
		{Type: ExactDuplicate, Severity: SeverityLow, SimilarityScore: 0.99},
	}
	sortBySeverityThenSimilarity(conflicts)

	if conflicts[0].Severity != SeverityHigh {
		t.Fatalf("expected highest severity first, got %v", conflicts[0].Severity)
	}
	if conflicts[1].Severity != SeverityMedium {
		t.Fatalf("expected medium severity second, got %v", conflicts[1].Severity)
	}
	// Both remaining are SeverityLow; higher similarity should come first.
	if conflicts[2].SimilarityScore < conflicts[3].SimilarityScore {
		t.Error("expected ties broken by similarity descending")
	}
}

func TestHasTemporalOverlap(t *testing.T) {
	now := time.Now()
	soon := now.Add(time.Hour)
	far := now.Add(10 * time.Hour)

	a := &storage.Memory{Timestamp: &now}
	b := &storage.Memory{Timestamp: &soon}
	c := &storage.Memory{Timestamp: &far}

	if !hasTemporalOverlap(a, b) {
		t.Error("expected overlap within 2 hours")
	}
	if hasTemporalOverlap(a, c) {
		t.Error("expected no overlap across 10 hours")
	}
}

func TestSummarize(t *testing.T) {
	conflicts := []Conflict{
		{Type: ExactDuplicate, Severity: SeverityLow, SimilarityScore: 0.96, SuggestedAction: "update_timestamp"},
		{Type: Contradiction, Severity: SeverityCritical, SimilarityScore: 0.8, SuggestedAction: "resolve_contradiction"},
	}
	summary := Summarize(conflicts)
	if summary.Total != 2 {
		t.Errorf("expected total 2, got %d", summary.Total)
	}
	if summary.CriticalCount != 1 {
		t.Errorf("expected 1 critical conflict, got %d", summary.CriticalCount)
	}
	if summary.HighestSimilarity != 0.96 {
		t.Errorf("expected highest similarity 0.96, got %v", summary.HighestSimilarity)
	}
}
