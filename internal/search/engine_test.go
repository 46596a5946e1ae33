package search

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/jason-c-dev/harmonia-memory/internal/storage"
)

func newTestEngine(t *testing.T) (*Engine, *storage.Engine) {
	t.Helper()
	db, err := storage.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open storage: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewEngine(db), db
}

func seedMemory(t *testing.T, db *storage.Engine, id, content, category string, confidence float64) {
	t.Helper()
	if err := db.CreateMemory(context.Background(), &storage.Memory{
		ID: id, Content: content, Category: category, ConfidenceScore: confidence,
	}); err != nil {
		t.Fatalf("failed to seed memory %s: %v", id, err)
	}
}

func TestParseQuery(t *testing.T) {
	cases := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "  hiking  ", want: "hiking"},
		{in: `"favorite coffee shop"`, want: `"favorite coffee shop"`},
		{in: "coffee's (great)", want: "coffees great"},
		{in: "", wantErr: true},
		{in: "   ", wantErr: true},
	}
	for _, c := range cases {
		got, err := ParseQuery(c.in)
		if c.wantErr {
			if err == nil {
				t.Errorf("ParseQuery(%q): expected error", c.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseQuery(%q): unexpected error %v", c.in, err)
			continue
		}
		if got != c.want {
			t.Errorf("ParseQuery(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestParseQueryRejectsOverlong(t *testing.T) {
	long := make([]byte, maxQueryLength+1)
	for i := range long {
		long[i] = 'a'
	}
	if _, err := ParseQuery(string(long)); err == nil {
		t.Error("expected an error for an overlong query")
	}
}

func TestBuildFTSQuery(t *testing.T) {
	if got := buildFTSQuery("hiking"); got != "hiking" {
		t.Errorf("single token query should pass through unchanged, got %q", got)
	}
	got := buildFTSQuery("hiking trip")
	want := `(hiking OR trip) OR "hiking trip"`
	if got != want {
		t.Errorf("buildFTSQuery(%q) = %q, want %q", "hiking trip", got, want)
	}
}

func TestSearchRanksByRelevance(t *testing.T) {
	eng, db := newTestEngine(t)
	ctx := context.Background()

	seedMemory(t, db, "s1", "Enjoys hiking in the mountains every weekend", "preference", 0.8)
	seedMemory(t, db, "s2", "Works as a software engineer at a startup", "factual", 0.8)
	seedMemory(t, db, "s3", "Hiking and camping are favorite weekend activities", "preference", 0.8)

	page, err := eng.Search(ctx, "hiking", Options{})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if page.Total != 2 {
		t.Fatalf("expected 2 matches for 'hiking', got %d", page.Total)
	}
	for _, r := range page.Results {
		if r.Memory.ID == "s2" {
			t.Error("did not expect the unrelated memory to match")
		}
	}
}

func TestSearchAppliesConfidenceFilter(t *testing.T) {
	eng, db := newTestEngine(t)
	ctx := context.Background()

	seedMemory(t, db, "c1", "likes strong espresso", "preference", 0.3)
	seedMemory(t, db, "c2", "likes strong espresso in the morning", "preference", 0.9)

	page, err := eng.Search(ctx, "espresso", Options{MinConfidence: 0.5})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if page.Total != 1 {
		t.Fatalf("expected 1 result above the confidence floor, got %d", page.Total)
	}
	if page.Results[0].Memory.ID != "c2" {
		t.Errorf("expected c2, got %s", page.Results[0].Memory.ID)
	}
}

func TestListSortsByRequestedColumn(t *testing.T) {
	eng, db := newTestEngine(t)
	ctx := context.Background()

	seedMemory(t, db, "l1", "first memory", "factual", 0.3)
	seedMemory(t, db, "l2", "second memory", "factual", 0.9)

	page, err := eng.List(ctx, Options{SortBy: "confidence_score", SortDesc: true})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(page.Results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(page.Results))
	}
	if page.Results[0].Memory.ID != "l2" {
		t.Errorf("expected highest-confidence memory first, got %s", page.Results[0].Memory.ID)
	}
}

func TestPaginationHasMore(t *testing.T) {
	eng, db := newTestEngine(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		seedMemory(t, db, "p"+string(rune('0'+i)), "paginated memory content", "factual", 0.5)
	}

	page, err := eng.List(ctx, Options{Limit: 2, Offset: 0})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(page.Results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(page.Results))
	}
	if !page.HasMore {
		t.Error("expected HasMore to be true with 5 total and a page size of 2")
	}
}

func TestExportFormats(t *testing.T) {
	eng, db := newTestEngine(t)
	ctx := context.Background()
	seedMemory(t, db, "x1", "exported memory content", "factual", 0.7)

	for _, format := range []ExportFormat{ExportJSON, ExportCSV, ExportMarkdown, ExportText} {
		out, err := eng.Export(ctx, ExportOptions{Format: format})
		if err != nil {
			t.Fatalf("Export(%s) failed: %v", format, err)
		}
		if out == "" {
			t.Errorf("Export(%s) produced empty output", format)
		}
	}
}

func TestSnippetEllipsizesLongContent(t *testing.T) {
	content := ""
	for i := 0; i < 60; i++ {
		content += "word "
	}
	content += "needle"
	for i := 0; i < 60; i++ {
		content += " word"
	}

	s := snippet(content, []string{"needle"})
	if len(s) >= len(content) {
		t.Error("expected snippet to be shorter than the full content")
	}
}
