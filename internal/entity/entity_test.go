package entity

import "testing"

func TestExtractPerson(t *testing.T) {
	entities := Extract("My name is Sarah and I work at Google", nil)

	var gotPerson, gotOrg bool
	for _, e := range entities {
		if e.Type == "person" && e.Text == "Sarah" {
			gotPerson = true
		}
		if e.Type == "organization" && e.Text == "Google" {
			gotOrg = true
		}
	}
	if !gotPerson {
		t.Errorf("expected a person entity for Sarah, got %+v", entities)
	}
	if !gotOrg {
		t.Errorf("expected an organization entity for Google, got %+v", entities)
	}
}

func TestExtractEmptyText(t *testing.T) {
	if entities := Extract("   ", nil); entities != nil {
		t.Errorf("expected nil entities for blank text, got %+v", entities)
	}
}

func TestExtractFocusTypesRestrictsSweep(t *testing.T) {
	entities := Extract("My name is Sarah and I work at Google", []string{"organization"})
	for _, e := range entities {
		if e.Type != "organization" {
			t.Errorf("expected only organization entities, got %q", e.Type)
		}
	}
}

func TestExtractDeduplicatesOverlaps(t *testing.T) {
	entities := Extract("Dr. Smith is a person", nil)

	seen := make(map[[2]int]bool)
	for _, e := range entities {
		key := [2]int{e.Start, e.End}
		if seen[key] {
			t.Errorf("expected deduplicated spans, found duplicate at %v", key)
		}
		seen[key] = true
	}
	for i := range entities {
		for j := range entities {
			if i == j {
				continue
			}
			if overlaps(entities[i], entities[j]) {
				t.Errorf("expected no overlapping entities, got %+v and %+v", entities[i], entities[j])
			}
		}
	}
}

func TestExtractExcludesCommonWords(t *testing.T) {
	entities := Extract("I'll see you on Monday in Google Calendar", []string{"person"})
	for _, e := range entities {
		if e.Text == "Monday" {
			t.Error("expected Monday to be excluded from person entities")
		}
	}
}

func TestExtractRelationshipsFamily(t *testing.T) {
	rels := ExtractRelationships("My sister Emma is visiting", nil)

	var found bool
	for _, r := range rels {
		if r.Type == "family" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected a family relationship, got %+v", rels)
	}
}

func TestExtractRelationshipsMentionedTogether(t *testing.T) {
	entities := Extract("Sarah Connor and John Smith went to the store together", []string{"person"})
	rels := ExtractRelationships("Sarah Connor and John Smith went to the store together", entities)

	var found bool
	for _, r := range rels {
		if r.Type == "mentioned_together" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected a mentioned_together relationship for two nearby people, got %+v", rels)
	}
}
