package router

import (
	"context"
	"path/filepath"
	"testing"
)

func TestValidateUserID(t *testing.T) {
	valid := []string{"alice", "user-123", "user.name", "a_b_c"}
	for _, id := range valid {
		if err := ValidateUserID(id); err != nil {
			t.Errorf("expected %q to be valid, got error: %v", id, err)
		}
	}

	invalid := []string{"", "../etc/passwd", "user name", "user/name", "user$"}
	for _, id := range invalid {
		if err := ValidateUserID(id); err == nil {
			t.Errorf("expected %q to be invalid", id)
		}
	}
}

func TestGetCreatesLazilyAndCaches(t *testing.T) {
	r := New(t.TempDir())

	eng1, err := r.Get("alice")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	eng2, err := r.Get("alice")
	if err != nil {
		t.Fatalf("second Get failed: %v", err)
	}
	if eng1 != eng2 {
		t.Error("expected concurrent Get for same user to return the same handle")
	}
	r.Release("alice")
	r.Release("alice")

	if !r.Exists("alice") {
		t.Error("expected user directory to exist after Get")
	}
}

func TestGetRejectsInvalidUser(t *testing.T) {
	r := New(t.TempDir())
	if _, err := r.Get("../escape"); err == nil {
		t.Fatal("expected invalid_user error")
	}
}

func TestEvictRespectsRefcount(t *testing.T) {
	r := New(t.TempDir())

	if _, err := r.Get("bob"); err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if _, err := r.Get("bob"); err != nil {
		t.Fatalf("second Get failed: %v", err)
	}

	r.Release("bob")
	if r.Evict("bob") {
		t.Error("expected Evict to fail while a reference is still held")
	}

	r.Release("bob")
	if !r.Evict("bob") {
		t.Error("expected Evict to succeed once refs reach zero")
	}
}

func TestListAndDelete(t *testing.T) {
	r := New(t.TempDir())

	for _, id := range []string{"alice", "bob", "carol"} {
		if _, err := r.Get(id); err != nil {
			t.Fatalf("Get(%s) failed: %v", id, err)
		}
		r.Release(id)
	}

	ids, err := r.List()
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(ids) != 3 {
		t.Fatalf("expected 3 users, got %d", len(ids))
	}

	if err := r.Delete("bob"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if r.Exists("bob") {
		t.Error("expected bob to no longer exist after Delete")
	}
	ids, err = r.List()
	if err != nil {
		t.Fatalf("List after delete failed: %v", err)
	}
	if len(ids) != 2 {
		t.Errorf("expected 2 users after delete, got %d", len(ids))
	}
}

func TestBackup(t *testing.T) {
	r := New(t.TempDir())
	if _, err := r.Get("alice"); err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	r.Release("alice")

	dest := filepath.Join(t.TempDir(), "backup", "alice.db")
	if err := r.Backup("alice", dest); err != nil {
		t.Fatalf("Backup failed: %v", err)
	}
}

func TestHealthAndStats(t *testing.T) {
	r := New(t.TempDir())
	if _, err := r.Get("alice"); err != nil {
		t.Fatalf("Get failed: %v", err)
	}

	h := r.Health(context.Background())
	if h.OpenHandles != 1 {
		t.Errorf("expected 1 open handle, got %d", h.OpenHandles)
	}
	if len(h.Unhealthy) != 0 {
		t.Errorf("expected no unhealthy handles, got %v", h.Unhealthy)
	}

	stats, err := r.Stats()
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.UserCount != 1 {
		t.Errorf("expected 1 user in stats, got %d", stats.UserCount)
	}
}
