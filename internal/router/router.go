// Package router maps user ids to per-user storage engines, creating
// each user's database lazily on first access and reference-counting
// handles so concurrent callers share one open Engine per user.
package router

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"sync"

	"github.com/jason-c-dev/harmonia-memory/internal/apperr"
	"github.com/jason-c-dev/harmonia-memory/internal/logging"
	"github.com/jason-c-dev/harmonia-memory/internal/storage"
)

var log = logging.GetLogger("router")

var userIDPattern = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

// ValidateUserID reports whether id is safe to use as a path component.
func ValidateUserID(id string) error {
	if id == "" || !userIDPattern.MatchString(id) {
		return apperr.New(apperr.InvalidUser, "user id must match [A-Za-z0-9._-]+: "+id)
	}
	return nil
}

type handle struct {
	engine *storage.Engine
	refs   int
}

// Router owns every open per-user Engine under a single data directory.
type Router struct {
	dataDir string
	mu      sync.Mutex
	handles map[string]*handle
}

// New creates a router rooted at dataDir (e.g. <data_dir>/users/<id>/harmonia.db).
func New(dataDir string) *Router {
	return &Router{
		dataDir: dataDir,
		handles: make(map[string]*handle),
	}
}

func (r *Router) dbPath(userID string) string {
	return filepath.Join(r.dataDir, "users", userID, "harmonia.db")
}

// Get returns the user's storage engine, creating the directory and
// schema on first access. Concurrent calls for the same user return the
// same handle.
func (r *Router) Get(userID string) (*storage.Engine, error) {
	if err := ValidateUserID(userID); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if h, ok := r.handles[userID]; ok {
		h.refs++
		return h.engine, nil
	}

	eng, err := storage.Open(r.dbPath(userID))
	if err != nil {
		return nil, err
	}
	r.handles[userID] = &handle{engine: eng, refs: 1}
	log.Info("opened user database", "user_id", userID)
	return eng, nil
}

// Release decrements the reference count for a user's handle. It does
// not close the handle; idle handles are only evicted by Delete or
// Evict.
func (r *Router) Release(userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if h, ok := r.handles[userID]; ok && h.refs > 0 {
		h.refs--
	}
}

// Evict closes and forgets the handle for userID if it has no active
// references. Returns false if the handle is still in use or absent.
func (r *Router) Evict(userID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.handles[userID]
	if !ok || h.refs > 0 {
		return false
	}
	h.engine.Close()
	delete(r.handles, userID)
	return true
}

// Exists reports whether a user's database file exists on disk,
// regardless of whether a handle is currently open.
func (r *Router) Exists(userID string) bool {
	if err := ValidateUserID(userID); err != nil {
		return false
	}
	_, err := os.Stat(r.dbPath(userID))
	return err == nil
}

// List returns every user id with a database directory on disk.
func (r *Router) List() ([]string, error) {
	usersDir := filepath.Join(r.dataDir, "users")
	entries, err := os.ReadDir(usersDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, apperr.Wrap(apperr.DBError, "failed to list user directories", err)
	}

	var ids []string
	for _, e := range entries {
		if e.IsDir() {
			ids = append(ids, e.Name())
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// Delete closes (if open) and removes a user's database directory,
// including WAL and SHM sidecar files.
func (r *Router) Delete(userID string) error {
	if err := ValidateUserID(userID); err != nil {
		return err
	}

	r.mu.Lock()
	if h, ok := r.handles[userID]; ok {
		h.engine.Close()
		delete(r.handles, userID)
	}
	r.mu.Unlock()

	dir := filepath.Join(r.dataDir, "users", userID)
	if err := os.RemoveAll(dir); err != nil {
		return apperr.Wrap(apperr.DBError, "failed to remove user directory", err)
	}
	return nil
}

// Backup copies a user's database file to destPath after forcing a WAL
// checkpoint. The WAL sidecar itself is not copied, so writes the
// checkpoint did not fold into the main file are not in the copy.
func (r *Router) Backup(userID, destPath string) error {
	eng, err := r.Get(userID)
	if err != nil {
		return err
	}
	defer r.Release(userID)

	if err := eng.Checkpoint(); err != nil {
		log.Warn("checkpoint before backup failed", "user_id", userID, "error", err)
	}

	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return apperr.Wrap(apperr.DBError, "failed to create backup directory", err)
	}

	src, err := os.Open(eng.Path())
	if err != nil {
		return apperr.Wrap(apperr.DBError, "failed to open source database", err)
	}
	defer src.Close()

	dst, err := os.Create(destPath)
	if err != nil {
		return apperr.Wrap(apperr.DBError, "failed to create backup file", err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return apperr.Wrap(apperr.DBError, "failed to copy database file", err)
	}
	return nil
}

// Health reports whether each currently open user handle responds to a
// stats query.
type Health struct {
	OpenHandles int
	Unhealthy   []string
}

// Health probes every currently open handle.
func (r *Router) Health(ctx context.Context) Health {
	r.mu.Lock()
	userIDs := make([]string, 0, len(r.handles))
	handles := make([]*storage.Engine, 0, len(r.handles))
	for id, h := range r.handles {
		userIDs = append(userIDs, id)
		handles = append(handles, h.engine)
	}
	r.mu.Unlock()

	h := Health{OpenHandles: len(handles)}
	for i, eng := range handles {
		if _, err := eng.GetStats(); err != nil {
			h.Unhealthy = append(h.Unhealthy, userIDs[i])
		}
	}
	return h
}

// Stats aggregates per-user database statistics across all known users.
type Stats struct {
	UserCount     int
	TotalMemories int
	PerUser       map[string]*storage.Stats
}

// Stats walks every known user (open or not) and gathers storage stats.
func (r *Router) Stats() (*Stats, error) {
	ids, err := r.List()
	if err != nil {
		return nil, err
	}

	out := &Stats{UserCount: len(ids), PerUser: make(map[string]*storage.Stats, len(ids))}
	for _, id := range ids {
		eng, err := r.Get(id)
		if err != nil {
			continue
		}
		s, err := eng.GetStats()
		r.Release(id)
		if err != nil {
			continue
		}
		out.PerUser[id] = s
		out.TotalMemories += s.MemoryCount
	}
	return out, nil
}

