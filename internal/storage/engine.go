// Package storage implements the per-user embedded SQLite database: one
// self-contained file, write-ahead log, and connection pool per user,
// with a full-text index kept in lockstep with the memories table.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	_ "github.com/mattn/go-sqlite3"

	"github.com/jason-c-dev/harmonia-memory/internal/apperr"
	"github.com/jason-c-dev/harmonia-memory/internal/logging"
	"github.com/jason-c-dev/harmonia-memory/internal/vector"
)

var log = logging.GetLogger("storage")

// Memory is the central persisted record.
type Memory struct {
	ID               string
	Content          string
	OriginalMessage  string
	Category         string
	ConfidenceScore  float64
	Timestamp        *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
	Metadata         map[string]any
	Embedding        []byte
	SessionID        string
	IsActive         bool
}

// Update is one append-only audit row recording a content change.
type Update struct {
	ID              string
	MemoryID        string
	PreviousContent string
	NewContent      string
	UpdateType      string // create, update, merge, replace, archive, link
	UpdatedBy       string
	UpdatedAt       time.Time
}

// Filters narrows a List/Search call.
type Filters struct {
	Category  string
	SessionID string
	ActiveOnly bool
	StartDate *time.Time
	EndDate   *time.Time
}

// Page bounds a result set.
type Page struct {
	Limit  int
	Offset int
}

func (p Page) withDefaults() Page {
	if p.Limit <= 0 {
		p.Limit = 50
	}
	return p
}

// Engine is a single user's storage handle.
type Engine struct {
	db          *sql.DB
	path        string
	userID      string
	vectorStore vector.Store
	mu          sync.RWMutex
}

// SetVectorStore replaces the embedding index the engine mirrors writes
// to. Engines default to vector.NewNoopStore.
func (e *Engine) SetVectorStore(s vector.Store) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.vectorStore = s
}

// userIDFromPath recovers the owning user id from the router's
// <data_dir>/users/<user_id>/harmonia.db layout.
func userIDFromPath(path string) string {
	return filepath.Base(filepath.Dir(path))
}

// Open opens (creating if needed) the SQLite file at path, configures it
// per the pool and pragma conventions, and initializes the schema.
func Open(path string) (*Engine, error) {
	log.Info("opening storage engine", "path", path)

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, apperr.Wrap(apperr.DBError, "failed to create data directory", err)
	}

	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=30000&_foreign_keys=on&cache=shared", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, apperr.Wrap(apperr.DBError, "failed to open database", err)
	}

	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(4)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, apperr.Wrap(apperr.DBError, "failed to ping database", err)
	}

	if _, err := db.Exec("PRAGMA cache_size = -10000"); err != nil {
		log.Warn("failed to set cache_size pragma", "error", err)
	}
	if _, err := db.Exec("PRAGMA mmap_size = 268435456"); err != nil {
		log.Warn("failed to set mmap_size pragma", "error", err)
	}

	e := &Engine{db: db, path: path, userID: userIDFromPath(path), vectorStore: vector.NewNoopStore()}
	if err := e.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return e, nil
}

func (e *Engine) initSchema() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	var name string
	err := e.db.QueryRow(`SELECT name FROM sqlite_master WHERE type='table' AND name='memories' LIMIT 1`).Scan(&name)
	if err == nil && name != "" {
		return nil
	}

	tx, err := e.db.Begin()
	if err != nil {
		return apperr.Wrap(apperr.DBError, "failed to begin schema transaction", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(CoreSchema); err != nil {
		return apperr.Wrap(apperr.DBError, "failed to create core schema", err)
	}
	if _, err := tx.Exec(FTS5Schema); err != nil {
		return apperr.Wrap(apperr.DBError, "failed to create FTS5 schema", err)
	}
	if _, err := tx.Exec(`INSERT OR REPLACE INTO schema_version (version, applied_at) VALUES (?, CURRENT_TIMESTAMP)`, SchemaVersion); err != nil {
		return apperr.Wrap(apperr.DBError, "failed to record schema version", err)
	}
	if err := tx.Commit(); err != nil {
		return apperr.Wrap(apperr.DBError, "failed to commit schema", err)
	}
	log.Info("storage schema initialized", "version", SchemaVersion)
	return nil
}

// Close closes the underlying database handle.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.db.Close()
}

// Path returns the database file path.
func (e *Engine) Path() string { return e.path }

// withRetry retries op up to 3 times with exponential backoff when it
// reports the database is busy.
func withRetry(ctx context.Context, op func() error) error {
	bo := backoff.WithMaxRetries(backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(50*time.Millisecond),
	), 3)

	return backoff.Retry(func() error {
		err := op()
		if err == nil {
			return nil
		}
		if isBusy(err) {
			return err
		}
		return backoff.Permanent(err)
	}, backoff.WithContext(bo, ctx))
}

func isBusy(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "SQLITE_BUSY")
}

// CreateMemory inserts a new memory, failing with a duplicate error kind
// if the id already exists.
func (e *Engine) CreateMemory(ctx context.Context, m *Memory) error {
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now()
	}
	if m.UpdatedAt.IsZero() {
		m.UpdatedAt = m.CreatedAt
	}

	metadataJSON, err := encodeMetadata(m.Metadata)
	if err != nil {
		return apperr.Wrap(apperr.Validation, "invalid metadata", err)
	}

	err = withRetry(ctx, func() error {
		e.mu.Lock()
		defer e.mu.Unlock()

		var existing string
		err := e.db.QueryRowContext(ctx, `SELECT id FROM memories WHERE id = ?`, m.ID).Scan(&existing)
		if err == nil {
			return apperr.New(apperr.Duplicate, "memory id already exists: "+m.ID)
		}
		if err != sql.ErrNoRows {
			return apperr.Wrap(apperr.DBError, "failed to check for existing memory", err)
		}

		_, err = e.db.ExecContext(ctx, `
			INSERT INTO memories (id, content, original_message, category, confidence_score, timestamp, created_at, updated_at, metadata, embedding, session_id, is_active)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1)
		`, m.ID, m.Content, m.OriginalMessage, m.Category, m.ConfidenceScore, m.Timestamp, m.CreatedAt, m.UpdatedAt, metadataJSON, m.Embedding, nullable(m.SessionID))
		if err != nil {
			return apperr.Wrap(apperr.DBError, "failed to insert memory", err)
		}

		_, err = e.db.ExecContext(ctx, `
			INSERT INTO memory_updates (id, memory_id, previous_content, new_content, update_type, updated_by, updated_at)
			VALUES (?, ?, '', ?, 'create', 'system', ?)
		`, m.ID+"-create", m.ID, m.Content, m.CreatedAt)
		if err != nil {
			return apperr.Wrap(apperr.DBError, "failed to write audit row", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	if len(m.Embedding) > 0 {
		if putErr := e.vectorStore.Put(e.userID, m.ID, m.Embedding); putErr != nil {
			log.Warn("vector store put failed", "user_id", e.userID, "memory_id", m.ID, "error", putErr)
		}
	}
	return nil
}

// GetMemory returns an active memory by id, or nil if none exists.
func (e *Engine) GetMemory(ctx context.Context, id string) (*Memory, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	row := e.db.QueryRowContext(ctx, `
		SELECT id, content, original_message, category, confidence_score, timestamp, created_at, updated_at, metadata, embedding, session_id, is_active
		FROM memories WHERE id = ? AND is_active = 1
	`, id)
	m, err := scanMemory(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.DBError, "failed to get memory", err)
	}
	if len(m.Embedding) == 0 {
		if embedding, ok := e.vectorStore.Get(e.userID, m.ID); ok {
			m.Embedding = embedding
		}
	}
	return m, nil
}

// UpdateFields is the set of partial fields an UpdateMemory call may
// change. Nil pointers leave the corresponding column untouched.
type UpdateFields struct {
	Content         *string
	Category        *string
	ConfidenceScore *float64
	Metadata        map[string]any
	Embedding       []byte
	UpdatedBy       string
}

// UpdateMemory applies partial fields to an existing memory, writing an
// audit row when content changes. Fails with not_found if the id is
// unknown or inactive.
func (e *Engine) UpdateMemory(ctx context.Context, id string, fields UpdateFields) error {
	return withRetry(ctx, func() error {
		e.mu.Lock()
		defer e.mu.Unlock()

		var previousContent string
		err := e.db.QueryRowContext(ctx, `SELECT content FROM memories WHERE id = ? AND is_active = 1`, id).Scan(&previousContent)
		if err == sql.ErrNoRows {
			return apperr.New(apperr.NotFound, "memory not found: "+id)
		}
		if err != nil {
			return apperr.Wrap(apperr.DBError, "failed to load memory for update", err)
		}

		sets := []string{}
		args := []any{}
		if fields.Content != nil {
			sets = append(sets, "content = ?")
			args = append(args, *fields.Content)
		}
		if fields.Category != nil {
			sets = append(sets, "category = ?")
			args = append(args, *fields.Category)
		}
		if fields.ConfidenceScore != nil {
			sets = append(sets, "confidence_score = ?")
			args = append(args, *fields.ConfidenceScore)
		}
		if fields.Metadata != nil {
			metadataJSON, err := encodeMetadata(fields.Metadata)
			if err != nil {
				return apperr.Wrap(apperr.Validation, "invalid metadata", err)
			}
			sets = append(sets, "metadata = ?")
			args = append(args, metadataJSON)
		}
		if fields.Embedding != nil {
			sets = append(sets, "embedding = ?")
			args = append(args, fields.Embedding)
		}
		if len(sets) == 0 {
			return nil
		}
		sets = append(sets, "updated_at = CURRENT_TIMESTAMP")

		args = append(args, id)
		query := fmt.Sprintf("UPDATE memories SET %s WHERE id = ?", strings.Join(sets, ", "))
		if _, err := e.db.ExecContext(ctx, query, args...); err != nil {
			return apperr.Wrap(apperr.DBError, "failed to update memory", err)
		}
		if fields.Embedding != nil {
			if putErr := e.vectorStore.Put(e.userID, id, fields.Embedding); putErr != nil {
				log.Warn("vector store put failed", "user_id", e.userID, "memory_id", id, "error", putErr)
			}
		}

		if fields.Content != nil && *fields.Content != previousContent {
			updatedBy := fields.UpdatedBy
			if updatedBy == "" {
				updatedBy = "system"
			}
			_, err := e.db.ExecContext(ctx, `
				INSERT INTO memory_updates (id, memory_id, previous_content, new_content, update_type, updated_by, updated_at)
				VALUES (?, ?, ?, ?, 'update', ?, CURRENT_TIMESTAMP)
			`, fmt.Sprintf("%s-%d", id, time.Now().UnixNano()), id, previousContent, *fields.Content, updatedBy)
			if err != nil {
				return apperr.Wrap(apperr.DBError, "failed to write audit row", err)
			}
		}
		return nil
	})
}

// DeleteMemory removes a memory. Soft deletes flip is_active; hard
// deletes remove the row, its memory_updates audit rows, and its FTS
// mirror (via trigger) entirely.
func (e *Engine) DeleteMemory(ctx context.Context, id string, soft bool) error {
	return withRetry(ctx, func() error {
		e.mu.Lock()
		defer e.mu.Unlock()

		if soft {
			res, err := e.db.ExecContext(ctx, `UPDATE memories SET is_active = 0, updated_at = CURRENT_TIMESTAMP WHERE id = ? AND is_active = 1`, id)
			if err != nil {
				return apperr.Wrap(apperr.DBError, "failed to soft-delete memory", err)
			}
			if n, _ := res.RowsAffected(); n == 0 {
				return apperr.New(apperr.NotFound, "memory not found: "+id)
			}
			return nil
		}

		if _, err := e.db.ExecContext(ctx, `DELETE FROM memory_updates WHERE memory_id = ?`, id); err != nil {
			return apperr.Wrap(apperr.DBError, "failed to remove audit rows", err)
		}
		res, err := e.db.ExecContext(ctx, `DELETE FROM memories WHERE id = ?`, id)
		if err != nil {
			return apperr.Wrap(apperr.DBError, "failed to hard-delete memory", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return apperr.New(apperr.NotFound, "memory not found: "+id)
		}
		return nil
	})
}

// ReactivateMemory flips is_active back on for a previously soft-deleted
// or archived memory, used when rolling back a conflict resolution.
func (e *Engine) ReactivateMemory(ctx context.Context, id string) error {
	return withRetry(ctx, func() error {
		e.mu.Lock()
		defer e.mu.Unlock()

		res, err := e.db.ExecContext(ctx, `UPDATE memories SET is_active = 1, updated_at = CURRENT_TIMESTAMP WHERE id = ?`, id)
		if err != nil {
			return apperr.Wrap(apperr.DBError, "failed to reactivate memory", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return apperr.New(apperr.NotFound, "memory not found: "+id)
		}
		return nil
	})
}

// ListMemories returns memories matching filters, newest first, paginated.
func (e *Engine) ListMemories(ctx context.Context, f Filters, p Page) ([]*Memory, error) {
	p = p.withDefaults()
	e.mu.RLock()
	defer e.mu.RUnlock()

	where, args := buildWhere(f)
	query := fmt.Sprintf(`
		SELECT id, content, original_message, category, confidence_score, timestamp, created_at, updated_at, metadata, embedding, session_id, is_active
		FROM memories m %s
		ORDER BY created_at DESC
		LIMIT ? OFFSET ?
	`, where)
	args = append(args, p.Limit, p.Offset)

	rows, err := e.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperr.Wrap(apperr.DBError, "failed to list memories", err)
	}
	defer rows.Close()
	return scanMemories(rows)
}

// SearchResult pairs a memory with the SQLite-native bm25() rank of the
// matching FTS row (more negative is a better match).
type SearchResult struct {
	Memory *Memory
	Rank   float64
}

// SearchMemories runs an FTS5 match against content/category, ranked by
// SQLite's native bm25(). internal/search layers its own re-ranking on
// top of this for the final result order.
func (e *Engine) SearchMemories(ctx context.Context, ftsQuery string, f Filters, p Page) ([]SearchResult, error) {
	p = p.withDefaults()
	e.mu.RLock()
	defer e.mu.RUnlock()

	where, args := buildWhere(f)
	if where == "" {
		where = "WHERE 1=1"
	} else {
		where += " AND 1=1"
	}

	query := fmt.Sprintf(`
		SELECT m.id, m.content, m.original_message, m.category, m.confidence_score, m.timestamp, m.created_at, m.updated_at, m.metadata, m.embedding, m.session_id, m.is_active, bm25(memories_fts) AS rank
		FROM memories m
		JOIN memories_fts ON memories_fts.memory_id = m.id
		%s AND memories_fts MATCH ?
		ORDER BY rank
		LIMIT ? OFFSET ?
	`, where)
	args = append(args, ftsQuery, p.Limit, p.Offset)

	rows, err := e.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperr.Wrap(apperr.DBError, "failed to search memories", err)
	}
	defer rows.Close()

	var results []SearchResult
	for rows.Next() {
		m := &Memory{}
		var metadataJSON sql.NullString
		var sessionID sql.NullString
		var timestamp sql.NullTime
		var isActive int
		var rank float64
		if err := rows.Scan(&m.ID, &m.Content, &m.OriginalMessage, &m.Category, &m.ConfidenceScore, &timestamp, &m.CreatedAt, &m.UpdatedAt, &metadataJSON, &m.Embedding, &sessionID, &isActive, &rank); err != nil {
			return nil, apperr.Wrap(apperr.DBError, "failed to scan search result", err)
		}
		if timestamp.Valid {
			t := timestamp.Time
			m.Timestamp = &t
		}
		m.SessionID = sessionID.String
		m.IsActive = isActive != 0
		m.Metadata = decodeMetadata(metadataJSON.String)
		results = append(results, SearchResult{Memory: m, Rank: rank})
	}
	return results, nil
}

func buildWhere(f Filters) (string, []any) {
	clauses := []string{}
	args := []any{}

	if f.ActiveOnly {
		clauses = append(clauses, "m.is_active = 1")
	}
	if f.Category != "" {
		clauses = append(clauses, "m.category = ?")
		args = append(args, f.Category)
	}
	if f.SessionID != "" {
		clauses = append(clauses, "m.session_id = ?")
		args = append(args, f.SessionID)
	}
	if f.StartDate != nil {
		clauses = append(clauses, "m.created_at >= ?")
		args = append(args, *f.StartDate)
	}
	if f.EndDate != nil {
		clauses = append(clauses, "m.created_at <= ?")
		args = append(args, *f.EndDate)
	}
	if len(clauses) == 0 {
		return "", args
	}
	return "WHERE " + strings.Join(clauses, " AND "), args
}

type scanner interface {
	Scan(dest ...any) error
}

func scanMemory(row scanner) (*Memory, error) {
	m := &Memory{}
	var metadataJSON sql.NullString
	var sessionID sql.NullString
	var timestamp sql.NullTime
	var isActive int

	err := row.Scan(&m.ID, &m.Content, &m.OriginalMessage, &m.Category, &m.ConfidenceScore, &timestamp, &m.CreatedAt, &m.UpdatedAt, &metadataJSON, &m.Embedding, &sessionID, &isActive)
	if err != nil {
		return nil, err
	}
	if timestamp.Valid {
		t := timestamp.Time
		m.Timestamp = &t
	}
	m.SessionID = sessionID.String
	m.IsActive = isActive != 0
	m.Metadata = decodeMetadata(metadataJSON.String)
	return m, nil
}

func scanMemories(rows *sql.Rows) ([]*Memory, error) {
	var out []*Memory
	for rows.Next() {
		m, err := scanMemory(rows)
		if err != nil {
			return nil, apperr.Wrap(apperr.DBError, "failed to scan memory row", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// Stats summarizes the user's database for diagnostics.
type Stats struct {
	Path          string
	SchemaVersion int
	MemoryCount   int
	ActiveCount   int
	SessionCount  int
	FileSizeBytes int64
}

// GetStats returns a point-in-time snapshot of database size and counts.
func (e *Engine) GetStats() (*Stats, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	s := &Stats{Path: e.path}
	e.db.QueryRow(`SELECT COALESCE(MAX(version), 0) FROM schema_version`).Scan(&s.SchemaVersion)
	e.db.QueryRow(`SELECT COUNT(*) FROM memories`).Scan(&s.MemoryCount)
	e.db.QueryRow(`SELECT COUNT(*) FROM memories WHERE is_active = 1`).Scan(&s.ActiveCount)
	e.db.QueryRow(`SELECT COUNT(*) FROM sessions`).Scan(&s.SessionCount)
	if info, err := os.Stat(e.path); err == nil {
		s.FileSizeBytes = info.Size()
	}
	return s, nil
}

// Checkpoint forces a WAL checkpoint, truncating the sidecar file.
func (e *Engine) Checkpoint() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, err := e.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	return err
}
