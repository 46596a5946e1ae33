package storage

// SchemaVersion is the current per-user schema version.
const SchemaVersion = 1

// CoreSchema creates the tables that hold a user's memories, their audit
// trail, sessions, and categories.
const CoreSchema = `
PRAGMA foreign_keys = ON;

CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER PRIMARY KEY,
	applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS categories (
	name TEXT PRIMARY KEY,
	description TEXT
);

INSERT OR IGNORE INTO categories (name, description) VALUES
	('personal', 'personal traits, identity, and background'),
	('factual', 'objective facts and knowledge'),
	('emotional', 'feelings and emotional states'),
	('procedural', 'how-to knowledge and processes'),
	('episodic', 'specific occurrences and experiences'),
	('relational', 'people and relationships'),
	('preference', 'likes, dislikes, opinions'),
	('goal', 'aspirations and objectives'),
	('skill', 'abilities and competencies'),
	('temporal', 'time-bound or scheduled information');

CREATE TABLE IF NOT EXISTS sessions (
	id TEXT PRIMARY KEY,
	started_at DATETIME DEFAULT CURRENT_TIMESTAMP,
	ended_at DATETIME,
	message_count INTEGER DEFAULT 0,
	memory_count INTEGER DEFAULT 0,
	metadata TEXT
);

CREATE TABLE IF NOT EXISTS memories (
	id TEXT PRIMARY KEY,
	content TEXT NOT NULL,
	original_message TEXT,
	category TEXT NOT NULL,
	confidence_score REAL NOT NULL DEFAULT 0.0,
	timestamp DATETIME,
	created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
	updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
	metadata TEXT,
	embedding BLOB,
	session_id TEXT,
	is_active INTEGER NOT NULL DEFAULT 1,
	FOREIGN KEY (session_id) REFERENCES sessions(id)
);

CREATE INDEX IF NOT EXISTS idx_memories_category ON memories(category);
CREATE INDEX IF NOT EXISTS idx_memories_active ON memories(is_active);
CREATE INDEX IF NOT EXISTS idx_memories_created ON memories(created_at);
CREATE INDEX IF NOT EXISTS idx_memories_session ON memories(session_id);

CREATE TABLE IF NOT EXISTS memory_updates (
	id TEXT PRIMARY KEY,
	memory_id TEXT NOT NULL,
	previous_content TEXT,
	new_content TEXT,
	update_type TEXT NOT NULL,
	updated_by TEXT,
	updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
	FOREIGN KEY (memory_id) REFERENCES memories(id)
);

CREATE INDEX IF NOT EXISTS idx_memory_updates_memory ON memory_updates(memory_id);

CREATE TRIGGER IF NOT EXISTS memories_touch_updated_at
AFTER UPDATE ON memories
WHEN old.updated_at = new.updated_at
BEGIN
	UPDATE memories SET updated_at = CURRENT_TIMESTAMP WHERE id = new.id;
END;
`

// FTS5Schema creates the full-text index over (content, category) and the
// triggers that keep it in lockstep with the memories table.
const FTS5Schema = `
CREATE VIRTUAL TABLE IF NOT EXISTS memories_fts USING fts5(
	memory_id UNINDEXED,
	content,
	category,
	tokenize = 'porter unicode61'
);

CREATE TRIGGER IF NOT EXISTS memories_fts_insert AFTER INSERT ON memories BEGIN
	INSERT INTO memories_fts(memory_id, content, category)
	VALUES (new.id, new.content, new.category);
END;

CREATE TRIGGER IF NOT EXISTS memories_fts_delete AFTER DELETE ON memories BEGIN
	DELETE FROM memories_fts WHERE memory_id = old.id;
END;

CREATE TRIGGER IF NOT EXISTS memories_fts_update AFTER UPDATE ON memories BEGIN
	UPDATE memories_fts SET content = new.content, category = new.category
	WHERE memory_id = old.id;
END;
`
