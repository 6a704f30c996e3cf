package store

import (
	"fmt"

	"foldmem/internal/logging"

	"go.uber.org/zap"
)

// initialize creates the required tables and indexes.
func (s *Store) initialize() error {
	memoriesTable := `
	CREATE TABLE IF NOT EXISTS memories (
		id TEXT PRIMARY KEY,
		content TEXT NOT NULL,
		content_hash TEXT NOT NULL,
		embedding TEXT NOT NULL,
		tier TEXT NOT NULL DEFAULT 'active',
		tier_last_updated TIMESTAMP NOT NULL,
		access_count INTEGER NOT NULL DEFAULT 0,
		last_accessed TIMESTAMP NOT NULL,
		accessed_in_conversation_ids TEXT NOT NULL DEFAULT '[]',
		category TEXT,
		tags TEXT NOT NULL DEFAULT '[]',
		source TEXT,
		metadata TEXT NOT NULL DEFAULT '{}',
		conversation_id TEXT,
		resonance_phi REAL NOT NULL DEFAULT 0
			CHECK (resonance_phi >= 0 AND resonance_phi <= 5),
		is_catalyst INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL,
		deleted_at TIMESTAMP
	);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_memories_live_hash
		ON memories(content_hash) WHERE deleted_at IS NULL;
	CREATE INDEX IF NOT EXISTS idx_memories_tier
		ON memories(tier) WHERE deleted_at IS NULL;
	CREATE INDEX IF NOT EXISTS idx_memories_phi ON memories(resonance_phi DESC);
	CREATE INDEX IF NOT EXISTS idx_memories_category ON memories(category);
	`

	associationsTable := `
	CREATE TABLE IF NOT EXISTS memory_associations (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		memory_a TEXT NOT NULL REFERENCES memories(id) ON DELETE CASCADE,
		memory_b TEXT NOT NULL REFERENCES memories(id) ON DELETE CASCADE,
		co_occurrence_count INTEGER NOT NULL DEFAULT 1 CHECK (co_occurrence_count >= 1),
		strength REAL NOT NULL DEFAULT 1.0,
		conversation_contexts TEXT NOT NULL DEFAULT '[]',
		first_co_occurred_at TIMESTAMP NOT NULL,
		last_co_occurred_at TIMESTAMP NOT NULL,
		UNIQUE(memory_a, memory_b),
		CHECK (memory_a < memory_b)
	);
	CREATE INDEX IF NOT EXISTS idx_assoc_a ON memory_associations(memory_a);
	CREATE INDEX IF NOT EXISTS idx_assoc_b ON memory_associations(memory_b);
	CREATE INDEX IF NOT EXISTS idx_assoc_strength ON memory_associations(strength DESC);
	`

	promotionsTable := `
	CREATE TABLE IF NOT EXISTS tier_promotions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		memory_id TEXT NOT NULL,
		from_tier TEXT NOT NULL,
		to_tier TEXT NOT NULL,
		reason TEXT NOT NULL,
		access_count_at_promotion INTEGER NOT NULL DEFAULT 0,
		days_since_last_access REAL NOT NULL DEFAULT 0,
		created_at TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_promotions_memory ON tier_promotions(memory_id);
	`

	ghostTable := `
	CREATE TABLE IF NOT EXISTS ghost_logs (
		id TEXT PRIMARY KEY,
		prompt_text TEXT NOT NULL,
		top_phi_memories TEXT NOT NULL DEFAULT '[]',
		top_phi_values TEXT NOT NULL DEFAULT '[]',
		synthesis_method TEXT NOT NULL DEFAULT 'standard',
		conversation_id TEXT,
		context_type TEXT NOT NULL DEFAULT 'global',
		created_at TIMESTAMP NOT NULL,
		expires_at TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_ghost_conv ON ghost_logs(conversation_id, created_at DESC);
	CREATE INDEX IF NOT EXISTS idx_ghost_expires ON ghost_logs(expires_at);
	`

	accessLogTable := `
	CREATE TABLE IF NOT EXISTS memory_access_log (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		memory_id TEXT NOT NULL,
		accessed_at TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_access_memory ON memory_access_log(memory_id, accessed_at);
	`

	reflectionsTable := `
	CREATE TABLE IF NOT EXISTS meta_reflections (
		id TEXT PRIMARY KEY,
		reflection_type TEXT NOT NULL,
		conversation_id TEXT,
		metrics TEXT NOT NULL DEFAULT '{}',
		insights TEXT NOT NULL DEFAULT '[]',
		recommendations TEXT NOT NULL DEFAULT '[]',
		created_at TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_reflections_conv ON meta_reflections(conversation_id, created_at DESC);
	`

	configTable := `
	CREATE TABLE IF NOT EXISTS config_entries (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);
	`

	for _, table := range []string{
		memoriesTable,
		associationsTable,
		promotionsTable,
		ghostTable,
		accessLogTable,
		reflectionsTable,
		configTable,
	} {
		if _, err := s.db.Exec(table); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}

	s.initializeFTS()
	return nil
}

// initializeFTS creates the external-content full-text index over memory
// text. Triggers keep it in lockstep with the memories table; soft deletes
// leave content untouched and are filtered at query time. FTS5 ships with
// the pure-Go driver but the cgo build needs -tags sqlite_fts5, so absence
// is non-fatal and disables SearchText.
func (s *Store) initializeFTS() {
	ftsTable := `
	CREATE VIRTUAL TABLE IF NOT EXISTS memories_fts USING fts5(
		content, content='memories', content_rowid='rowid'
	);
	CREATE TRIGGER IF NOT EXISTS memories_fts_insert AFTER INSERT ON memories BEGIN
		INSERT INTO memories_fts(rowid, content) VALUES (new.rowid, new.content);
	END;
	CREATE TRIGGER IF NOT EXISTS memories_fts_delete AFTER DELETE ON memories BEGIN
		INSERT INTO memories_fts(memories_fts, rowid, content)
			VALUES ('delete', old.rowid, old.content);
	END;
	CREATE TRIGGER IF NOT EXISTS memories_fts_update AFTER UPDATE OF content ON memories BEGIN
		INSERT INTO memories_fts(memories_fts, rowid, content)
			VALUES ('delete', old.rowid, old.content);
		INSERT INTO memories_fts(rowid, content) VALUES (new.rowid, new.content);
	END;
	`
	if _, err := s.db.Exec(ftsTable); err != nil {
		logging.Get(logging.CategoryStore).Warn("fts5 unavailable, text search disabled", zap.Error(err))
		return
	}
	s.ftsExt = true
}
