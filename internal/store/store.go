// Package store is the storage port: the only package that speaks SQL to
// the vector-capable SQLite substrate. All engines operate through its
// typed operations.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"foldmem/internal/logging"

	"go.uber.org/zap"
)

// Store wraps the SQLite database holding memories, associations, tier
// audits, ghost logs, access traces, reflections, and runtime config.
type Store struct {
	db     *sql.DB
	mu     sync.RWMutex
	dbPath string

	vectorExt  bool // sqlite-vec available
	ftsExt     bool // fts5 available
	requireVec bool

	// now is the clock; tests may override it.
	now func() time.Time
}

// Options tune store construction.
type Options struct {
	MaxOpenConns int
	RequireVec   bool
}

// Open initializes the SQLite database at path. ":memory:" is supported
// for tests.
func Open(path string, opts Options) (*Store, error) {
	log := logging.Get(logging.CategoryStore)
	log.Info("opening store", zap.String("path", path))

	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	db, err := sql.Open(driverName, path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	maxConns := opts.MaxOpenConns
	if maxConns <= 0 {
		maxConns = 1
	}
	db.SetMaxOpenConns(maxConns)
	db.SetMaxIdleConns(maxConns)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		log.Debug("failed to set busy_timeout", zap.Error(err))
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		log.Debug("failed to set journal_mode=WAL", zap.Error(err))
	}
	if _, err := db.Exec("PRAGMA synchronous = NORMAL"); err != nil {
		log.Debug("failed to set synchronous=NORMAL", zap.Error(err))
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		log.Debug("failed to enable foreign_keys", zap.Error(err))
	}

	s := &Store{db: db, dbPath: path, requireVec: opts.RequireVec, now: func() time.Time { return time.Now().UTC() }}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	s.detectVecExtension()
	if s.requireVec && !s.vectorExt {
		db.Close()
		return nil, fmt.Errorf("sqlite-vec extension not available; build with -tags sqlite_vec to enable ANN search")
	}
	if s.vectorExt {
		if err := s.createVecTable(); err != nil {
			if s.requireVec {
				db.Close()
				return nil, fmt.Errorf("failed to create vec index: %w", err)
			}
			log.Warn("vec index unavailable, using full-scan cosine ranking", zap.Error(err))
			s.vectorExt = false
		} else {
			log.Info("sqlite-vec extension detected, ANN ranking enabled")
		}
	} else {
		log.Debug("sqlite-vec not available; using full-scan cosine ranking")
	}

	log.Info("store ready")
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	logging.Get(logging.CategoryStore).Info("closing store")
	return s.db.Close()
}

// Now returns the store clock's current time.
func (s *Store) Now() time.Time { return s.now() }

// SetClock overrides the store clock. Intended for tests.
func (s *Store) SetClock(now func() time.Time) { s.now = now }

// detectVecExtension probes for vec0 virtual table support.
func (s *Store) detectVecExtension() {
	if _, err := s.db.Exec("CREATE VIRTUAL TABLE IF NOT EXISTS vec_probe USING vec0(embedding float[4])"); err == nil {
		s.vectorExt = true
		_, _ = s.db.Exec("DROP TABLE IF EXISTS vec_probe")
		return
	}
	s.vectorExt = false
}

// Stats returns row counts per table plus domain summaries.
func (s *Store) Stats() (map[string]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := make(map[string]int64)
	counts := map[string]string{
		"memories_live":    "SELECT COUNT(*) FROM memories WHERE deleted_at IS NULL",
		"memories_deleted": "SELECT COUNT(*) FROM memories WHERE deleted_at IS NOT NULL",
		"catalysts":        "SELECT COUNT(*) FROM memories WHERE deleted_at IS NULL AND is_catalyst = 1",
		"associations":     "SELECT COUNT(*) FROM memory_associations",
		"tier_promotions":  "SELECT COUNT(*) FROM tier_promotions",
		"ghost_logs":       "SELECT COUNT(*) FROM ghost_logs",
		"access_log":       "SELECT COUNT(*) FROM memory_access_log",
		"reflections":      "SELECT COUNT(*) FROM meta_reflections",
	}
	for key, q := range counts {
		var n int64
		if err := s.db.QueryRow(q).Scan(&n); err != nil {
			continue
		}
		stats[key] = n
	}

	rows, err := s.db.Query("SELECT tier, COUNT(*) FROM memories WHERE deleted_at IS NULL GROUP BY tier")
	if err == nil {
		defer rows.Close()
		for rows.Next() {
			var tier string
			var n int64
			if err := rows.Scan(&tier, &n); err == nil {
				stats["tier_"+tier] = n
			}
		}
	}

	// Unit-wide phi histogram; phi = 5.0 lands in the top bucket.
	buckets, err := s.db.Query(`
		SELECT CAST(MIN(resonance_phi, 4.999) AS INTEGER) AS bucket, COUNT(*)
		FROM memories WHERE deleted_at IS NULL GROUP BY bucket`)
	if err == nil {
		defer buckets.Close()
		for buckets.Next() {
			var bucket, n int64
			if err := buckets.Scan(&bucket, &n); err == nil {
				stats[fmt.Sprintf("phi_%d_%d", bucket, bucket+1)] = n
			}
		}
	}

	return stats, nil
}

// encodeJSON marshals v, returning "null" on failure so a bad blob never
// poisons an insert. Nil slices are normalized to empty arrays: the
// json_insert('$[#]', ...) append paths require an array in the column,
// and a scalar null would make them silent no-ops.
func encodeJSON(v interface{}) string {
	switch t := v.(type) {
	case []string:
		if t == nil {
			v = []string{}
		}
	case []float32:
		if t == nil {
			v = []float32{}
		}
	case []float64:
		if t == nil {
			v = []float64{}
		}
	}
	data, err := json.Marshal(v)
	if err != nil {
		return "null"
	}
	return string(data)
}

func encodeVector(vec []float32) string { return encodeJSON(vec) }

func decodeVector(raw string) []float32 {
	if raw == "" {
		return nil
	}
	var vec []float32
	if err := json.Unmarshal([]byte(raw), &vec); err != nil {
		return nil
	}
	return vec
}

func decodeFloats(raw string) []float64 {
	if raw == "" {
		return nil
	}
	var out []float64
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil
	}
	return out
}

func decodeStrings(raw string) []string {
	if raw == "" {
		return nil
	}
	var out []string
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil
	}
	return out
}

func decodeMetadata(raw string) Metadata {
	var meta Metadata
	if raw != "" {
		_ = json.Unmarshal([]byte(raw), &meta)
	}
	meta.migrate()
	return meta
}
