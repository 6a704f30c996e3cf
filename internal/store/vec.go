package store

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"strings"

	"foldmem/internal/embedding"
	"foldmem/internal/logging"

	"go.uber.org/zap"
)

// vecOverfetch widens the candidate pull beyond the caller's limit. The
// index orders by pure cosine distance while the final ranking weighs phi,
// so near misses on similarity must stay in the pool.
const vecOverfetch = 4

// similarCandidates bounds the nearest-neighbor pull for single-best
// lookups; one extra row covers the excluded id.
const similarCandidates = 8

// memoryColumnsM is memoryColumns qualified for joins against the vec
// index. Same order, so scanMemory applies.
const memoryColumnsM = `m.id, m.content, m.content_hash, m.embedding, m.tier, m.tier_last_updated,
	m.access_count, m.last_accessed, m.accessed_in_conversation_ids, m.category, m.tags, m.source,
	m.metadata, m.conversation_id, m.resonance_phi, m.is_catalyst, m.created_at, m.updated_at, m.deleted_at`

// createVecTable provisions the vec0 mirror of live embeddings and
// backfills rows written by builds without the extension.
func (s *Store) createVecTable() error {
	_, err := s.db.Exec(fmt.Sprintf(
		`CREATE VIRTUAL TABLE IF NOT EXISTS vec_memories USING vec0(embedding float[%d], memory_id TEXT)`,
		embedding.Dim))
	if err != nil {
		return err
	}
	return s.backfillVec()
}

// backfillVec mirrors live memories missing from the vec index.
func (s *Store) backfillVec() error {
	rows, err := s.db.Query(`
		SELECT m.id, m.embedding FROM memories m
		LEFT JOIN vec_memories v ON v.memory_id = m.id
		WHERE m.deleted_at IS NULL AND v.memory_id IS NULL`)
	if err != nil {
		return err
	}

	type pending struct {
		id  string
		emb string
	}
	var missing []pending
	for rows.Next() {
		var p pending
		if err := rows.Scan(&p.id, &p.emb); err != nil {
			continue
		}
		missing = append(missing, p)
	}
	if err := rows.Close(); err != nil {
		return err
	}

	for _, p := range missing {
		vec := decodeVector(p.emb)
		if len(vec) != embedding.Dim {
			continue
		}
		if _, err := s.db.Exec(
			`INSERT INTO vec_memories (embedding, memory_id) VALUES (?, ?)`,
			vecBlob(vec), p.id); err != nil {
			return err
		}
	}
	return nil
}

// vecBlob encodes a vector in the little-endian float32 layout sqlite-vec
// reads.
func vecBlob(vec []float32) []byte {
	out := make([]byte, 4*len(vec))
	for i, v := range vec {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(v))
	}
	return out
}

// upsertVec mirrors a memory embedding into the vec index. Index failures
// are logged, never surfaced; ranking falls back to the full scan.
func (s *Store) upsertVec(ctx context.Context, id string, vec []float32) {
	if !s.vectorExt {
		return
	}
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM vec_memories WHERE memory_id = ?`, id); err != nil {
		logging.Get(logging.CategoryStore).Warn("vec index delete failed",
			zap.String("memory_id", id), zap.Error(err))
		return
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO vec_memories (embedding, memory_id) VALUES (?, ?)`,
		vecBlob(vec), id); err != nil {
		logging.Get(logging.CategoryStore).Warn("vec index insert failed",
			zap.String("memory_id", id), zap.Error(err))
	}
}

// deleteVec drops a memory from the vec index.
func (s *Store) deleteVec(ctx context.Context, id string) {
	if !s.vectorExt {
		return
	}
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM vec_memories WHERE memory_id = ?`, id); err != nil {
		logging.Get(logging.CategoryStore).Warn("vec index delete failed",
			zap.String("memory_id", id), zap.Error(err))
	}
}

// vecNearest returns up to k live memories nearest the query, closest
// first, ranked by the extension. Callers hold the read lock.
func (s *Store) vecNearest(ctx context.Context, query []float32, tiers []Tier, k int) ([]Memory, error) {
	q := `SELECT ` + memoryColumnsM + `
		FROM vec_memories v
		JOIN memories m ON m.id = v.memory_id
		WHERE m.deleted_at IS NULL`
	args := []interface{}{}
	if len(tiers) > 0 {
		q += ` AND m.tier IN (?` + strings.Repeat(",?", len(tiers)-1) + `)`
		for _, t := range tiers {
			args = append(args, string(t))
		}
	}
	q += ` ORDER BY vec_distance_cosine(v.embedding, ?) ASC LIMIT ?`
	args = append(args, vecBlob(query), k)

	return s.queryMemories(ctx, q, args...)
}
