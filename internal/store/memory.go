package store

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"time"

	"foldmem/internal/embedding"
	"foldmem/internal/faults"
	"foldmem/internal/logging"

	"go.uber.org/zap"
)

// timeLayout is the canonical timestamp encoding; RFC 3339 strings sort
// lexicographically, which the window queries rely on.
const timeLayout = time.RFC3339Nano

func fmtTime(t time.Time) string { return t.UTC().Format(timeLayout) }

func parseTime(raw string) time.Time {
	if raw == "" {
		return time.Time{}
	}
	t, err := time.Parse(timeLayout, raw)
	if err != nil {
		return time.Time{}
	}
	return t
}

const memoryColumns = `id, content, content_hash, embedding, tier, tier_last_updated,
	access_count, last_accessed, accessed_in_conversation_ids, category, tags, source,
	metadata, conversation_id, resonance_phi, is_catalyst, created_at, updated_at, deleted_at`

// scanMemory reads one memory row in memoryColumns order.
func scanMemory(scanner interface{ Scan(...interface{}) error }) (Memory, error) {
	var m Memory
	var embeddingJSON, conversations, tags, metadata string
	var tier, tierUpdated, lastAccessed, createdAt, updatedAt string
	var category, source, convID, deletedAt sql.NullString
	var catalyst int

	err := scanner.Scan(
		&m.ID, &m.Content, &m.ContentHash, &embeddingJSON, &tier, &tierUpdated,
		&m.AccessCount, &lastAccessed, &conversations, &category, &tags, &source,
		&metadata, &convID, &m.Phi, &catalyst, &createdAt, &updatedAt, &deletedAt,
	)
	if err != nil {
		return Memory{}, err
	}

	m.Embedding = decodeVector(embeddingJSON)
	m.Tier = Tier(tier)
	m.TierLastUpdated = parseTime(tierUpdated)
	m.LastAccessed = parseTime(lastAccessed)
	m.Conversations = decodeStrings(conversations)
	m.Category = category.String
	m.Tags = decodeStrings(tags)
	m.Source = source.String
	m.Metadata = decodeMetadata(metadata)
	m.ConversationID = convID.String
	m.IsCatalyst = catalyst != 0
	m.CreatedAt = parseTime(createdAt)
	m.UpdatedAt = parseTime(updatedAt)
	if deletedAt.Valid {
		t := parseTime(deletedAt.String)
		m.DeletedAt = &t
	}
	return m, nil
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// InsertMemory persists a new memory. The embedding dimension is enforced
// here; a violated content-hash constraint maps to Conflict.
func (s *Store) InsertMemory(ctx context.Context, m *Memory) error {
	if len(m.Embedding) != embedding.Dim {
		return faults.Newf(faults.InvalidInput, "embedding has %d dimensions, want %d", len(m.Embedding), embedding.Dim)
	}
	if !m.Tier.Valid() {
		return faults.Newf(faults.InvalidTier, "unknown tier %q", m.Tier)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now
	}
	m.UpdatedAt = now
	if m.TierLastUpdated.IsZero() {
		m.TierLastUpdated = now
	}
	if m.LastAccessed.IsZero() {
		m.LastAccessed = now
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO memories (`+memoryColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, NULL)`,
		m.ID, m.Content, m.ContentHash, encodeVector(m.Embedding), string(m.Tier),
		fmtTime(m.TierLastUpdated), m.AccessCount, fmtTime(m.LastAccessed),
		encodeJSON(m.Conversations), nullable(m.Category), encodeJSON(m.Tags),
		nullable(m.Source), encodeJSON(m.Metadata), nullable(m.ConversationID),
		m.Phi, boolToInt(m.IsCatalyst), fmtTime(m.CreatedAt), fmtTime(m.UpdatedAt),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE") || strings.Contains(err.Error(), "constraint") {
			return faults.Wrap(faults.Conflict, "content hash already live", err)
		}
		return faults.Wrap(faults.StorageFailed, "insert memory", err)
	}
	s.upsertVec(ctx, m.ID, m.Embedding)
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// GetMemory returns a live memory by id.
func (s *Store) GetMemory(ctx context.Context, id string) (Memory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx,
		`SELECT `+memoryColumns+` FROM memories WHERE id = ? AND deleted_at IS NULL`, id)
	m, err := scanMemory(row)
	if err == sql.ErrNoRows {
		return Memory{}, faults.Newf(faults.MemoryNotFound, "memory %s not found", id)
	}
	if err != nil {
		return Memory{}, faults.Wrap(faults.StorageFailed, "get memory", err)
	}
	return m, nil
}

// GetLiveByHash looks up a live memory by content hash (exact dedup).
func (s *Store) GetLiveByHash(ctx context.Context, hash string) (Memory, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx,
		`SELECT `+memoryColumns+` FROM memories WHERE content_hash = ? AND deleted_at IS NULL`, hash)
	m, err := scanMemory(row)
	if err == sql.ErrNoRows {
		return Memory{}, false, nil
	}
	if err != nil {
		return Memory{}, false, faults.Wrap(faults.StorageFailed, "lookup by hash", err)
	}
	return m, true, nil
}

// TouchDuplicate bumps access tracking for an exact-dedup hit: access_count
// +1, timestamps refreshed, conversation appended. Phi is left unchanged.
func (s *Store) TouchDuplicate(ctx context.Context, id, conversationID string) (Memory, error) {
	s.mu.Lock()
	now := s.now()
	_, err := s.db.ExecContext(ctx, `
		UPDATE memories
		SET access_count = access_count + 1,
		    last_accessed = ?,
		    updated_at = ?,
		    accessed_in_conversation_ids = CASE WHEN ? != ''
		        THEN json_insert(accessed_in_conversation_ids, '$[#]', ?)
		        ELSE accessed_in_conversation_ids END
		WHERE id = ? AND deleted_at IS NULL`,
		fmtTime(now), fmtTime(now), conversationID, conversationID, id)
	s.mu.Unlock()
	if err != nil {
		return Memory{}, faults.Wrap(faults.StorageFailed, "touch duplicate", err)
	}
	return s.GetMemory(ctx, id)
}

// SoftDelete marks a memory deleted. Its association rows remain; discovery
// filters them against live memories.
func (s *Store) SoftDelete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	res, err := s.db.ExecContext(ctx,
		`UPDATE memories SET deleted_at = ?, updated_at = ? WHERE id = ? AND deleted_at IS NULL`,
		fmtTime(now), fmtTime(now), id)
	if err != nil {
		return faults.Wrap(faults.StorageFailed, "soft delete", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return faults.Newf(faults.MemoryNotFound, "memory %s not found", id)
	}
	s.deleteVec(ctx, id)
	return nil
}

// Search ranks live memories against the query embedding by structural
// weight W = 0.7*sim + 0.3*(phi/5). The similarity threshold gates on pure
// cosine similarity; ordering uses W with phi as tiebreak. Candidates come
// from the vec0 index when sqlite-vec is loaded, otherwise from a full
// scan with cosine computed in Go; scoring is identical either way.
func (s *Store) Search(ctx context.Context, query []float32, threshold float64, tiers []Tier, limit int) ([]SearchResult, error) {
	if limit <= 0 {
		limit = 20
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	candidates, err := s.searchCandidates(ctx, query, tiers, limit)
	if err != nil {
		return nil, err
	}

	var results []SearchResult
	for _, m := range candidates {
		sim, err := embedding.CosineSimilarity(query, m.Embedding)
		if err != nil {
			continue
		}
		if sim < threshold {
			continue
		}
		results = append(results, SearchResult{
			Memory:     m,
			Similarity: sim,
			Weight:     0.7*sim + 0.3*(m.Phi/MaxPhi),
		})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Weight != results[j].Weight {
			return results[i].Weight > results[j].Weight
		}
		return results[i].Memory.Phi > results[j].Memory.Phi
	})
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// searchCandidates returns the rows Search scores: the vec0 nearest slice
// when the extension is loaded, otherwise every live row in scope. Index
// errors fall back to the full scan. Callers hold the read lock.
func (s *Store) searchCandidates(ctx context.Context, query []float32, tiers []Tier, limit int) ([]Memory, error) {
	if s.vectorExt {
		candidates, err := s.vecNearest(ctx, query, tiers, limit*vecOverfetch)
		if err == nil {
			return candidates, nil
		}
		logging.Get(logging.CategoryStore).Debug("vec search failed, falling back to full scan", zap.Error(err))
	}

	q := `SELECT ` + memoryColumns + ` FROM memories WHERE deleted_at IS NULL`
	var args []interface{}
	if len(tiers) > 0 {
		q += ` AND tier IN (?` + strings.Repeat(",?", len(tiers)-1) + `)`
		for _, t := range tiers {
			args = append(args, string(t))
		}
	}
	return s.queryMemories(ctx, q, args...)
}

// FindMostSimilar returns the single most similar live memory with cosine
// similarity >= threshold, excluding excludeID. Used by consolidation and
// the Fold evolution check.
func (s *Store) FindMostSimilar(ctx context.Context, query []float32, threshold float64, excludeID string) (Memory, float64, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.vectorExt {
		candidates, err := s.vecNearest(ctx, query, nil, similarCandidates)
		if err == nil {
			// Candidates arrive closest first; the first one past the
			// gate is the answer.
			for _, m := range candidates {
				if m.ID == excludeID {
					continue
				}
				sim, err := embedding.CosineSimilarity(query, m.Embedding)
				if err != nil || sim < threshold {
					continue
				}
				return m, sim, true, nil
			}
			return Memory{}, 0, false, nil
		}
		logging.Get(logging.CategoryStore).Debug("vec lookup failed, falling back to full scan", zap.Error(err))
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+memoryColumns+` FROM memories WHERE deleted_at IS NULL AND id != ?`, excludeID)
	if err != nil {
		return Memory{}, 0, false, faults.Wrap(faults.StorageFailed, "similarity scan", err)
	}
	defer rows.Close()

	var best Memory
	bestSim := -1.0
	found := false
	for rows.Next() {
		m, err := scanMemory(rows)
		if err != nil {
			continue
		}
		sim, err := embedding.CosineSimilarity(query, m.Embedding)
		if err != nil || sim < threshold {
			continue
		}
		if sim > bestSim {
			best, bestSim, found = m, sim, true
		}
	}
	if err := rows.Err(); err != nil {
		return Memory{}, 0, false, faults.Wrap(faults.StorageFailed, "similarity rows", err)
	}
	if !found {
		return Memory{}, 0, false, nil
	}
	return best, bestSim, true, nil
}

// BatchAccessUpdate applies the retrieval-path side effects to the given
// ids in one statement: access_count +1, phi +phiDelta clamped to MaxPhi,
// last_accessed refreshed, conversation id appended.
func (s *Store) BatchAccessUpdate(ctx context.Context, ids []string, conversationID string, phiDelta float64) error {
	if len(ids) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := fmtTime(s.now())
	placeholders := strings.Repeat(",?", len(ids)-1)
	args := []interface{}{phiDelta, now, now, conversationID, conversationID}
	for _, id := range ids {
		args = append(args, id)
	}

	_, err := s.db.ExecContext(ctx, `
		UPDATE memories
		SET access_count = access_count + 1,
		    resonance_phi = MIN(resonance_phi + ?, 5.0),
		    last_accessed = ?,
		    updated_at = ?,
		    accessed_in_conversation_ids = CASE WHEN ? != ''
		        THEN json_insert(accessed_in_conversation_ids, '$[#]', ?)
		        ELSE accessed_in_conversation_ids END
		WHERE id IN (?`+placeholders+`) AND deleted_at IS NULL`, args...)
	return faults.Wrap(faults.StorageFailed, "batch access update", err)
}

// AccessCounts fetches current access counts and tiers for the given ids.
// The retrieval path uses it to find batched promotion candidates after a
// BatchAccessUpdate.
func (s *Store) AccessCounts(ctx context.Context, ids []string) (map[string]struct {
	Count int
	Tier  Tier
}, error) {
	out := make(map[string]struct {
		Count int
		Tier  Tier
	})
	if len(ids) == 0 {
		return out, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	placeholders := strings.Repeat(",?", len(ids)-1)
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, access_count, tier FROM memories WHERE id IN (?`+placeholders+`) AND deleted_at IS NULL`,
		args...)
	if err != nil {
		return nil, faults.Wrap(faults.StorageFailed, "access counts", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id, tier string
		var count int
		if err := rows.Scan(&id, &count, &tier); err != nil {
			continue
		}
		out[id] = struct {
			Count int
			Tier  Tier
		}{count, Tier(tier)}
	}
	return out, rows.Err()
}

// ListLive returns live memories with phi >= minPhi, highest phi first.
func (s *Store) ListLive(ctx context.Context, minPhi float64, limit int) ([]Memory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	q := `SELECT ` + memoryColumns + ` FROM memories
		WHERE deleted_at IS NULL AND resonance_phi >= ?
		ORDER BY resonance_phi DESC, access_count DESC`
	args := []interface{}{minPhi}
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}
	return s.queryMemories(ctx, q, args...)
}

// TopPhiInTier returns the highest-phi live memories within a tier.
func (s *Store) TopPhiInTier(ctx context.Context, tier Tier, limit int) ([]Memory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryMemories(ctx, `
		SELECT `+memoryColumns+` FROM memories
		WHERE deleted_at IS NULL AND tier = ?
		ORDER BY resonance_phi DESC, access_count DESC
		LIMIT ?`, string(tier), limit)
}

// ListByCategory returns live memories in a category, optionally filtered
// by tier, highest phi first.
func (s *Store) ListByCategory(ctx context.Context, category string, tiers []Tier, limit int) ([]Memory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	q := `SELECT ` + memoryColumns + ` FROM memories WHERE deleted_at IS NULL AND category = ?`
	args := []interface{}{category}
	if len(tiers) > 0 {
		q += ` AND tier IN (?` + strings.Repeat(",?", len(tiers)-1) + `)`
		for _, t := range tiers {
			args = append(args, string(t))
		}
	}
	q += ` ORDER BY resonance_phi DESC, last_accessed DESC LIMIT ?`
	args = append(args, limit)
	return s.queryMemories(ctx, q, args...)
}

// RecentBySource returns live memories of a category/source pair created
// after since, newest first. The handshake uses it for fresh Fold output.
func (s *Store) RecentBySource(ctx context.Context, category, source string, since time.Time, limit int) ([]Memory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryMemories(ctx, `
		SELECT `+memoryColumns+` FROM memories
		WHERE deleted_at IS NULL AND category = ? AND source = ? AND created_at > ?
		ORDER BY created_at DESC LIMIT ?`,
		category, source, fmtTime(since), limit)
}

// SearchText runs a full-text match over memory content, best bm25 rank
// first. The query uses fts5 MATCH syntax; deleted memories are filtered
// out.
func (s *Store) SearchText(ctx context.Context, query string, limit int) ([]Memory, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, faults.New(faults.InvalidInput, "text query is empty")
	}
	if limit <= 0 {
		limit = 10
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.ftsExt {
		return nil, faults.New(faults.StorageFailed, "full-text index unavailable in this build")
	}

	return s.queryMemories(ctx, `
		SELECT `+memoryColumns+` FROM memories
		JOIN (
			SELECT rowid AS fts_rowid, rank FROM memories_fts
			WHERE memories_fts MATCH ?
		) ON memories.rowid = fts_rowid
		WHERE deleted_at IS NULL
		ORDER BY rank LIMIT ?`, query, limit)
}

// ListBySource returns all live memories of a category/source pair, newest
// first, with no recency cutoff.
func (s *Store) ListBySource(ctx context.Context, category, source string, limit int) ([]Memory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryMemories(ctx, `
		SELECT `+memoryColumns+` FROM memories
		WHERE deleted_at IS NULL AND category = ? AND source = ?
		ORDER BY created_at DESC LIMIT ?`,
		category, source, limit)
}

// StateChangedSince reports whether a catalyst or high-phi memory was added
// in the given conversation scope after since. Drives handshake cache
// invalidation.
func (s *Store) StateChangedSince(ctx context.Context, since time.Time, conversationID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	q := `SELECT EXISTS(
		SELECT 1 FROM memories
		WHERE deleted_at IS NULL AND created_at > ?
		  AND (is_catalyst = 1 OR resonance_phi >= 4.0)`
	args := []interface{}{fmtTime(since)}
	if conversationID != "" {
		q += ` AND conversation_id = ?`
		args = append(args, conversationID)
	}
	q += `)`

	var exists int
	if err := s.db.QueryRowContext(ctx, q, args...).Scan(&exists); err != nil {
		return false, faults.Wrap(faults.StorageFailed, "state change check", err)
	}
	return exists != 0, nil
}

// TieredSnapshot returns, in a single window query, all active memories
// plus up to perTierCap thread and stable memories. Active rows order by
// recency; thread/stable by phi with access-count fallback. Read-only:
// no access state is touched.
func (s *Store) TieredSnapshot(ctx context.Context, perTierCap int) (map[Tier][]Memory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+memoryColumns+` FROM (
			SELECT *, ROW_NUMBER() OVER (
				PARTITION BY tier
				ORDER BY CASE WHEN tier = 'active' THEN last_accessed END DESC,
				         resonance_phi DESC, access_count DESC, last_accessed DESC
			) AS rn
			FROM memories
			WHERE deleted_at IS NULL AND tier IN ('active', 'thread', 'stable')
		) WHERE tier = 'active' OR rn <= ?`, perTierCap)
	if err != nil {
		return nil, faults.Wrap(faults.StorageFailed, "tiered snapshot", err)
	}
	defer rows.Close()

	out := make(map[Tier][]Memory)
	for rows.Next() {
		m, err := scanMemory(rows)
		if err != nil {
			continue
		}
		out[m.Tier] = append(out[m.Tier], m)
	}
	return out, rows.Err()
}

// queryMemories runs a query returning memoryColumns rows. Callers hold
// the read lock.
func (s *Store) queryMemories(ctx context.Context, query string, args ...interface{}) ([]Memory, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, faults.Wrap(faults.StorageFailed, "query memories", err)
	}
	defer rows.Close()

	var out []Memory
	for rows.Next() {
		m, err := scanMemory(rows)
		if err != nil {
			logging.Get(logging.CategoryStore).Warn("memory row scan failed", zap.Error(err))
			continue
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// MergeVariant runs the consolidation merge in one transaction: the older
// memory absorbs phi and archives the variant; the newer duplicate is
// soft-deleted.
func (s *Store) MergeVariant(ctx context.Context, olderID, newerID string, variant SemanticVariant, markCatalyst bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	older, err := s.getForUpdate(ctx, olderID)
	if err != nil {
		return err
	}

	meta := older.Metadata
	meta.SemanticVariants = append(meta.SemanticVariants, variant)

	newPhi := older.Phi + variant.PhiContributed
	if newPhi > MaxPhi {
		newPhi = MaxPhi
	}

	now := fmtTime(s.now())
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return faults.Wrap(faults.StorageFailed, "begin merge", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		UPDATE memories
		SET resonance_phi = ?,
		    access_count = access_count + 1,
		    last_accessed = ?,
		    updated_at = ?,
		    is_catalyst = CASE WHEN ? THEN 1 ELSE is_catalyst END,
		    metadata = ?
		WHERE id = ? AND deleted_at IS NULL`,
		newPhi, now, now, markCatalyst, encodeJSON(meta), olderID)
	if err != nil {
		return faults.Wrap(faults.StorageFailed, "merge update", err)
	}

	if newerID != "" {
		_, err = tx.ExecContext(ctx,
			`UPDATE memories SET deleted_at = ?, updated_at = ? WHERE id = ? AND deleted_at IS NULL`,
			now, now, newerID)
		if err != nil {
			return faults.Wrap(faults.StorageFailed, "merge soft delete", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return faults.Wrap(faults.StorageFailed, "commit merge", err)
	}
	if newerID != "" {
		s.deleteVec(ctx, newerID)
	}
	return nil
}

// Evolve rewrites a memory in place for a Fold evolution: content, hash,
// and embedding are replaced, phi grows by phiDelta (clamped), and the
// evolution history gains an entry. One transaction.
func (s *Store) Evolve(ctx context.Context, id, newContent, newHash string, newEmbedding []float32, phiDelta float64, entry EvolutionEntry) (Memory, error) {
	if len(newEmbedding) != embedding.Dim {
		return Memory{}, faults.Newf(faults.InvalidInput, "embedding has %d dimensions, want %d", len(newEmbedding), embedding.Dim)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := s.getForUpdate(ctx, id)
	if err != nil {
		return Memory{}, err
	}

	entry.PreviousContent = m.Content
	meta := m.Metadata
	meta.EvolutionHistory = append(meta.EvolutionHistory, entry)

	newPhi := m.Phi + phiDelta
	if newPhi > MaxPhi {
		newPhi = MaxPhi
	}

	now := fmtTime(s.now())
	_, err = s.db.ExecContext(ctx, `
		UPDATE memories
		SET content = ?, content_hash = ?, embedding = ?,
		    resonance_phi = ?, metadata = ?, updated_at = ?
		WHERE id = ? AND deleted_at IS NULL`,
		newContent, newHash, encodeVector(newEmbedding), newPhi, encodeJSON(meta), now, id)
	if err != nil {
		return Memory{}, faults.Wrap(faults.StorageFailed, "evolve memory", err)
	}

	s.upsertVec(ctx, id, newEmbedding)

	m.Content = newContent
	m.ContentHash = newHash
	m.Embedding = newEmbedding
	m.Phi = newPhi
	m.Metadata = meta
	m.UpdatedAt = parseTime(now)
	return m, nil
}

// getForUpdate fetches a live memory while the caller holds the write lock.
func (s *Store) getForUpdate(ctx context.Context, id string) (Memory, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+memoryColumns+` FROM memories WHERE id = ? AND deleted_at IS NULL`, id)
	m, err := scanMemory(row)
	if err == sql.ErrNoRows {
		return Memory{}, faults.Newf(faults.MemoryNotFound, "memory %s not found", id)
	}
	if err != nil {
		return Memory{}, faults.Wrap(faults.StorageFailed, fmt.Sprintf("get memory %s", id), err)
	}
	return m, nil
}
