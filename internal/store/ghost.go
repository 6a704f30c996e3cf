package store

import (
	"context"
	"database/sql"
	"time"

	"foldmem/internal/faults"
)

// GhostExpiry is how long a persisted continuity snapshot stays retrievable.
const GhostExpiry = 7 * 24 * time.Hour

// InsertGhost persists a continuity snapshot. ExpiresAt is derived from
// the store clock when unset.
func (s *Store) InsertGhost(ctx context.Context, g *GhostLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if g.CreatedAt.IsZero() {
		g.CreatedAt = now
	}
	if g.ExpiresAt.IsZero() {
		g.ExpiresAt = g.CreatedAt.Add(GhostExpiry)
	}
	if g.ContextType == "" {
		g.ContextType = ContextTypeGlobal
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO ghost_logs
			(id, prompt_text, top_phi_memories, top_phi_values, synthesis_method,
			 conversation_id, context_type, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		g.ID, g.PromptText, encodeJSON(g.TopPhiMemories), encodeJSON(g.TopPhiValues),
		g.SynthesisMethod, nullable(g.ConversationID), g.ContextType,
		fmtTime(g.CreatedAt), fmtTime(g.ExpiresAt))
	return faults.Wrap(faults.StorageFailed, "insert ghost log", err)
}

// LatestGhost returns the newest unexpired snapshot for the conversation
// scope. An empty conversationID selects global snapshots.
func (s *Store) LatestGhost(ctx context.Context, conversationID string) (GhostLog, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	q := `SELECT id, prompt_text, top_phi_memories, top_phi_values, synthesis_method,
	             conversation_id, context_type, created_at, expires_at
	      FROM ghost_logs WHERE expires_at > ?`
	args := []interface{}{fmtTime(s.now())}
	if conversationID == "" {
		q += ` AND conversation_id IS NULL`
	} else {
		q += ` AND conversation_id = ?`
		args = append(args, conversationID)
	}
	q += ` ORDER BY created_at DESC LIMIT 1`

	var g GhostLog
	var memories, values, created, expires string
	var convID sql.NullString
	err := s.db.QueryRowContext(ctx, q, args...).Scan(
		&g.ID, &g.PromptText, &memories, &values, &g.SynthesisMethod,
		&convID, &g.ContextType, &created, &expires)
	if err == sql.ErrNoRows {
		return GhostLog{}, false, nil
	}
	if err != nil {
		return GhostLog{}, false, faults.Wrap(faults.StorageFailed, "latest ghost", err)
	}

	g.TopPhiMemories = decodeStrings(memories)
	g.TopPhiValues = decodeFloats(values)
	g.ConversationID = convID.String
	g.CreatedAt = parseTime(created)
	g.ExpiresAt = parseTime(expires)
	return g, true, nil
}

// CleanupExpiredGhosts deletes snapshots past their expiry.
func (s *Store) CleanupExpiredGhosts(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		`DELETE FROM ghost_logs WHERE expires_at <= ?`, fmtTime(s.now()))
	if err != nil {
		return 0, faults.Wrap(faults.StorageFailed, "cleanup ghost logs", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
