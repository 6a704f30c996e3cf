package store

import (
	"context"
	"database/sql"
	"encoding/json"

	"foldmem/internal/faults"
)

// WriteReflection persists a session reflection.
func (s *Store) WriteReflection(ctx context.Context, r *Reflection) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if r.CreatedAt.IsZero() {
		r.CreatedAt = s.now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO meta_reflections
			(id, reflection_type, conversation_id, metrics, insights, recommendations, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.ReflectionType, nullable(r.ConversationID),
		encodeJSON(r.Metrics), encodeJSON(r.Insights), encodeJSON(r.Recommendations),
		fmtTime(r.CreatedAt))
	return faults.Wrap(faults.StorageFailed, "write reflection", err)
}

// LatestReflection returns the newest reflection for a conversation scope.
func (s *Store) LatestReflection(ctx context.Context, conversationID string) (Reflection, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	q := `SELECT id, reflection_type, conversation_id, metrics, insights, recommendations, created_at
	      FROM meta_reflections`
	var args []interface{}
	if conversationID == "" {
		q += ` WHERE conversation_id IS NULL`
	} else {
		q += ` WHERE conversation_id = ?`
		args = append(args, conversationID)
	}
	q += ` ORDER BY created_at DESC LIMIT 1`

	var r Reflection
	var metrics, insights, recs, created string
	var convID sql.NullString
	err := s.db.QueryRowContext(ctx, q, args...).Scan(
		&r.ID, &r.ReflectionType, &convID, &metrics, &insights, &recs, &created)
	if err == sql.ErrNoRows {
		return Reflection{}, false, nil
	}
	if err != nil {
		return Reflection{}, false, faults.Wrap(faults.StorageFailed, "latest reflection", err)
	}

	_ = json.Unmarshal([]byte(metrics), &r.Metrics)
	r.Insights = decodeStrings(insights)
	r.Recommendations = decodeStrings(recs)
	r.ConversationID = convID.String
	r.CreatedAt = parseTime(created)
	return r, true, nil
}
