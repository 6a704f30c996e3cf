package store

import (
	"context"
	"math"

	"foldmem/internal/faults"
)

// maxPairsPerTx bounds how many co-occurrence upserts share a transaction.
const maxPairsPerTx = 1000

// CoOccurrencePair is a canonical (a < b) association endpoint pair.
type CoOccurrencePair struct {
	A, B string
}

// UpsertCoOccurrences records one co-occurrence for each pair. New edges
// start at count 1, strength 1.0; existing edges increment and take the
// log-dampened strength log(1+count)/10. Pairs are chunked into
// transactions of at most maxPairsPerTx.
func (s *Store) UpsertCoOccurrences(ctx context.Context, pairs []CoOccurrencePair, conversationID string) error {
	if len(pairs) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := fmtTime(s.now())
	contexts := "[]"
	if conversationID != "" {
		contexts = encodeJSON([]string{conversationID})
	}

	for start := 0; start < len(pairs); start += maxPairsPerTx {
		end := start + maxPairsPerTx
		if end > len(pairs) {
			end = len(pairs)
		}

		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return faults.Wrap(faults.StorageFailed, "begin co-occurrence tx", err)
		}

		upsert, err := tx.PrepareContext(ctx, `
			INSERT INTO memory_associations
				(memory_a, memory_b, co_occurrence_count, strength,
				 conversation_contexts, first_co_occurred_at, last_co_occurred_at)
			VALUES (?, ?, 1, 1.0, ?, ?, ?)
			ON CONFLICT(memory_a, memory_b) DO UPDATE SET
				co_occurrence_count = co_occurrence_count + 1,
				last_co_occurred_at = excluded.last_co_occurred_at,
				conversation_contexts = CASE WHEN ? != ''
					THEN json_insert(conversation_contexts, '$[#]', ?)
					ELSE conversation_contexts END
			RETURNING co_occurrence_count`)
		if err != nil {
			tx.Rollback()
			return faults.Wrap(faults.StorageFailed, "prepare co-occurrence upsert", err)
		}

		reweigh, err := tx.PrepareContext(ctx, `
			UPDATE memory_associations SET strength = ? WHERE memory_a = ? AND memory_b = ?`)
		if err != nil {
			upsert.Close()
			tx.Rollback()
			return faults.Wrap(faults.StorageFailed, "prepare strength update", err)
		}

		for _, p := range pairs[start:end] {
			a, b := OrderPair(p.A, p.B)
			if a == b {
				continue
			}
			var count int
			err := upsert.QueryRowContext(ctx, a, b, contexts, now, now, conversationID, conversationID).Scan(&count)
			if err != nil {
				upsert.Close()
				reweigh.Close()
				tx.Rollback()
				return faults.Wrap(faults.StorageFailed, "upsert co-occurrence", err)
			}
			// New edges keep the seeded 1.0; incremented edges take the
			// log-dampened weight.
			if count > 1 {
				if _, err := reweigh.ExecContext(ctx, RecomputeStrength(count), a, b); err != nil {
					upsert.Close()
					reweigh.Close()
					tx.Rollback()
					return faults.Wrap(faults.StorageFailed, "update strength", err)
				}
			}
		}
		upsert.Close()
		reweigh.Close()
		if err := tx.Commit(); err != nil {
			return faults.Wrap(faults.StorageFailed, "commit co-occurrence tx", err)
		}
	}
	return nil
}

// UpsertSynthesisLink records a Fold synthesis edge. New links start at
// strength 2.0; repeated synthesis adds 1.0.
func (s *Store) UpsertSynthesisLink(ctx context.Context, a, b, conversationID string) error {
	a, b = OrderPair(a, b)
	if a == b {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := fmtTime(s.now())
	contexts := "[]"
	if conversationID != "" {
		contexts = encodeJSON([]string{conversationID})
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO memory_associations
			(memory_a, memory_b, co_occurrence_count, strength,
			 conversation_contexts, first_co_occurred_at, last_co_occurred_at)
		VALUES (?, ?, 1, 2.0, ?, ?, ?)
		ON CONFLICT(memory_a, memory_b) DO UPDATE SET
			co_occurrence_count = co_occurrence_count + 1,
			strength = strength + 1.0,
			last_co_occurred_at = excluded.last_co_occurred_at`,
		a, b, contexts, now, now)
	return faults.Wrap(faults.StorageFailed, "upsert synthesis link", err)
}

// ListAssociations returns the association edges touching memoryID whose
// strength meets minStrength, strongest first, filtered to live partners.
func (s *Store) ListAssociations(ctx context.Context, memoryID string, minStrength float64, limit int) ([]Association, error) {
	if limit <= 0 {
		limit = 20
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT a.memory_a, a.memory_b, a.co_occurrence_count, a.strength,
		       a.conversation_contexts, a.first_co_occurred_at, a.last_co_occurred_at
		FROM memory_associations a
		JOIN memories ma ON ma.id = a.memory_a AND ma.deleted_at IS NULL
		JOIN memories mb ON mb.id = a.memory_b AND mb.deleted_at IS NULL
		WHERE (a.memory_a = ? OR a.memory_b = ?) AND a.strength >= ?
		ORDER BY a.strength DESC, a.co_occurrence_count DESC
		LIMIT ?`, memoryID, memoryID, minStrength, limit)
	if err != nil {
		return nil, faults.Wrap(faults.StorageFailed, "list associations", err)
	}
	defer rows.Close()

	return scanAssociations(rows)
}

// CountAssociations counts live-partnered edges touching memoryID.
func (s *Store) CountAssociations(ctx context.Context, memoryID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM memory_associations a
		JOIN memories ma ON ma.id = a.memory_a AND ma.deleted_at IS NULL
		JOIN memories mb ON mb.id = a.memory_b AND mb.deleted_at IS NULL
		WHERE a.memory_a = ? OR a.memory_b = ?`, memoryID, memoryID).Scan(&n)
	if err != nil {
		return 0, faults.Wrap(faults.StorageFailed, "count associations", err)
	}
	return n, nil
}

// FindHubs returns live memories with at least minConnections association
// edges, ordered by connection count then average strength.
func (s *Store) FindHubs(ctx context.Context, minConnections, limit int) ([]Hub, error) {
	if limit <= 0 {
		limit = 10
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT m.id, m.content, m.tier, m.resonance_phi,
		       COUNT(*) AS connections, AVG(e.strength) AS avg_strength
		FROM memories m
		JOIN (
			SELECT memory_a AS id, strength FROM memory_associations
			UNION ALL
			SELECT memory_b AS id, strength FROM memory_associations
		) e ON e.id = m.id
		WHERE m.deleted_at IS NULL
		GROUP BY m.id
		HAVING COUNT(*) >= ?
		ORDER BY connections DESC, avg_strength DESC
		LIMIT ?`, minConnections, limit)
	if err != nil {
		return nil, faults.Wrap(faults.StorageFailed, "find hubs", err)
	}
	defer rows.Close()

	var hubs []Hub
	for rows.Next() {
		var h Hub
		var tier string
		if err := rows.Scan(&h.MemoryID, &h.Content, &tier, &h.Phi, &h.Connections, &h.AvgStrength); err != nil {
			continue
		}
		h.Tier = Tier(tier)
		hubs = append(hubs, h)
	}
	return hubs, rows.Err()
}

// RecomputeStrength rewrites an edge strength from its stored count. Used
// by tests and the decay sweep when counts are repaired out of band.
func RecomputeStrength(count int) float64 {
	if count < 1 {
		count = 1
	}
	return math.Log(1+float64(count)) / 10.0
}

func scanAssociations(rows interface {
	Next() bool
	Scan(...interface{}) error
	Err() error
}) ([]Association, error) {
	var out []Association
	for rows.Next() {
		var a Association
		var contexts, first, last string
		if err := rows.Scan(&a.MemoryA, &a.MemoryB, &a.CoOccurrenceCount, &a.Strength,
			&contexts, &first, &last); err != nil {
			continue
		}
		// Contexts is a multiset: one entry per co-occurrence, repeats
		// preserved so per-conversation counts stay observable.
		a.Contexts = decodeStrings(contexts)
		a.FirstCoOccurredAt = parseTime(first)
		a.LastCoOccurredAt = parseTime(last)
		out = append(out, a)
	}
	return out, rows.Err()
}
