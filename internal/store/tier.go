package store

import (
	"context"

	"foldmem/internal/faults"
)

// PromotionRequest describes one tier move to apply.
type PromotionRequest struct {
	MemoryID string
	ToTier   Tier
	Reason   string
}

// UpdateTier moves a memory to a new tier and writes the audit row in one
// transaction. A no-op move writes no audit.
func (s *Store) UpdateTier(ctx context.Context, memoryID string, to Tier, reason string) (TierPromotion, error) {
	if !to.Valid() {
		return TierPromotion{}, faults.Newf(faults.InvalidTier, "unknown tier %q", to)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := s.getForUpdate(ctx, memoryID)
	if err != nil {
		return TierPromotion{}, err
	}
	if m.Tier == to {
		return TierPromotion{}, nil
	}

	now := s.now()
	days := now.Sub(m.LastAccessed).Hours() / 24
	if days < 0 {
		days = 0
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return TierPromotion{}, faults.Wrap(faults.StorageFailed, "begin tier update", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`UPDATE memories SET tier = ?, tier_last_updated = ?, updated_at = ? WHERE id = ? AND deleted_at IS NULL`,
		string(to), fmtTime(now), fmtTime(now), memoryID)
	if err != nil {
		return TierPromotion{}, faults.Wrap(faults.StorageFailed, "update tier", err)
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO tier_promotions
			(memory_id, from_tier, to_tier, reason, access_count_at_promotion, days_since_last_access, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		memoryID, string(m.Tier), string(to), reason, m.AccessCount, days, fmtTime(now))
	if err != nil {
		return TierPromotion{}, faults.Wrap(faults.StorageFailed, "audit promotion", err)
	}
	if err := tx.Commit(); err != nil {
		return TierPromotion{}, faults.Wrap(faults.StorageFailed, "commit tier update", err)
	}

	id, _ := res.LastInsertId()
	return TierPromotion{
		ID:                 id,
		MemoryID:           memoryID,
		FromTier:           m.Tier,
		ToTier:             to,
		Reason:             reason,
		AccessCountAtPromo: m.AccessCount,
		DaysSinceLastUse:   days,
		CreatedAt:          now,
	}, nil
}

// PromoteBatch applies a set of tier moves in one transaction, one audit
// row each. Requests whose memory already sits in the target tier are
// skipped so retries stay idempotent.
func (s *Store) PromoteBatch(ctx context.Context, reqs []PromotionRequest) ([]TierPromotion, error) {
	if len(reqs) == 0 {
		return nil, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, faults.Wrap(faults.StorageFailed, "begin promotion batch", err)
	}
	defer tx.Rollback()

	var applied []TierPromotion
	for _, req := range reqs {
		if !req.ToTier.Valid() {
			return nil, faults.Newf(faults.InvalidTier, "unknown tier %q", req.ToTier)
		}

		var fromTier string
		var accessCount int
		var lastAccessed string
		err := tx.QueryRowContext(ctx,
			`SELECT tier, access_count, last_accessed FROM memories WHERE id = ? AND deleted_at IS NULL`,
			req.MemoryID).Scan(&fromTier, &accessCount, &lastAccessed)
		if err != nil {
			continue
		}
		if Tier(fromTier) == req.ToTier {
			continue
		}

		days := now.Sub(parseTime(lastAccessed)).Hours() / 24
		if days < 0 {
			days = 0
		}

		_, err = tx.ExecContext(ctx,
			`UPDATE memories SET tier = ?, tier_last_updated = ?, updated_at = ? WHERE id = ?`,
			string(req.ToTier), fmtTime(now), fmtTime(now), req.MemoryID)
		if err != nil {
			return nil, faults.Wrap(faults.StorageFailed, "batch tier update", err)
		}

		res, err := tx.ExecContext(ctx, `
			INSERT INTO tier_promotions
				(memory_id, from_tier, to_tier, reason, access_count_at_promotion, days_since_last_access, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			req.MemoryID, fromTier, string(req.ToTier), req.Reason, accessCount, days, fmtTime(now))
		if err != nil {
			return nil, faults.Wrap(faults.StorageFailed, "batch promotion audit", err)
		}

		id, _ := res.LastInsertId()
		applied = append(applied, TierPromotion{
			ID:                 id,
			MemoryID:           req.MemoryID,
			FromTier:           Tier(fromTier),
			ToTier:             req.ToTier,
			Reason:             req.Reason,
			AccessCountAtPromo: accessCount,
			DaysSinceLastUse:   days,
			CreatedAt:          now,
		})
	}

	if err := tx.Commit(); err != nil {
		return nil, faults.Wrap(faults.StorageFailed, "commit promotion batch", err)
	}
	return applied, nil
}

// ListPromotions returns the audit trail for a memory, newest first.
func (s *Store) ListPromotions(ctx context.Context, memoryID string, limit int) ([]TierPromotion, error) {
	if limit <= 0 {
		limit = 50
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, memory_id, from_tier, to_tier, reason,
		       access_count_at_promotion, days_since_last_access, created_at
		FROM tier_promotions
		WHERE memory_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?`, memoryID, limit)
	if err != nil {
		return nil, faults.Wrap(faults.StorageFailed, "list promotions", err)
	}
	defer rows.Close()

	var out []TierPromotion
	for rows.Next() {
		var p TierPromotion
		var from, to, created string
		if err := rows.Scan(&p.ID, &p.MemoryID, &from, &to, &p.Reason,
			&p.AccessCountAtPromo, &p.DaysSinceLastUse, &created); err != nil {
			continue
		}
		p.FromTier = Tier(from)
		p.ToTier = Tier(to)
		p.CreatedAt = parseTime(created)
		out = append(out, p)
	}
	return out, rows.Err()
}
