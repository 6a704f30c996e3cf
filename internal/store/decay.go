package store

import (
	"context"
	"database/sql"
	"time"

	"foldmem/internal/faults"
)

// ApplyDecay multiplies phi by factor for live memories whose last access
// predates cutoff and whose phi exceeds minPhi. Runs as one transaction;
// returns the row count and the total phi removed.
func (s *Store) ApplyDecay(ctx context.Context, factor float64, cutoff time.Time, minPhi float64) (int64, float64, error) {
	if factor <= 0 || factor > 1 {
		return 0, 0, faults.Newf(faults.InvalidInput, "decay factor %v outside (0, 1]", factor)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, 0, faults.Wrap(faults.StorageFailed, "begin decay", err)
	}
	defer tx.Rollback()

	where := ` WHERE deleted_at IS NULL AND last_accessed < ? AND resonance_phi > ?`
	var totalDelta sql.NullFloat64
	err = tx.QueryRowContext(ctx,
		`SELECT SUM(resonance_phi * (1.0 - ?)) FROM memories`+where,
		factor, fmtTime(cutoff), minPhi).Scan(&totalDelta)
	if err != nil {
		return 0, 0, faults.Wrap(faults.StorageFailed, "sum decay delta", err)
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE memories SET resonance_phi = MAX(resonance_phi * ?, 0.0), updated_at = ?`+where,
		factor, fmtTime(s.now()), fmtTime(cutoff), minPhi)
	if err != nil {
		return 0, 0, faults.Wrap(faults.StorageFailed, "apply decay", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, 0, faults.Wrap(faults.StorageFailed, "commit decay", err)
	}

	n, _ := res.RowsAffected()
	return n, totalDelta.Float64, nil
}

// TopCatalysts returns live catalyst memories, highest phi first.
func (s *Store) TopCatalysts(ctx context.Context, limit int) ([]Memory, error) {
	if limit <= 0 {
		limit = 10
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryMemories(ctx, `
		SELECT `+memoryColumns+` FROM memories
		WHERE deleted_at IS NULL AND is_catalyst = 1
		ORDER BY resonance_phi DESC, access_count DESC
		LIMIT ?`, limit)
}

// SetCatalyst flags a memory as a catalyst. The flag is monotone; there
// is no unset path.
func (s *Store) SetCatalyst(ctx context.Context, memoryID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		`UPDATE memories SET is_catalyst = 1, updated_at = ? WHERE id = ? AND deleted_at IS NULL`,
		fmtTime(s.now()), memoryID)
	if err != nil {
		return faults.Wrap(faults.StorageFailed, "set catalyst", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return faults.Newf(faults.MemoryNotFound, "memory %s not found", memoryID)
	}
	return nil
}

// ResonanceAdjust applies one resonance event in a single transaction:
// phi grows by delta clamped to [0, MaxPhi], last_accessed refreshes,
// the catalyst flag is raised when asked, and an access trace row is
// appended. Returns the new phi and whether the cap truncated the delta.
func (s *Store) ResonanceAdjust(ctx context.Context, memoryID string, delta float64, markCatalyst bool) (float64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, false, faults.Wrap(faults.StorageFailed, "begin resonance adjust", err)
	}
	defer tx.Rollback()

	now := fmtTime(s.now())
	var before float64
	err = tx.QueryRowContext(ctx,
		`SELECT resonance_phi FROM memories WHERE id = ? AND deleted_at IS NULL`,
		memoryID).Scan(&before)
	if err == sql.ErrNoRows {
		return 0, false, faults.Newf(faults.MemoryNotFound, "memory %s not found", memoryID)
	}
	if err != nil {
		return 0, false, faults.Wrap(faults.StorageFailed, "read phi", err)
	}

	after := before + delta
	capped := false
	if after > MaxPhi {
		after, capped = MaxPhi, true
	}
	if after < 0 {
		after = 0
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE memories
		SET resonance_phi = ?,
		    last_accessed = ?,
		    updated_at = ?,
		    is_catalyst = CASE WHEN ? THEN 1 ELSE is_catalyst END
		WHERE id = ?`,
		after, now, now, markCatalyst, memoryID)
	if err != nil {
		return 0, false, faults.Wrap(faults.StorageFailed, "resonance adjust", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO memory_access_log (memory_id, accessed_at) VALUES (?, ?)`, memoryID, now)
	if err != nil {
		return 0, false, faults.Wrap(faults.StorageFailed, "resonance access trace", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, false, faults.Wrap(faults.StorageFailed, "commit resonance adjust", err)
	}
	return after, capped, nil
}
