package store

import (
	"context"
	"strings"
	"time"

	"foldmem/internal/faults"
)

// AccessLogRetention bounds the short-lived access trace.
const AccessLogRetention = 24 * time.Hour

// AppendAccess records access traces for the given memory ids. The trace
// feeds catalyst frequency detection only.
func (s *Store) AppendAccess(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := fmtTime(s.now())
	q := `INSERT INTO memory_access_log (memory_id, accessed_at) VALUES (?, ?)` +
		strings.Repeat(", (?, ?)", len(ids)-1)
	args := make([]interface{}, 0, len(ids)*2)
	for _, id := range ids {
		args = append(args, id, now)
	}
	_, err := s.db.ExecContext(ctx, q, args...)
	return faults.Wrap(faults.StorageFailed, "append access log", err)
}

// CountRecentAccesses counts trace rows for a memory within the window
// ending at the store clock's now.
func (s *Store) CountRecentAccesses(ctx context.Context, memoryID string, window time.Duration) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	since := s.now().Add(-window)
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM memory_access_log WHERE memory_id = ? AND accessed_at > ?`,
		memoryID, fmtTime(since)).Scan(&n)
	if err != nil {
		return 0, faults.Wrap(faults.StorageFailed, "count recent accesses", err)
	}
	return n, nil
}

// CleanupAccessLog drops trace rows older than the retention window.
func (s *Store) CleanupAccessLog(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().Add(-AccessLogRetention)
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM memory_access_log WHERE accessed_at <= ?`, fmtTime(cutoff))
	if err != nil {
		return 0, faults.Wrap(faults.StorageFailed, "cleanup access log", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
