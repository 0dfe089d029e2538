package store

import (
	"context"
	"fmt"
	"time"
)

// RunRetention deletes data past its retention window. auditRetention
// bounds the action audit trail; zero means keep forever.
func (s *Store) RunRetention(ctx context.Context, auditRetention time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UnixMilli()

	if auditRetention > 0 {
		cutoff := now - auditRetention.Milliseconds()
		_, err := s.db.ExecContext(ctx,
			"DELETE FROM action_audits WHERE created_at < ?",
			cutoff,
		)
		if err != nil {
			return fmt.Errorf("failed to delete old action audits: %w", err)
		}
	}

	// Resolved dead letters older than 24 hours.
	oneDayAgo := now - (24 * 60 * 60 * 1000)
	_, err := s.db.ExecContext(ctx,
		"DELETE FROM dead_letters WHERE resolved_at IS NOT NULL AND resolved_at < ?",
		oneDayAgo,
	)
	if err != nil {
		return fmt.Errorf("failed to delete old dead letters: %w", err)
	}

	return nil
}

// DBSizeBytes returns the database size in bytes.
func (s *Store) DBSizeBytes() (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var pageCount int64
	var pageSize int64

	if err := s.db.QueryRow("PRAGMA page_count").Scan(&pageCount); err != nil {
		return 0, fmt.Errorf("failed to get page count: %w", err)
	}
	if err := s.db.QueryRow("PRAGMA page_size").Scan(&pageSize); err != nil {
		return 0, fmt.Errorf("failed to get page size: %w", err)
	}
	return pageCount * pageSize, nil
}
