package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/gophygital/permit-agent/internal/permit"
)

// ActionAudit is one persisted workflow submission record.
type ActionAudit struct {
	ID           string
	PermitID     string
	Action       string
	ResourceType string
	ResourceID   string
	Actor        string
	Result       string
	Detail       string
	RequestID    string
	CreatedAt    int64
}

// RecordAction persists a workflow action record. It satisfies
// permit.AuditSink.
func (s *Store) RecordAction(ctx context.Context, rec permit.ActionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
	INSERT INTO action_audits (
		id, permit_id, action, resource_type, resource_id,
		actor, result, detail, request_id, created_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	detail := sql.NullString{String: rec.Detail, Valid: rec.Detail != ""}
	_, err := s.db.ExecContext(ctx, query,
		uuid.New().String(), rec.PermitID, rec.Action, rec.ResourceType, rec.ResourceID,
		rec.Actor, rec.Result, detail, rec.RequestID, time.Now().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to record action: %w", err)
	}
	return nil
}

// ListActions returns the audit trail for one permit, newest first.
func (s *Store) ListActions(ctx context.Context, permitID string, limit int) ([]*ActionAudit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
	SELECT id, permit_id, action, resource_type, resource_id,
	       actor, result, detail, request_id, created_at
	FROM action_audits
	WHERE permit_id = ?
	ORDER BY created_at DESC
	`

	args := []interface{}{permitID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list actions: %w", err)
	}
	defer rows.Close()

	var audits []*ActionAudit
	for rows.Next() {
		a := &ActionAudit{}
		var detail sql.NullString
		err := rows.Scan(
			&a.ID, &a.PermitID, &a.Action, &a.ResourceType, &a.ResourceID,
			&a.Actor, &a.Result, &detail, &a.RequestID, &a.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan action audit: %w", err)
		}
		if detail.Valid {
			a.Detail = detail.String
		}
		audits = append(audits, a)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating action audits: %w", err)
	}
	return audits, nil
}

// CountActions returns the total number of audit rows (for the management
// status endpoint).
func (s *Store) CountActions(ctx context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM action_audits`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count action audits: %w", err)
	}
	return n, nil
}
