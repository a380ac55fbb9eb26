package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/capflow/capflow-go/notify"
	"github.com/capflow/capflow-go/workflow"
	"github.com/jackc/pgx/v5"
)

// NotificationStore implements notify.Store. Dedupe rides on the unique
// dedupe_key constraint, so at-least-once dispatch inserts at most one row
// per transition and recipient.
type NotificationStore struct {
	db *DB
}

// NewNotificationStore creates a notification store
func NewNotificationStore(db *DB) *NotificationStore {
	return &NotificationStore{db: db}
}

// Append implements notify.Store
func (s *NotificationStore) Append(ctx context.Context, n notify.Notification) (bool, error) {
	if n.ID == "" || n.DedupeKey == "" {
		return false, fmt.Errorf("%w: notification ID and dedupe key required", workflow.ErrValidation)
	}

	tag, err := s.db.Pool.Exec(ctx, `
        INSERT INTO notifications (id, workflow_id, kind, recipient_role, recipient_user_id, message, created_at, dedupe_key)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
        ON CONFLICT (dedupe_key) DO NOTHING
    `, n.ID, n.WorkflowID, n.Kind, n.RecipientRole, n.RecipientUserID, n.Message, n.CreatedAt, n.DedupeKey)
	if err != nil {
		return false, fmt.Errorf("failed to append notification: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// MarkRead implements notify.Store
func (s *NotificationStore) MarkRead(ctx context.Context, id string) error {
	tag, err := s.db.Pool.Exec(ctx, `
        UPDATE notifications SET read_at = now() WHERE id = $1 AND read_at IS NULL
    `, id)
	if err != nil {
		return fmt.Errorf("failed to mark notification read: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	var exists bool
	err = s.db.Pool.QueryRow(ctx, `SELECT true FROM notifications WHERE id = $1`, id).Scan(&exists)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: notification %s", workflow.ErrNotFound, id)
	}
	// Already read: marking again is a no-op.
	return err
}

// ListFor implements notify.Store
func (s *NotificationStore) ListFor(ctx context.Context, userID string, role workflow.Role) ([]notify.Notification, error) {
	rows, err := s.db.Pool.Query(ctx, `
        SELECT id, workflow_id, kind, recipient_role, recipient_user_id, message, created_at, read_at, dedupe_key
        FROM notifications
        WHERE recipient_role = $1 AND (recipient_user_id = '' OR recipient_user_id = $2)
        ORDER BY created_at DESC
    `, role, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	defer rows.Close()

	var out []notify.Notification
	for rows.Next() {
		var n notify.Notification
		if err := rows.Scan(&n.ID, &n.WorkflowID, &n.Kind, &n.RecipientRole, &n.RecipientUserID,
			&n.Message, &n.CreatedAt, &n.ReadAt, &n.DedupeKey); err != nil {
			return nil, fmt.Errorf("failed to scan notification row: %w", err)
		}
		out = append(out, n)
	}
	return out, rows.Err()
}
