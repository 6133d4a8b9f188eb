package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/quibble-sh/quibble/internal/common"
	"github.com/quibble-sh/quibble/internal/model"
)

// SaveDispute durably records a flagged dispute.
func (s *SQLiteStorage) SaveDispute(ctx context.Context, dispute model.Dispute) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := dispute.Validate(); err != nil {
		return fmt.Errorf("invalid dispute: %w", err)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO disputes (id, transaction_id, user_id, created_at, complaint, status, resolution_notes)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		dispute.ID,
		dispute.TransactionID,
		dispute.UserID,
		dispute.CreatedAt.UTC(),
		dispute.Complaint,
		string(dispute.Status),
		dispute.ResolutionNotes,
	)
	if err != nil {
		return fmt.Errorf("failed to insert dispute %s: %w", dispute.ID, err)
	}
	return nil
}

// ListDisputesByUser returns the user's disputes, newest first.
func (s *SQLiteStorage) ListDisputesByUser(ctx context.Context, userID string) ([]model.Dispute, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(userID, "userID"); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, transaction_id, user_id, created_at, complaint, status, COALESCE(resolution_notes, '')
		FROM disputes
		WHERE user_id = ?
		ORDER BY created_at DESC, id ASC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query disputes: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var disputes []model.Dispute
	for rows.Next() {
		var (
			d         model.Dispute
			createdAt time.Time
			status    string
		)
		if err := rows.Scan(&d.ID, &d.TransactionID, &d.UserID, &createdAt, &d.Complaint, &status, &d.ResolutionNotes); err != nil {
			return nil, fmt.Errorf("failed to scan dispute: %w", err)
		}
		d.CreatedAt = createdAt
		d.Status = model.DisputeStatus(status)
		disputes = append(disputes, d)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate disputes: %w", err)
	}
	return disputes, nil
}

// UpdateDisputeStatus moves a dispute through its review lifecycle.
func (s *SQLiteStorage) UpdateDisputeStatus(ctx context.Context, id string, status model.DisputeStatus, notes string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(id, "id"); err != nil {
		return err
	}
	switch status {
	case model.DisputeFlagged, model.DisputeUnderReview, model.DisputeResolved:
	default:
		return fmt.Errorf("invalid dispute status %q", status)
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE disputes SET status = ?, resolution_notes = ? WHERE id = ?
	`, string(status), notes, id)
	if err != nil {
		return fmt.Errorf("failed to update dispute %s: %w", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: dispute %s", common.ErrNotFound, id)
	}
	return nil
}
