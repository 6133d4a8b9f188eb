package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// DisputeStatus tracks a dispute through review.
type DisputeStatus string

// Valid dispute statuses.
const (
	DisputeFlagged     DisputeStatus = "flagged"
	DisputeUnderReview DisputeStatus = "under_review"
	DisputeResolved    DisputeStatus = "resolved"
)

// Dispute is a durable record flagging a transaction for review.
type Dispute struct {
	CreatedAt       time.Time
	ID              string
	TransactionID   string
	UserID          string
	Complaint       string
	ResolutionNotes string
	Status          DisputeStatus
}

// NewDispute creates a freshly flagged dispute for a transaction.
func NewDispute(transactionID, userID, complaint string) Dispute {
	return Dispute{
		ID:            uuid.NewString(),
		TransactionID: transactionID,
		UserID:        userID,
		Complaint:     complaint,
		Status:        DisputeFlagged,
		CreatedAt:     time.Now().UTC(),
	}
}

// Validate checks the dispute has everything storage needs.
func (d *Dispute) Validate() error {
	if d.ID == "" {
		return fmt.Errorf("dispute ID is required")
	}
	if d.TransactionID == "" {
		return fmt.Errorf("dispute %s: transaction ID is required", d.ID)
	}
	if d.UserID == "" {
		return fmt.Errorf("dispute %s: user ID is required", d.ID)
	}
	switch d.Status {
	case DisputeFlagged, DisputeUnderReview, DisputeResolved:
	default:
		return fmt.Errorf("dispute %s: invalid status %q", d.ID, d.Status)
	}
	return nil
}
