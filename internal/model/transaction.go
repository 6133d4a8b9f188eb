// Package model defines the core domain types shared across the application.
package model

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// TransactionStatus describes where a transaction sits in its settlement lifecycle.
type TransactionStatus string

// Valid transaction statuses.
const (
	StatusPending  TransactionStatus = "pending"
	StatusPosted   TransactionStatus = "posted"
	StatusRefunded TransactionStatus = "refunded"
)

// Transaction represents a single card transaction as read from storage.
// Records are immutable snapshots scoped to one user; the matching engine
// only ever reads them.
type Transaction struct {
	Date        time.Time
	ID          string
	UserID      string
	MerchantID  string
	Currency    string
	Description string
	Status      TransactionStatus
	Amount      decimal.Decimal
}

// DisplayAmount formats the amount with its currency code for user-facing output.
func (t *Transaction) DisplayAmount() string {
	return fmt.Sprintf("%s %s", t.Currency, t.Amount.StringFixed(2))
}

// Validate checks that the transaction carries the fields storage requires.
func (t *Transaction) Validate() error {
	if t.ID == "" {
		return fmt.Errorf("transaction ID is required")
	}
	if t.UserID == "" {
		return fmt.Errorf("transaction %s: user ID is required", t.ID)
	}
	if t.MerchantID == "" {
		return fmt.Errorf("transaction %s: merchant ID is required", t.ID)
	}
	switch t.Status {
	case StatusPending, StatusPosted, StatusRefunded:
	default:
		return fmt.Errorf("transaction %s: invalid status %q", t.ID, t.Status)
	}
	return nil
}
