package model

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// MatchQuery is one resolution attempt built from the user's imprecise
// description. Every field is optional, but at least one must be present.
type MatchQuery struct {
	Amount        *decimal.Decimal
	Date          *time.Time
	MerchantText  string
	TransactionID string
}

// IsEmpty reports whether no query field is populated.
func (q *MatchQuery) IsEmpty() bool {
	return q.Amount == nil && q.Date == nil && q.MerchantText == "" && q.TransactionID == ""
}

// Validate rejects queries that cannot be scored.
func (q *MatchQuery) Validate() error {
	if q.IsEmpty() {
		return fmt.Errorf("at least one of amount, date, merchant or transaction ID must be set")
	}
	if q.Amount != nil && q.Amount.IsNegative() {
		return fmt.Errorf("amount must not be negative, got %s", q.Amount)
	}
	return nil
}

// Fingerprint returns a stable string identifying the query's populated
// fields and values, used to tie a disambiguation answer back to the
// question that produced it.
func (q *MatchQuery) Fingerprint() string {
	amount := "-"
	if q.Amount != nil {
		amount = q.Amount.StringFixed(2)
	}
	date := "-"
	if q.Date != nil {
		date = q.Date.Format("2006-01-02")
	}
	return fmt.Sprintf("%s|%s|%s|%s", amount, date, q.MerchantText, q.TransactionID)
}

// MatchOutcome classifies a ranking result.
type MatchOutcome string

// Possible ranking outcomes.
const (
	OutcomeUnique    MatchOutcome = "unique"
	OutcomeAmbiguous MatchOutcome = "ambiguous"
	OutcomeEmpty     MatchOutcome = "empty"
)

// MatchCandidate pairs a transaction with its per-dimension and composite
// similarity scores. Scores are always in [0,1].
type MatchCandidate struct {
	Transaction    Transaction
	AmountScore    float64
	DateScore      float64
	MerchantScore  float64
	CompositeScore float64
}

// MatchResult is the ranked answer to one MatchQuery.
type MatchResult struct {
	Best       *MatchCandidate
	Outcome    MatchOutcome
	Candidates []MatchCandidate
}
