// Package match implements the fuzzy transaction matching engine: per-dimension
// similarity scoring, merchant name resolution, and candidate ranking.
package match

import "github.com/quibble-sh/quibble/internal/model"

// Weights holds the relative weight of each scoring dimension.
type Weights struct {
	Amount   float64
	Date     float64
	Merchant float64
}

// DefaultWeights returns the design-default dimension weights. Merchant name
// is the strongest signal for "which transaction is this", so it dominates.
func DefaultWeights() Weights {
	return Weights{
		Amount:   0.10,
		Date:     0.30,
		Merchant: 0.60,
	}
}

// activeWeights is the per-call weight table over the dimensions a query
// actually populates. Keeping it as an explicit struct makes the invariant
// "active weights sum to 1" checkable in one place.
type activeWeights struct {
	amount   float64
	date     float64
	merchant float64
}

// activeFor renormalizes the configured weights over the dimensions present
// in the query. Absent dimensions get weight zero; the remainder is
// redistributed proportionally so the active weights always sum to 1.
func (w Weights) activeFor(query *model.MatchQuery) activeWeights {
	var active activeWeights
	total := 0.0

	if query.Amount != nil {
		active.amount = w.Amount
		total += w.Amount
	}
	if query.Date != nil {
		active.date = w.Date
		total += w.Date
	}
	if query.MerchantText != "" {
		active.merchant = w.Merchant
		total += w.Merchant
	}

	if total == 0 {
		return active
	}

	active.amount /= total
	active.date /= total
	active.merchant /= total
	return active
}

// combine folds per-dimension scores into a composite in [0,1].
func (a activeWeights) combine(amountScore, dateScore, merchantScore float64) float64 {
	return a.amount*amountScore + a.date*dateScore + a.merchant*merchantScore
}
