package match

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/quibble-sh/quibble/internal/model"
)

// smallestUnit is one cent, the floor for the amount tolerance band so a
// zero or near-zero query amount still has a nonempty band.
var smallestUnit = decimal.NewFromFloat(0.01)

// substringScore is the similarity granted to a merchant substring hit.
// Anything smarter than containment is future work.
const substringScore = 0.8

// ScoreAmount returns the amount similarity in [0,1]. A difference outside
// the tolerance band scores exactly 0; inside the band the score decays
// linearly from 1.0 at an exact match.
func ScoreAmount(query, txn decimal.Decimal, tolerancePercent float64) float64 {
	diff := query.Sub(txn).Abs()

	tolerance := decimal.NewFromFloat(tolerancePercent / 100.0)
	base := query
	if base.LessThan(smallestUnit) {
		base = smallestUnit
	}
	band := base.Mul(tolerance)

	if diff.GreaterThan(band) {
		return 0
	}
	if band.IsZero() {
		return 1
	}

	score := 1 - diff.Div(band).InexactFloat64()
	return clamp01(score)
}

// ScoreDate returns the date similarity in [0,1]. Only the calendar date is
// compared; time of day is ignored.
func ScoreDate(query, txn time.Time, toleranceDays int) float64 {
	days := daysBetween(query, txn)
	if days > toleranceDays {
		return 0
	}
	if toleranceDays == 0 {
		return 1
	}
	return clamp01(1 - float64(days)/float64(toleranceDays))
}

// ScoreMerchant returns the merchant similarity in [0,1]: 1.0 on a
// case-insensitive exact match of the canonical name or any alias, a reduced
// score on substring containment, 0 otherwise.
func ScoreMerchant(text string, merchant model.Merchant) float64 {
	switch merchant.MatchName(text) {
	case model.NameMatchCanonical, model.NameMatchAlias:
		return 1
	case model.NameMatchSubstring:
		return substringScore
	default:
		return 0
	}
}

// daysBetween returns the absolute number of whole calendar days between two
// timestamps.
func daysBetween(a, b time.Time) int {
	ad := time.Date(a.Year(), a.Month(), a.Day(), 0, 0, 0, 0, time.UTC)
	bd := time.Date(b.Year(), b.Month(), b.Day(), 0, 0, 0, 0, time.UTC)
	days := int(ad.Sub(bd).Hours() / 24)
	if days < 0 {
		days = -days
	}
	return days
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
