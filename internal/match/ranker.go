package match

import (
	"fmt"
	"sort"

	"github.com/quibble-sh/quibble/internal/common"
	"github.com/quibble-sh/quibble/internal/model"
)

// Config holds the tunables for candidate ranking. The defaults are policy
// choices; deployments override them through configuration.
type Config struct {
	Weights                Weights
	AmountTolerancePercent float64
	Threshold              float64
	Epsilon                float64
	DateToleranceDays      int
	MaxCandidates          int
}

// DefaultConfig returns the design-default ranking configuration.
func DefaultConfig() Config {
	return Config{
		AmountTolerancePercent: 10.0,
		DateToleranceDays:      3,
		Threshold:              0.5,
		Epsilon:                0.05,
		MaxCandidates:          5,
		Weights:                DefaultWeights(),
	}
}

// Validate rejects configurations the ranker cannot work with.
func (c Config) Validate() error {
	if c.AmountTolerancePercent <= 0 {
		return fmt.Errorf("amount tolerance percent must be > 0, got %v", c.AmountTolerancePercent)
	}
	if c.DateToleranceDays < 0 {
		return fmt.Errorf("date tolerance days must be >= 0, got %d", c.DateToleranceDays)
	}
	if c.Threshold < 0 || c.Threshold > 1 {
		return fmt.Errorf("threshold must be in [0,1], got %v", c.Threshold)
	}
	if c.Epsilon < 0 {
		return fmt.Errorf("epsilon must be >= 0, got %v", c.Epsilon)
	}
	if c.MaxCandidates <= 0 {
		return fmt.Errorf("max candidates must be > 0, got %d", c.MaxCandidates)
	}
	return nil
}

// Ranker combines per-dimension scores into composite scores, orders
// candidates and classifies the result. Rank is pure: it never mutates its
// inputs or any session state, so concurrent use is safe.
type Ranker struct {
	cfg Config
}

// NewRanker creates a ranker with the given configuration.
func NewRanker(cfg Config) *Ranker {
	return &Ranker{cfg: cfg}
}

// Rank scores every transaction in the snapshot against the query and
// classifies the outcome as unique, ambiguous or empty.
func (r *Ranker) Rank(query model.MatchQuery, txns []model.Transaction, merchants map[string]model.Merchant) (model.MatchResult, error) {
	if err := query.Validate(); err != nil {
		return model.MatchResult{}, fmt.Errorf("%w: %v", common.ErrInvalidQuery, err)
	}

	// A transaction ID bypasses scoring entirely.
	if query.TransactionID != "" {
		return r.lookupByID(query.TransactionID, txns), nil
	}

	weights := r.cfg.Weights.activeFor(&query)

	var candidates []model.MatchCandidate
	for _, txn := range txns {
		candidate := r.score(&query, txn, weights, merchants)
		if candidate.CompositeScore < r.cfg.Threshold {
			continue
		}
		candidates = append(candidates, candidate)
	}

	sortCandidates(candidates)
	if len(candidates) > r.cfg.MaxCandidates {
		candidates = candidates[:r.cfg.MaxCandidates]
	}

	return r.classify(candidates), nil
}

// lookupByID resolves a direct transaction reference.
func (r *Ranker) lookupByID(id string, txns []model.Transaction) model.MatchResult {
	for _, txn := range txns {
		if txn.ID == id {
			candidate := model.MatchCandidate{
				Transaction:    txn,
				AmountScore:    1,
				DateScore:      1,
				MerchantScore:  1,
				CompositeScore: 1,
			}
			return model.MatchResult{
				Outcome:    model.OutcomeUnique,
				Candidates: []model.MatchCandidate{candidate},
				Best:       &candidate,
			}
		}
	}
	return model.MatchResult{Outcome: model.OutcomeEmpty}
}

// score computes the per-dimension and composite scores for one transaction.
func (r *Ranker) score(query *model.MatchQuery, txn model.Transaction, weights activeWeights, merchants map[string]model.Merchant) model.MatchCandidate {
	candidate := model.MatchCandidate{Transaction: txn}

	if query.Amount != nil {
		candidate.AmountScore = ScoreAmount(*query.Amount, txn.Amount, r.cfg.AmountTolerancePercent)
	}
	if query.Date != nil {
		candidate.DateScore = ScoreDate(*query.Date, txn.Date, r.cfg.DateToleranceDays)
	}
	if query.MerchantText != "" {
		if merchant, ok := merchants[txn.MerchantID]; ok {
			candidate.MerchantScore = ScoreMerchant(query.MerchantText, merchant)
		}
	}

	candidate.CompositeScore = weights.combine(candidate.AmountScore, candidate.DateScore, candidate.MerchantScore)
	return candidate
}

// classify turns a ranked, thresholded candidate list into a MatchResult.
func (r *Ranker) classify(candidates []model.MatchCandidate) model.MatchResult {
	switch {
	case len(candidates) == 0:
		return model.MatchResult{Outcome: model.OutcomeEmpty}
	case len(candidates) == 1,
		candidates[0].CompositeScore-candidates[1].CompositeScore > r.cfg.Epsilon:
		return model.MatchResult{
			Outcome:    model.OutcomeUnique,
			Candidates: candidates,
			Best:       &candidates[0],
		}
	default:
		return model.MatchResult{
			Outcome:    model.OutcomeAmbiguous,
			Candidates: candidates,
			Best:       &candidates[0],
		}
	}
}

// sortCandidates orders by composite score descending, then by more recent
// date, then by ascending ID so results are deterministic.
func sortCandidates(candidates []model.MatchCandidate) {
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].CompositeScore != candidates[j].CompositeScore {
			return candidates[i].CompositeScore > candidates[j].CompositeScore
		}
		if !candidates[i].Transaction.Date.Equal(candidates[j].Transaction.Date) {
			return candidates[i].Transaction.Date.After(candidates[j].Transaction.Date)
		}
		return candidates[i].Transaction.ID < candidates[j].Transaction.ID
	})
}
