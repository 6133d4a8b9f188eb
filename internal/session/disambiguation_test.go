package session

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quibble-sh/quibble/internal/common"
	"github.com/quibble-sh/quibble/internal/model"
)

func candidateFor(txnID string, composite float64) model.MatchCandidate {
	return model.MatchCandidate{
		Transaction: model.Transaction{
			ID:       txnID,
			UserID:   "user_001",
			Amount:   decimal.RequireFromString("15.00"),
			Currency: "USD",
			Date:     time.Date(2025, 7, 10, 0, 0, 0, 0, time.UTC),
			Status:   model.StatusPosted,
		},
		CompositeScore: composite,
	}
}

func ambiguousResult(ids ...string) model.MatchResult {
	candidates := make([]model.MatchCandidate, len(ids))
	for i, id := range ids {
		candidates[i] = candidateFor(id, 0.8)
	}
	return model.MatchResult{Outcome: model.OutcomeAmbiguous, Candidates: candidates}
}

func intPtr(v int) *int { return &v }

func newTestController(t *testing.T, ttl time.Duration, turnBudget int) *Controller {
	t.Helper()
	c := NewController(ttl, turnBudget, nil)
	t.Cleanup(c.Close)
	return c
}

func TestObserve(t *testing.T) {
	t.Run("ambiguous result parks state and asks for clarification", func(t *testing.T) {
		c := newTestController(t, time.Minute, 2)

		clarification := c.Observe("s1", model.MatchQuery{MerchantText: "deli"}, ambiguousResult("txn_a", "txn_b"))
		require.NotNil(t, clarification)
		assert.Equal(t, "s1", clarification.SessionID)
		require.Len(t, clarification.Candidates, 2)
		assert.Equal(t, 1, clarification.Candidates[0].Rank)
		assert.Equal(t, "txn_a", clarification.Candidates[0].TransactionID)
		assert.True(t, c.Pending("s1"))
		assert.False(t, c.Pending("s2"))
	})

	t.Run("unique result clears any pending state", func(t *testing.T) {
		c := newTestController(t, time.Minute, 2)

		c.Observe("s1", model.MatchQuery{MerchantText: "deli"}, ambiguousResult("txn_a", "txn_b"))
		require.True(t, c.Pending("s1"))

		best := candidateFor("txn_c", 0.99)
		clarification := c.Observe("s1", model.MatchQuery{MerchantText: "palace"}, model.MatchResult{
			Outcome:    model.OutcomeUnique,
			Best:       &best,
			Candidates: []model.MatchCandidate{best},
		})
		assert.Nil(t, clarification)
		assert.False(t, c.Pending("s1"))
	})
}

func TestResolveBySelection(t *testing.T) {
	t.Run("rank index resolves and clears the state", func(t *testing.T) {
		c := newTestController(t, time.Minute, 2)
		c.Observe("s1", model.MatchQuery{MerchantText: "deli"}, ambiguousResult("txn_a", "txn_b"))

		res, err := c.Resolve("s1", Selection{RankIndex: intPtr(2)}, nil)
		require.NoError(t, err)
		require.NotNil(t, res.Candidate)
		assert.Equal(t, "txn_b", res.Candidate.Transaction.ID)
		assert.False(t, c.Pending("s1"))
	})

	t.Run("transaction ID resolves and clears the state", func(t *testing.T) {
		c := newTestController(t, time.Minute, 2)
		c.Observe("s1", model.MatchQuery{MerchantText: "deli"}, ambiguousResult("txn_a", "txn_b"))

		res, err := c.Resolve("s1", Selection{TransactionID: "txn_a"}, nil)
		require.NoError(t, err)
		require.NotNil(t, res.Candidate)
		assert.Equal(t, "txn_a", res.Candidate.Transaction.ID)
	})

	t.Run("second selection after resolution is stale", func(t *testing.T) {
		c := newTestController(t, time.Minute, 2)
		c.Observe("s1", model.MatchQuery{MerchantText: "deli"}, ambiguousResult("txn_a", "txn_b"))

		_, err := c.Resolve("s1", Selection{RankIndex: intPtr(1)}, nil)
		require.NoError(t, err)

		_, err = c.Resolve("s1", Selection{RankIndex: intPtr(1)}, nil)
		require.Error(t, err)
		assert.ErrorIs(t, err, common.ErrStaleReference)
	})

	t.Run("out-of-range rank keeps the state pending", func(t *testing.T) {
		c := newTestController(t, time.Minute, 2)
		c.Observe("s1", model.MatchQuery{MerchantText: "deli"}, ambiguousResult("txn_a", "txn_b"))

		_, err := c.Resolve("s1", Selection{RankIndex: intPtr(5)}, nil)
		require.Error(t, err)
		assert.ErrorIs(t, err, common.ErrInvalidQuery)
		assert.True(t, c.Pending("s1"))
	})

	t.Run("unknown transaction ID keeps the state pending", func(t *testing.T) {
		c := newTestController(t, time.Minute, 2)
		c.Observe("s1", model.MatchQuery{MerchantText: "deli"}, ambiguousResult("txn_a", "txn_b"))

		_, err := c.Resolve("s1", Selection{TransactionID: "txn_zzz"}, nil)
		require.Error(t, err)
		assert.ErrorIs(t, err, common.ErrInvalidQuery)
		assert.True(t, c.Pending("s1"))
	})

	t.Run("empty selection is invalid", func(t *testing.T) {
		c := newTestController(t, time.Minute, 2)
		c.Observe("s1", model.MatchQuery{MerchantText: "deli"}, ambiguousResult("txn_a", "txn_b"))

		_, err := c.Resolve("s1", Selection{}, nil)
		require.Error(t, err)
		assert.ErrorIs(t, err, common.ErrInvalidQuery)
	})

	t.Run("selection without pending state is stale", func(t *testing.T) {
		c := newTestController(t, time.Minute, 2)

		_, err := c.Resolve("never-asked", Selection{RankIndex: intPtr(1)}, nil)
		require.Error(t, err)
		assert.ErrorIs(t, err, common.ErrStaleReference)
	})
}

func TestResolveExpiry(t *testing.T) {
	c := newTestController(t, 10*time.Millisecond, 2)
	c.Observe("s1", model.MatchQuery{MerchantText: "deli"}, ambiguousResult("txn_a", "txn_b"))

	time.Sleep(30 * time.Millisecond)

	_, err := c.Resolve("s1", Selection{RankIndex: intPtr(1)}, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrStaleReference)
	assert.False(t, c.Pending("s1"))
}

func TestResolveRefined(t *testing.T) {
	refined := model.MatchQuery{MerchantText: "corner deli"}

	t.Run("re-ranks only the narrowed set", func(t *testing.T) {
		c := newTestController(t, time.Minute, 2)
		c.Observe("s1", model.MatchQuery{MerchantText: "deli"}, ambiguousResult("txn_a", "txn_b"))

		var sawIDs []string
		rank := func(q model.MatchQuery, txns []model.Transaction) (model.MatchResult, error) {
			for _, txn := range txns {
				sawIDs = append(sawIDs, txn.ID)
			}
			best := candidateFor("txn_a", 0.95)
			return model.MatchResult{Outcome: model.OutcomeUnique, Best: &best, Candidates: []model.MatchCandidate{best}}, nil
		}

		res, err := c.Resolve("s1", Selection{Refined: &refined}, rank)
		require.NoError(t, err)
		assert.Equal(t, []string{"txn_a", "txn_b"}, sawIDs)
		require.NotNil(t, res.Candidate)
		assert.Equal(t, "txn_a", res.Candidate.Transaction.ID)
		assert.False(t, c.Pending("s1"))
	})

	t.Run("refined empty outcome clears the state", func(t *testing.T) {
		c := newTestController(t, time.Minute, 2)
		c.Observe("s1", model.MatchQuery{MerchantText: "deli"}, ambiguousResult("txn_a", "txn_b"))

		rank := func(model.MatchQuery, []model.Transaction) (model.MatchResult, error) {
			return model.MatchResult{Outcome: model.OutcomeEmpty}, nil
		}

		res, err := c.Resolve("s1", Selection{Refined: &refined}, rank)
		require.NoError(t, err)
		assert.Nil(t, res.Candidate)
		require.NotNil(t, res.Result)
		assert.Equal(t, model.OutcomeEmpty, res.Result.Outcome)
		assert.False(t, c.Pending("s1"))
	})

	t.Run("still-ambiguous refinement consumes the turn budget", func(t *testing.T) {
		c := newTestController(t, time.Minute, 1)
		c.Observe("s1", model.MatchQuery{MerchantText: "deli"}, ambiguousResult("txn_a", "txn_b", "txn_c"))

		stillAmbiguous := func(model.MatchQuery, []model.Transaction) (model.MatchResult, error) {
			return ambiguousResult("txn_a", "txn_b"), nil
		}

		// First refinement is within budget and narrows the pending set.
		res, err := c.Resolve("s1", Selection{Refined: &refined}, stillAmbiguous)
		require.NoError(t, err)
		require.NotNil(t, res.Clarification)
		assert.Len(t, res.Clarification.Candidates, 2)
		assert.True(t, c.Pending("s1"))

		// Budget is now spent; a second ambiguous refinement expires the state.
		res, err = c.Resolve("s1", Selection{Refined: &refined}, stillAmbiguous)
		require.NoError(t, err)
		assert.Nil(t, res.Clarification)
		assert.Nil(t, res.Candidate)
		assert.False(t, c.Pending("s1"))

		_, err = c.Resolve("s1", Selection{RankIndex: intPtr(1)}, nil)
		assert.ErrorIs(t, err, common.ErrStaleReference)
	})

	t.Run("refined selection requires a ranker", func(t *testing.T) {
		c := newTestController(t, time.Minute, 2)
		c.Observe("s1", model.MatchQuery{MerchantText: "deli"}, ambiguousResult("txn_a", "txn_b"))

		_, err := c.Resolve("s1", Selection{Refined: &refined}, nil)
		require.Error(t, err)
		assert.ErrorIs(t, err, common.ErrInvalidQuery)
	})
}

func TestSessionsAreIndependent(t *testing.T) {
	c := newTestController(t, time.Minute, 2)

	c.Observe("s1", model.MatchQuery{MerchantText: "deli"}, ambiguousResult("txn_a", "txn_b"))
	c.Observe("s2", model.MatchQuery{MerchantText: "cafe"}, ambiguousResult("txn_x", "txn_y"))

	res, err := c.Resolve("s1", Selection{RankIndex: intPtr(1)}, nil)
	require.NoError(t, err)
	assert.Equal(t, "txn_a", res.Candidate.Transaction.ID)

	// s2 is untouched by s1's resolution.
	require.True(t, c.Pending("s2"))
	res, err = c.Resolve("s2", Selection{RankIndex: intPtr(2)}, nil)
	require.NoError(t, err)
	assert.Equal(t, "txn_y", res.Candidate.Transaction.ID)
}
