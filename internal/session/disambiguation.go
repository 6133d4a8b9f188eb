// Package session holds per-session disambiguation state: when a match is
// ambiguous, the pending candidate set is parked here until the next turn
// picks one, narrows further, or the state expires.
package session

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/quibble-sh/quibble/internal/common"
	"github.com/quibble-sh/quibble/internal/model"
)

// RankNarrowed re-ranks a refined query against a narrowed transaction set.
// Supplied by the caller per Resolve call so the controller stays free of
// ranking policy and of storage access.
type RankNarrowed func(query model.MatchQuery, txns []model.Transaction) (model.MatchResult, error)

// CandidateRef is the stable short reference a caller uses to present one
// pending candidate to the user. Rank is 1-based and matches the stored
// pending order.
type CandidateRef struct {
	TransactionID string
	Candidate     model.MatchCandidate
	Rank          int
}

// Clarification asks the caller to have the user pick among candidates.
// Formatting the question is the caller's job.
type Clarification struct {
	SessionID  string
	Candidates []CandidateRef
}

// Selection is the user's answer to a clarification: an explicit transaction
// ID, a 1-based rank index, or a refined query to re-rank the narrowed set.
// Exactly one field should be populated.
type Selection struct {
	Refined       *model.MatchQuery
	RankIndex     *int
	TransactionID string
}

// Resolution is the outcome of applying a Selection. Exactly one of
// Candidate (resolved), Clarification (still ambiguous after refinement) or
// Result-with-empty-outcome is meaningful.
type Resolution struct {
	Candidate     *model.MatchCandidate
	Clarification *Clarification
	Result        *model.MatchResult
}

// pendingDisambiguation is exclusively owned by one session and destroyed
// when resolved or expired. It must never leak across unrelated queries.
type pendingDisambiguation struct {
	createdAt   time.Time
	fingerprint string
	candidates  []model.MatchCandidate
	turnsLeft   int
}

// Controller is the session-scoped disambiguation state machine
// (idle -> awaiting_clarification -> idle). State is keyed by session ID;
// each session's turns are sequential, so the only contention on the map is
// between different sessions.
type Controller struct {
	pending    map[string]*pendingDisambiguation
	stopCh     chan struct{}
	logger     *slog.Logger
	ttl        time.Duration
	turnBudget int
	mu         sync.Mutex
}

// NewController creates a disambiguation controller. ttl bounds how long
// pending state may sit unresolved; turnBudget is how many further
// still-ambiguous refinement turns are allowed before the state expires.
func NewController(ttl time.Duration, turnBudget int, logger *slog.Logger) *Controller {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if turnBudget <= 0 {
		turnBudget = 1
	}
	if logger == nil {
		logger = slog.Default()
	}

	c := &Controller{
		pending:    make(map[string]*pendingDisambiguation),
		ttl:        ttl,
		turnBudget: turnBudget,
		logger:     logger,
		stopCh:     make(chan struct{}),
	}

	go c.sweep()

	return c
}

// Observe records the result of a fresh match for a session. An ambiguous
// result parks the candidate set and returns a clarification request; any
// other outcome clears whatever was pending and returns nil.
func (c *Controller) Observe(sessionID string, query model.MatchQuery, result model.MatchResult) *Clarification {
	c.mu.Lock()
	defer c.mu.Unlock()

	if result.Outcome != model.OutcomeAmbiguous {
		delete(c.pending, sessionID)
		return nil
	}

	c.pending[sessionID] = &pendingDisambiguation{
		fingerprint: query.Fingerprint(),
		candidates:  result.Candidates,
		createdAt:   time.Now(),
		turnsLeft:   c.turnBudget,
	}

	c.logger.Debug("disambiguation pending",
		"session_id", sessionID,
		"candidates", len(result.Candidates))

	return c.clarificationLocked(sessionID)
}

// Resolve applies the user's selection to the session's pending state.
// rank is only consulted for refined-query selections and may be nil
// otherwise. Missing or expired state fails with ErrStaleReference.
func (c *Controller) Resolve(sessionID string, sel Selection, rank RankNarrowed) (Resolution, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	p, ok := c.pending[sessionID]
	if !ok || time.Since(p.createdAt) > c.ttl {
		delete(c.pending, sessionID)
		return Resolution{}, fmt.Errorf("%w: session %s has no pending disambiguation", common.ErrStaleReference, sessionID)
	}

	switch {
	case sel.TransactionID != "":
		return c.resolveByIDLocked(sessionID, p, sel.TransactionID)
	case sel.RankIndex != nil:
		return c.resolveByRankLocked(sessionID, p, *sel.RankIndex)
	case sel.Refined != nil:
		return c.resolveRefinedLocked(sessionID, p, *sel.Refined, rank)
	default:
		return Resolution{}, fmt.Errorf("%w: selection must carry a transaction ID, rank index or refined query", common.ErrInvalidQuery)
	}
}

// Pending reports whether the session is awaiting clarification.
func (c *Controller) Pending(sessionID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	p, ok := c.pending[sessionID]
	if !ok {
		return false
	}
	if time.Since(p.createdAt) > c.ttl {
		delete(c.pending, sessionID)
		return false
	}
	return true
}

// Close stops the background sweeper.
func (c *Controller) Close() {
	close(c.stopCh)
}

func (c *Controller) resolveByIDLocked(sessionID string, p *pendingDisambiguation, txnID string) (Resolution, error) {
	for i := range p.candidates {
		if p.candidates[i].Transaction.ID == txnID {
			candidate := p.candidates[i]
			delete(c.pending, sessionID)
			c.logger.Info("disambiguation resolved",
				"session_id", sessionID,
				"transaction_id", txnID)
			return Resolution{Candidate: &candidate}, nil
		}
	}
	return Resolution{}, fmt.Errorf("%w: transaction %s is not among the pending candidates", common.ErrInvalidQuery, txnID)
}

func (c *Controller) resolveByRankLocked(sessionID string, p *pendingDisambiguation, rank int) (Resolution, error) {
	if rank < 1 || rank > len(p.candidates) {
		return Resolution{}, fmt.Errorf("%w: rank %d is out of range 1..%d", common.ErrInvalidQuery, rank, len(p.candidates))
	}
	candidate := p.candidates[rank-1]
	delete(c.pending, sessionID)
	c.logger.Info("disambiguation resolved",
		"session_id", sessionID,
		"transaction_id", candidate.Transaction.ID,
		"rank", rank)
	return Resolution{Candidate: &candidate}, nil
}

// resolveRefinedLocked re-ranks the refined query against the previously
// narrowed candidate set, never the full catalog, so disambiguation
// converges instead of re-expanding.
func (c *Controller) resolveRefinedLocked(sessionID string, p *pendingDisambiguation, refined model.MatchQuery, rank RankNarrowed) (Resolution, error) {
	if rank == nil {
		return Resolution{}, fmt.Errorf("%w: refined queries are not supported without a ranker", common.ErrInvalidQuery)
	}

	narrowed := make([]model.Transaction, len(p.candidates))
	for i := range p.candidates {
		narrowed[i] = p.candidates[i].Transaction
	}

	result, err := rank(refined, narrowed)
	if err != nil {
		return Resolution{}, err
	}

	switch result.Outcome {
	case model.OutcomeUnique:
		delete(c.pending, sessionID)
		return Resolution{Candidate: result.Best, Result: &result}, nil

	case model.OutcomeEmpty:
		delete(c.pending, sessionID)
		return Resolution{Result: &result}, nil

	default: // still ambiguous
		if p.turnsLeft <= 0 {
			delete(c.pending, sessionID)
			c.logger.Debug("disambiguation expired after turn budget",
				"session_id", sessionID)
			return Resolution{Result: &result}, nil
		}
		c.pending[sessionID] = &pendingDisambiguation{
			fingerprint: refined.Fingerprint(),
			candidates:  result.Candidates,
			createdAt:   time.Now(),
			turnsLeft:   p.turnsLeft - 1,
		}
		return Resolution{Result: &result, Clarification: c.clarificationLocked(sessionID)}, nil
	}
}

func (c *Controller) clarificationLocked(sessionID string) *Clarification {
	p := c.pending[sessionID]
	refs := make([]CandidateRef, len(p.candidates))
	for i, candidate := range p.candidates {
		refs[i] = CandidateRef{
			Rank:          i + 1,
			TransactionID: candidate.Transaction.ID,
			Candidate:     candidate,
		}
	}
	return &Clarification{SessionID: sessionID, Candidates: refs}
}

// sweep periodically drops expired pending state.
func (c *Controller) sweep() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.mu.Lock()
			now := time.Now()
			for id, p := range c.pending {
				if now.Sub(p.createdAt) > c.ttl {
					delete(c.pending, id)
				}
			}
			c.mu.Unlock()
		}
	}
}
