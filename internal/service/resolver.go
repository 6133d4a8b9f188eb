package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/quibble-sh/quibble/internal/match"
	"github.com/quibble-sh/quibble/internal/model"
	"github.com/quibble-sh/quibble/internal/session"
)

// ResolveResponse is the outcome of one resolution attempt. Clarification is
// non-nil exactly when the result is ambiguous and the caller should ask the
// user to pick among the candidates.
type ResolveResponse struct {
	Clarification *session.Clarification
	Result        model.MatchResult
}

// Resolver drives fuzzy transaction resolution end to end: it loads the
// user's catalog snapshot, ranks candidates, and manages per-session
// disambiguation state across turns.
type Resolver struct {
	store    Storage
	ranker   *match.Ranker
	sessions *session.Controller
	logger   *slog.Logger
}

// NewResolver creates a resolver. sessionTTL and turnBudget bound how long
// ambiguous state may wait for the user's answer.
func NewResolver(store Storage, cfg match.Config, sessionTTL time.Duration, turnBudget int, logger *slog.Logger) (*Resolver, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid match configuration: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Resolver{
		store:    store,
		ranker:   match.NewRanker(cfg),
		sessions: session.NewController(sessionTTL, turnBudget, logger),
		logger:   logger,
	}, nil
}

// Resolve ranks the query against the user's transaction snapshot. An
// ambiguous outcome parks the candidates for the session and returns a
// clarification request alongside the result.
func (r *Resolver) Resolve(ctx context.Context, sessionID, userID string, query model.MatchQuery) (ResolveResponse, error) {
	txns, err := r.store.ListTransactionsByUser(ctx, userID)
	if err != nil {
		return ResolveResponse{}, fmt.Errorf("failed to load transactions for user %s: %w", userID, err)
	}

	merchants, err := r.merchantMap(ctx)
	if err != nil {
		return ResolveResponse{}, err
	}

	result, err := r.ranker.Rank(query, txns, merchants)
	if err != nil {
		return ResolveResponse{}, err
	}

	clarification := r.sessions.Observe(sessionID, query, result)

	r.logger.Info("query resolved",
		"session_id", sessionID,
		"user_id", userID,
		"outcome", result.Outcome,
		"candidates", len(result.Candidates))

	return ResolveResponse{Result: result, Clarification: clarification}, nil
}

// Select applies the user's answer to the session's pending disambiguation.
// Refined queries re-rank only the previously narrowed candidate set.
func (r *Resolver) Select(ctx context.Context, sessionID string, sel session.Selection) (session.Resolution, error) {
	merchants, err := r.merchantMap(ctx)
	if err != nil {
		return session.Resolution{}, err
	}

	rank := func(query model.MatchQuery, narrowed []model.Transaction) (model.MatchResult, error) {
		return r.ranker.Rank(query, narrowed, merchants)
	}

	resolution, err := r.sessions.Resolve(sessionID, sel, rank)
	if err != nil {
		return session.Resolution{}, err
	}

	if resolution.Candidate != nil {
		r.logger.Info("selection resolved",
			"session_id", sessionID,
			"transaction_id", resolution.Candidate.Transaction.ID)
	}
	return resolution, nil
}

// AwaitingClarification reports whether the session has pending
// disambiguation state.
func (r *Resolver) AwaitingClarification(sessionID string) bool {
	return r.sessions.Pending(sessionID)
}

// LookupMerchants resolves merchant free text against the catalog,
// strongest match first. An empty result is a valid answer, not an error.
func (r *Resolver) LookupMerchants(ctx context.Context, text string) ([]model.Merchant, error) {
	merchants, err := r.store.ListMerchants(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load merchants: %w", err)
	}
	return match.NewMerchantResolver(merchants).Resolve(text), nil
}

// FileDispute flags a transaction for review after a unique or
// user-confirmed match. The transaction must belong to the user.
func (r *Resolver) FileDispute(ctx context.Context, userID, transactionID, complaint string) (model.Dispute, error) {
	if _, err := r.store.GetTransaction(ctx, userID, transactionID); err != nil {
		return model.Dispute{}, err
	}

	dispute := model.NewDispute(transactionID, userID, complaint)
	if err := r.store.SaveDispute(ctx, dispute); err != nil {
		return model.Dispute{}, err
	}

	r.logger.Info("dispute filed",
		"dispute_id", dispute.ID,
		"transaction_id", transactionID,
		"user_id", userID)

	return dispute, nil
}

// Close releases session state resources.
func (r *Resolver) Close() {
	r.sessions.Close()
}

func (r *Resolver) merchantMap(ctx context.Context) (map[string]model.Merchant, error) {
	merchants, err := r.store.ListMerchants(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load merchants: %w", err)
	}

	byID := make(map[string]model.Merchant, len(merchants))
	for _, m := range merchants {
		byID[m.ID] = m
	}
	return byID, nil
}
