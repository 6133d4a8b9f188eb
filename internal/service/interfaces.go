// Package service wires the matching engine, session state and storage into
// the operations the conversational layer calls.
package service

import (
	"context"

	"github.com/quibble-sh/quibble/internal/model"
)

// Storage defines the persistence contract the resolver depends on. The
// matching engine only ever reads user-scoped snapshots; disputes are the
// single write path.
type Storage interface {
	ListTransactionsByUser(ctx context.Context, userID string) ([]model.Transaction, error)
	GetTransaction(ctx context.Context, userID, id string) (*model.Transaction, error)
	ListMerchants(ctx context.Context) ([]model.Merchant, error)
	GetMerchant(ctx context.Context, id string) (*model.Merchant, error)
	SaveDispute(ctx context.Context, dispute model.Dispute) error
	ListDisputesByUser(ctx context.Context, userID string) ([]model.Dispute, error)
	Close() error
}

// QueryExtractor turns a sanitized user utterance into a structured
// MatchQuery. Implemented by the LLM provider client; the matching core
// never sees raw free text beyond the merchant field.
type QueryExtractor interface {
	ExtractQuery(ctx context.Context, utterance string) (model.MatchQuery, error)
}
