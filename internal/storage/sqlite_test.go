package storage

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quibble-sh/quibble/internal/common"
	"github.com/quibble-sh/quibble/internal/model"
)

func newTestStorage(t *testing.T) *SQLiteStorage {
	t.Helper()

	store, err := NewSQLiteStorage(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, store.Migrate(context.Background()))
	t.Cleanup(func() { _ = store.Close() })

	return store
}

func sampleMerchants() []model.Merchant {
	return []model.Merchant{
		{ID: "m_coffee", CanonicalName: "Coffee Palace", Category: "food", Aliases: []string{"COFFEE PALACE #1234"}},
		{ID: "m_grocery", CanonicalName: "Grocery Giant", Category: "grocery"},
	}
}

func sampleTransactions() []model.Transaction {
	return []model.Transaction{
		{
			ID: "txn_001", UserID: "user_001", MerchantID: "m_coffee",
			Amount: decimal.RequireFromString("48.50"), Currency: "USD",
			Date:   time.Date(2025, 7, 10, 9, 15, 0, 0, time.UTC),
			Status: model.StatusPosted, Description: "coffee run",
		},
		{
			ID: "txn_002", UserID: "user_001", MerchantID: "m_grocery",
			Amount: decimal.RequireFromString("112.40"), Currency: "USD",
			Date:   time.Date(2025, 7, 12, 18, 40, 0, 0, time.UTC),
			Status: model.StatusPending,
		},
		{
			ID: "txn_900", UserID: "user_002", MerchantID: "m_grocery",
			Amount: decimal.RequireFromString("9.99"), Currency: "USD",
			Date:   time.Date(2025, 7, 11, 12, 0, 0, 0, time.UTC),
			Status: model.StatusPosted,
		},
	}
}

func TestMigrate(t *testing.T) {
	store := newTestStorage(t)

	var version int
	require.NoError(t, store.db.QueryRow("PRAGMA user_version").Scan(&version))
	assert.Equal(t, ExpectedSchemaVersion, version)

	t.Run("migrate is idempotent", func(t *testing.T) {
		require.NoError(t, store.Migrate(context.Background()))
	})
}

func TestTransactionsRoundTrip(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	require.NoError(t, store.SaveTransactions(ctx, sampleTransactions()))

	t.Run("list is scoped to the user and newest first", func(t *testing.T) {
		txns, err := store.ListTransactionsByUser(ctx, "user_001")
		require.NoError(t, err)
		require.Len(t, txns, 2)
		assert.Equal(t, "txn_002", txns[0].ID)
		assert.Equal(t, "txn_001", txns[1].ID)
	})

	t.Run("amounts survive the round trip exactly", func(t *testing.T) {
		txn, err := store.GetTransaction(ctx, "user_001", "txn_001")
		require.NoError(t, err)
		assert.True(t, txn.Amount.Equal(decimal.RequireFromString("48.50")))
		assert.Equal(t, model.StatusPosted, txn.Status)
		assert.Equal(t, "coffee run", txn.Description)
	})

	t.Run("duplicate inserts are ignored", func(t *testing.T) {
		require.NoError(t, store.SaveTransactions(ctx, sampleTransactions()))
		txns, err := store.ListTransactionsByUser(ctx, "user_001")
		require.NoError(t, err)
		assert.Len(t, txns, 2)
	})

	t.Run("another user's transaction is not visible", func(t *testing.T) {
		_, err := store.GetTransaction(ctx, "user_001", "txn_900")
		require.Error(t, err)
		assert.ErrorIs(t, err, common.ErrNotFound)
	})

	t.Run("missing transaction is not found", func(t *testing.T) {
		_, err := store.GetTransaction(ctx, "user_001", "txn_999")
		require.Error(t, err)
		assert.ErrorIs(t, err, common.ErrNotFound)
	})

	t.Run("invalid transaction is rejected before writing", func(t *testing.T) {
		err := store.SaveTransactions(ctx, []model.Transaction{{ID: "txn_bad"}})
		assert.Error(t, err)
	})
}

func TestMerchantsRoundTrip(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	require.NoError(t, store.SaveMerchants(ctx, sampleMerchants()))

	t.Run("list attaches aliases", func(t *testing.T) {
		merchants, err := store.ListMerchants(ctx)
		require.NoError(t, err)
		require.Len(t, merchants, 2)
		assert.Equal(t, "Coffee Palace", merchants[0].CanonicalName)
		assert.Equal(t, []string{"COFFEE PALACE #1234"}, merchants[0].Aliases)
		assert.Empty(t, merchants[1].Aliases)
	})

	t.Run("get returns one merchant with aliases", func(t *testing.T) {
		merchant, err := store.GetMerchant(ctx, "m_coffee")
		require.NoError(t, err)
		assert.Equal(t, "Coffee Palace", merchant.CanonicalName)
		assert.Equal(t, []string{"COFFEE PALACE #1234"}, merchant.Aliases)
	})

	t.Run("missing merchant is not found", func(t *testing.T) {
		_, err := store.GetMerchant(ctx, "m_missing")
		require.Error(t, err)
		assert.ErrorIs(t, err, common.ErrNotFound)
	})
}

func TestDisputesRoundTrip(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	require.NoError(t, store.SaveTransactions(ctx, sampleTransactions()))

	dispute := model.NewDispute("txn_001", "user_001", "charged twice for the same order")
	require.NoError(t, store.SaveDispute(ctx, dispute))

	t.Run("list returns the filed dispute", func(t *testing.T) {
		disputes, err := store.ListDisputesByUser(ctx, "user_001")
		require.NoError(t, err)
		require.Len(t, disputes, 1)
		assert.Equal(t, dispute.ID, disputes[0].ID)
		assert.Equal(t, model.DisputeFlagged, disputes[0].Status)
		assert.Equal(t, "charged twice for the same order", disputes[0].Complaint)
	})

	t.Run("status update moves through the lifecycle", func(t *testing.T) {
		require.NoError(t, store.UpdateDisputeStatus(ctx, dispute.ID, model.DisputeResolved, "refund issued"))

		disputes, err := store.ListDisputesByUser(ctx, "user_001")
		require.NoError(t, err)
		require.Len(t, disputes, 1)
		assert.Equal(t, model.DisputeResolved, disputes[0].Status)
		assert.Equal(t, "refund issued", disputes[0].ResolutionNotes)
	})

	t.Run("updating a missing dispute is not found", func(t *testing.T) {
		err := store.UpdateDisputeStatus(ctx, "nope", model.DisputeResolved, "")
		require.Error(t, err)
		assert.ErrorIs(t, err, common.ErrNotFound)
	})

	t.Run("invalid status is rejected", func(t *testing.T) {
		err := store.UpdateDisputeStatus(ctx, dispute.ID, model.DisputeStatus("escalated"), "")
		assert.Error(t, err)
	})
}

func TestImportCatalog(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	catalog := map[string]any{
		"merchants": []map[string]any{
			{"id": "m_coffee", "canonical_name": "Coffee Palace", "category": "food", "aliases": []string{"COFFEE PALACE #1234"}},
		},
		"transactions": []map[string]any{
			{"id": "txn_001", "user_id": "user_001", "amount": "48.50", "date": "2025-07-10", "merchant_id": "m_coffee"},
			{"id": "txn_002", "user_id": "user_001", "amount": "12.00", "date": "2025-07-11 09:30", "merchant_id": "m_coffee", "status": "pending"},
		},
	}
	data, err := json.Marshal(catalog)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "catalog.json")
	require.NoError(t, os.WriteFile(path, data, 0o600))

	merchants, transactions, err := store.ImportCatalog(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, 1, merchants)
	assert.Equal(t, 2, transactions)

	t.Run("defaults fill in currency and status", func(t *testing.T) {
		txn, err := store.GetTransaction(ctx, "user_001", "txn_001")
		require.NoError(t, err)
		assert.Equal(t, "USD", txn.Currency)
		assert.Equal(t, model.StatusPosted, txn.Status)
	})

	t.Run("explicit status is kept", func(t *testing.T) {
		txn, err := store.GetTransaction(ctx, "user_001", "txn_002")
		require.NoError(t, err)
		assert.Equal(t, model.StatusPending, txn.Status)
	})

	t.Run("missing file fails", func(t *testing.T) {
		_, _, err := store.ImportCatalog(ctx, filepath.Join(t.TempDir(), "absent.json"))
		assert.Error(t, err)
	})

	t.Run("malformed date fails the import", func(t *testing.T) {
		bad := filepath.Join(t.TempDir(), "bad.json")
		require.NoError(t, os.WriteFile(bad, []byte(`{"transactions":[{"id":"x","user_id":"u","amount":"1.00","date":"July 10th","merchant_id":"m_coffee"}]}`), 0o600))
		_, _, err := store.ImportCatalog(ctx, bad)
		assert.Error(t, err)
	})
}
