package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/quibble-sh/quibble/internal/common"
	"github.com/quibble-sh/quibble/internal/model"
)

// SaveTransactions inserts a batch of transactions, ignoring duplicates.
func (s *SQLiteStorage) SaveTransactions(ctx context.Context, transactions []model.Transaction) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	for i := range transactions {
		if err := transactions[i].Validate(); err != nil {
			return fmt.Errorf("invalid transaction at index %d: %w", i, err)
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR IGNORE INTO transactions (
			id, user_id, amount, currency, date, merchant_id, status, description
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, txn := range transactions {
		if _, err := stmt.ExecContext(ctx,
			txn.ID,
			txn.UserID,
			txn.Amount.String(),
			txn.Currency,
			txn.Date.UTC(),
			txn.MerchantID,
			string(txn.Status),
			txn.Description,
		); err != nil {
			return fmt.Errorf("failed to insert transaction %s: %w", txn.ID, err)
		}
	}

	return tx.Commit()
}

// ListTransactionsByUser returns the user's full transaction snapshot,
// newest first. The result is a read-only snapshot; the matching engine
// never writes back.
func (s *SQLiteStorage) ListTransactionsByUser(ctx context.Context, userID string) ([]model.Transaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(userID, "userID"); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, amount, currency, date, merchant_id, status, description
		FROM transactions
		WHERE user_id = ?
		ORDER BY date DESC, id ASC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var transactions []model.Transaction
	for rows.Next() {
		txn, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		transactions = append(transactions, txn)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate transactions: %w", err)
	}
	return transactions, nil
}

// GetTransaction fetches one transaction by ID, scoped to the given user.
func (s *SQLiteStorage) GetTransaction(ctx context.Context, userID, id string) (*model.Transaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(userID, "userID"); err != nil {
		return nil, err
	}
	if err := validateString(id, "id"); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, amount, currency, date, merchant_id, status, description
		FROM transactions
		WHERE user_id = ? AND id = ?
	`, userID, id)

	txn, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: transaction %s", common.ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &txn, nil
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row scanner) (model.Transaction, error) {
	var (
		txn         model.Transaction
		amount      string
		date        time.Time
		status      string
		description sql.NullString
	)

	if err := row.Scan(&txn.ID, &txn.UserID, &amount, &txn.Currency, &date, &txn.MerchantID, &status, &description); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Transaction{}, err
		}
		return model.Transaction{}, fmt.Errorf("failed to scan transaction: %w", err)
	}

	parsed, err := decimal.NewFromString(amount)
	if err != nil {
		return model.Transaction{}, fmt.Errorf("transaction %s has malformed amount %q: %w", txn.ID, amount, err)
	}

	txn.Amount = parsed
	txn.Date = date
	txn.Status = model.TransactionStatus(status)
	txn.Description = description.String
	return txn, nil
}
