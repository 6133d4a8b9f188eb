package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"

	"github.com/quibble-sh/quibble/internal/model"
)

// seedFile is the JSON fixture layout for catalog imports.
type seedFile struct {
	Merchants    []seedMerchant    `json:"merchants"`
	Transactions []seedTransaction `json:"transactions"`
}

type seedMerchant struct {
	ID            string   `json:"id"`
	CanonicalName string   `json:"canonical_name"`
	Category      string   `json:"category"`
	Aliases       []string `json:"aliases"`
}

type seedTransaction struct {
	ID          string `json:"id"`
	UserID      string `json:"user_id"`
	Amount      string `json:"amount"`
	Currency    string `json:"currency"`
	Date        string `json:"date"`
	MerchantID  string `json:"merchant_id"`
	Status      string `json:"status"`
	Description string `json:"description"`
}

// ImportCatalog loads a JSON catalog fixture into storage. Existing rows
// with the same IDs are left untouched.
func (s *SQLiteStorage) ImportCatalog(ctx context.Context, path string) (merchants, transactions int, err error) {
	if err := validateContext(ctx); err != nil {
		return 0, 0, err
	}

	data, err := os.ReadFile(path) // #nosec G304 -- operator-supplied fixture path
	if err != nil {
		return 0, 0, fmt.Errorf("failed to read catalog file: %w", err)
	}

	var seed seedFile
	if err := json.Unmarshal(data, &seed); err != nil {
		return 0, 0, fmt.Errorf("failed to parse catalog file: %w", err)
	}

	merchantModels := make([]model.Merchant, 0, len(seed.Merchants))
	for _, m := range seed.Merchants {
		merchantModels = append(merchantModels, model.Merchant{
			ID:            m.ID,
			CanonicalName: m.CanonicalName,
			Category:      m.Category,
			Aliases:       m.Aliases,
		})
	}

	txnModels := make([]model.Transaction, 0, len(seed.Transactions))
	for i, t := range seed.Transactions {
		txn, err := t.toModel()
		if err != nil {
			return 0, 0, fmt.Errorf("invalid transaction at index %d: %w", i, err)
		}
		txnModels = append(txnModels, txn)
	}

	if err := s.SaveMerchants(ctx, merchantModels); err != nil {
		return 0, 0, err
	}
	if err := s.SaveTransactions(ctx, txnModels); err != nil {
		return 0, 0, err
	}

	return len(merchantModels), len(txnModels), nil
}

func (t seedTransaction) toModel() (model.Transaction, error) {
	amount, err := decimal.NewFromString(t.Amount)
	if err != nil {
		return model.Transaction{}, fmt.Errorf("malformed amount %q: %w", t.Amount, err)
	}

	date, err := parseSeedDate(t.Date)
	if err != nil {
		return model.Transaction{}, err
	}

	currency := t.Currency
	if currency == "" {
		currency = "USD"
	}
	status := model.TransactionStatus(t.Status)
	if t.Status == "" {
		status = model.StatusPosted
	}

	return model.Transaction{
		ID:          t.ID,
		UserID:      t.UserID,
		Amount:      amount,
		Currency:    currency,
		Date:        date,
		MerchantID:  t.MerchantID,
		Status:      status,
		Description: t.Description,
	}, nil
}

func parseSeedDate(value string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04", "2006-01-02"} {
		if parsed, err := time.Parse(layout, value); err == nil {
			return parsed, nil
		}
	}
	return time.Time{}, fmt.Errorf("malformed date %q", value)
}
