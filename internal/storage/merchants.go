package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/quibble-sh/quibble/internal/common"
	"github.com/quibble-sh/quibble/internal/model"
)

// SaveMerchants inserts merchants and their aliases, ignoring duplicates.
func (s *SQLiteStorage) SaveMerchants(ctx context.Context, merchants []model.Merchant) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	merchantStmt, err := tx.PrepareContext(ctx, `
		INSERT OR IGNORE INTO merchants (id, canonical_name, category) VALUES (?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare merchant statement: %w", err)
	}
	defer func() { _ = merchantStmt.Close() }()

	aliasStmt, err := tx.PrepareContext(ctx, `
		INSERT OR IGNORE INTO merchant_aliases (merchant_id, alias) VALUES (?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare alias statement: %w", err)
	}
	defer func() { _ = aliasStmt.Close() }()

	for _, m := range merchants {
		if m.ID == "" || m.CanonicalName == "" {
			return fmt.Errorf("merchant requires an ID and canonical name, got %+v", m)
		}
		if _, err := merchantStmt.ExecContext(ctx, m.ID, m.CanonicalName, m.Category); err != nil {
			return fmt.Errorf("failed to insert merchant %s: %w", m.ID, err)
		}
		for _, alias := range m.Aliases {
			if _, err := aliasStmt.ExecContext(ctx, m.ID, alias); err != nil {
				return fmt.Errorf("failed to insert alias %q for merchant %s: %w", alias, m.ID, err)
			}
		}
	}

	return tx.Commit()
}

// ListMerchants returns the full merchant catalog with aliases attached.
func (s *SQLiteStorage) ListMerchants(ctx context.Context) ([]model.Merchant, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, canonical_name, COALESCE(category, '')
		FROM merchants
		ORDER BY canonical_name ASC, id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query merchants: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var merchants []model.Merchant
	byID := make(map[string]int)
	for rows.Next() {
		var m model.Merchant
		if err := rows.Scan(&m.ID, &m.CanonicalName, &m.Category); err != nil {
			return nil, fmt.Errorf("failed to scan merchant: %w", err)
		}
		byID[m.ID] = len(merchants)
		merchants = append(merchants, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate merchants: %w", err)
	}

	aliasRows, err := s.db.QueryContext(ctx, `
		SELECT merchant_id, alias FROM merchant_aliases ORDER BY alias ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query merchant aliases: %w", err)
	}
	defer func() { _ = aliasRows.Close() }()

	for aliasRows.Next() {
		var merchantID, alias string
		if err := aliasRows.Scan(&merchantID, &alias); err != nil {
			return nil, fmt.Errorf("failed to scan merchant alias: %w", err)
		}
		if idx, ok := byID[merchantID]; ok {
			merchants[idx].Aliases = append(merchants[idx].Aliases, alias)
		}
	}
	if err := aliasRows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate merchant aliases: %w", err)
	}

	return merchants, nil
}

// GetMerchant fetches one merchant by ID with its aliases.
func (s *SQLiteStorage) GetMerchant(ctx context.Context, id string) (*model.Merchant, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(id, "id"); err != nil {
		return nil, err
	}

	var m model.Merchant
	err := s.db.QueryRowContext(ctx, `
		SELECT id, canonical_name, COALESCE(category, '')
		FROM merchants WHERE id = ?
	`, id).Scan(&m.ID, &m.CanonicalName, &m.Category)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: merchant %s", common.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query merchant: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT alias FROM merchant_aliases WHERE merchant_id = ? ORDER BY alias ASC
	`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query aliases: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var alias string
		if err := rows.Scan(&alias); err != nil {
			return nil, fmt.Errorf("failed to scan alias: %w", err)
		}
		m.Aliases = append(m.Aliases, alias)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate aliases: %w", err)
	}

	return &m, nil
}
