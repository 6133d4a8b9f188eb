package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/viper"

	"github.com/quibble-sh/quibble/internal/config"
	"github.com/quibble-sh/quibble/internal/model"
	"github.com/quibble-sh/quibble/internal/service"
	"github.com/quibble-sh/quibble/internal/session"
	"github.com/quibble-sh/quibble/internal/storage"
)

// openStorage opens the SQLite catalog and brings the schema up to date.
func openStorage(ctx context.Context, settings config.Settings) (*storage.SQLiteStorage, error) {
	store, err := storage.NewSQLiteStorage(settings.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open storage: %w", err)
	}
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to migrate storage: %w", err)
	}
	return store, nil
}

// newResolver builds the resolution service from settings.
func newResolver(store *storage.SQLiteStorage, settings config.Settings) (*service.Resolver, error) {
	return service.NewResolver(store, settings.Match, settings.SessionTTL, settings.TurnBudget, slog.Default())
}

func loadSettings() config.Settings {
	return config.Load(viper.GetViper())
}

// printResult renders a match result for the terminal.
func printResult(result model.MatchResult, merchants map[string]model.Merchant) {
	switch result.Outcome {
	case model.OutcomeEmpty:
		fmt.Println("No matching transactions found.")
	case model.OutcomeUnique:
		fmt.Println("Found it:")
		printCandidate(1, *result.Best, merchants)
	case model.OutcomeAmbiguous:
		fmt.Printf("Found %d possible matches. Which one did you mean?\n", len(result.Candidates))
		for i, candidate := range result.Candidates {
			printCandidate(i+1, candidate, merchants)
		}
	}
}

func printCandidate(rank int, candidate model.MatchCandidate, merchants map[string]model.Merchant) {
	txn := candidate.Transaction
	merchantName := txn.MerchantID
	if m, ok := merchants[txn.MerchantID]; ok {
		merchantName = m.CanonicalName
	}

	fmt.Printf("  %d. %s at %s on %s (%s, score %.2f)\n",
		rank,
		txn.DisplayAmount(),
		merchantName,
		txn.Date.Format("2006-01-02"),
		txn.Status,
		candidate.CompositeScore)
	if txn.Description != "" {
		fmt.Printf("     %s\n", txn.Description)
	}
}

// printResolution renders the outcome of a disambiguation selection.
func printResolution(resolution session.Resolution, merchants map[string]model.Merchant) {
	switch {
	case resolution.Candidate != nil:
		fmt.Println("Settled on:")
		printCandidate(1, *resolution.Candidate, merchants)
	case resolution.Clarification != nil:
		fmt.Println("Still ambiguous. Which one did you mean?")
		for _, ref := range resolution.Clarification.Candidates {
			printCandidate(ref.Rank, ref.Candidate, merchants)
		}
	case resolution.Result != nil:
		printResult(*resolution.Result, merchants)
	}
}

// merchantIndex loads merchants keyed by ID for display.
func merchantIndex(ctx context.Context, store *storage.SQLiteStorage) (map[string]model.Merchant, error) {
	merchants, err := store.ListMerchants(ctx)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]model.Merchant, len(merchants))
	for _, m := range merchants {
		byID[m.ID] = m
	}
	return byID, nil
}

// formatAliases joins aliases for display.
func formatAliases(aliases []string) string {
	if len(aliases) == 0 {
		return "none"
	}
	return strings.Join(aliases, ", ")
}
