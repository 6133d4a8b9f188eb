package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/quibble-sh/quibble/internal/common"
	"github.com/quibble-sh/quibble/internal/llm"
	"github.com/quibble-sh/quibble/internal/model"
	"github.com/quibble-sh/quibble/internal/resilience"
	"github.com/quibble-sh/quibble/internal/session"
)

func resolveCmd() *cobra.Command {
	var (
		userID       string
		amountFlag   string
		dateFlag     string
		merchantText string
		txnID        string
		message      string
	)

	cmd := &cobra.Command{
		Use:   "resolve",
		Short: "Find the transaction you half remember",
		Long: `Resolve an imprecise transaction description against your catalog.

Give any combination of --amount, --date, --merchant and --txn-id, or pass
the whole thing in natural language with --message and let the reasoning
provider pull the fields out.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			settings := loadSettings()

			store, err := openStorage(ctx, settings)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			resolver, err := newResolver(store, settings)
			if err != nil {
				return err
			}
			defer resolver.Close()

			query, err := buildQuery(amountFlag, dateFlag, merchantText, txnID)
			if err != nil {
				return err
			}

			if message != "" {
				executor := resilience.NewExecutor(settings.Resilience, nil)
				client, err := llm.NewClient(settings.LLM)
				if err != nil {
					return err
				}
				extractor := llm.NewResilient(client, executor, settings.LLM.Provider)

				query, err = extractor.ExtractQuery(ctx, message)
				if err != nil {
					return describeProviderFailure(err)
				}
			}

			merchants, err := merchantIndex(ctx, store)
			if err != nil {
				return err
			}

			sessionID := uuid.NewString()
			response, err := resolver.Resolve(ctx, sessionID, userID, query)
			if err != nil {
				if errors.Is(err, common.ErrInvalidQuery) {
					return common.NewUserError("I need at least one of an amount, a date, a merchant name or a transaction ID", err)
				}
				return err
			}

			printResult(response.Result, merchants)

			// Ambiguous results are settled interactively in this process.
			for response.Clarification != nil {
				sel, done, err := promptSelection(response.Clarification)
				if err != nil {
					return err
				}
				if done {
					return nil
				}

				resolution, err := resolver.Select(ctx, sessionID, sel)
				if err != nil {
					if errors.Is(err, common.ErrStaleReference) {
						return common.NewUserError("That choice expired; run resolve again", err)
					}
					return err
				}

				printResolution(resolution, merchants)
				response.Clarification = resolution.Clarification
			}

			return nil
		},
	}

	cmd.Flags().StringVar(&userID, "user", "user_001", "user whose transactions to search")
	cmd.Flags().StringVar(&amountFlag, "amount", "", "approximate amount, e.g. 48.50")
	cmd.Flags().StringVar(&dateFlag, "date", "", "approximate date, YYYY-MM-DD")
	cmd.Flags().StringVar(&merchantText, "merchant", "", "merchant name as it appeared on the statement")
	cmd.Flags().StringVar(&txnID, "txn-id", "", "exact transaction ID, if known")
	cmd.Flags().StringVar(&message, "message", "", "free-text description; fields are extracted by the reasoning provider")

	return cmd
}

// buildQuery assembles a MatchQuery from explicit flags.
func buildQuery(amountFlag, dateFlag, merchantText, txnID string) (model.MatchQuery, error) {
	var query model.MatchQuery

	if amountFlag != "" {
		amount, err := decimal.NewFromString(amountFlag)
		if err != nil {
			return model.MatchQuery{}, fmt.Errorf("%w: malformed amount %q", common.ErrInvalidQuery, amountFlag)
		}
		query.Amount = &amount
	}
	if dateFlag != "" {
		date, err := time.Parse("2006-01-02", dateFlag)
		if err != nil {
			return model.MatchQuery{}, fmt.Errorf("%w: malformed date %q, expected YYYY-MM-DD", common.ErrInvalidQuery, dateFlag)
		}
		query.Date = &date
	}
	query.MerchantText = merchantText
	query.TransactionID = txnID

	return query, nil
}

// promptSelection reads the user's answer to a clarification from stdin:
// a rank number, a transaction ID, or blank to give up.
func promptSelection(clarification *session.Clarification) (session.Selection, bool, error) {
	fmt.Printf("Pick 1-%d, paste a transaction ID, or press enter to stop: ", len(clarification.Candidates))

	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return session.Selection{}, true, nil
	}

	answer := strings.TrimSpace(line)
	if answer == "" {
		return session.Selection{}, true, nil
	}

	if rank, err := strconv.Atoi(answer); err == nil {
		return session.Selection{RankIndex: &rank}, false, nil
	}
	return session.Selection{TransactionID: answer}, false, nil
}

// describeProviderFailure maps resilience-domain failures to distinct
// user-facing messages so "busy" never reads as "broken".
func describeProviderFailure(err error) error {
	switch {
	case errors.Is(err, common.ErrRateLimited):
		return common.NewUserError("The reasoning provider is busy; try again in a moment", err)
	case errors.Is(err, common.ErrCircuitOpen):
		return common.NewUserError("The reasoning provider looks down; try again later", err)
	case errors.Is(err, common.ErrRetriesExhausted):
		return common.NewUserError("The reasoning provider keeps failing; try again later", err)
	default:
		return err
	}
}
