package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/quibble-sh/quibble/internal/common"
)

func disputesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "disputes",
		Short: "File and review transaction disputes",
	}

	cmd.AddCommand(disputesFileCmd())
	cmd.AddCommand(disputesListCmd())

	return cmd
}

func disputesFileCmd() *cobra.Command {
	var (
		userID    string
		txnID     string
		complaint string
	)

	cmd := &cobra.Command{
		Use:   "file",
		Short: "Flag a transaction for dispute review",
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

			dispute, err := resolver.FileDispute(ctx, userID, txnID, complaint)
			if err != nil {
				if errors.Is(err, common.ErrNotFound) {
					return common.NewUserError(fmt.Sprintf("Transaction %s not found for this user", txnID), err)
				}
				return err
			}

			fmt.Printf("Dispute %s filed for transaction %s (status: %s).\n", dispute.ID, dispute.TransactionID, dispute.Status)
			return nil
		},
	}

	cmd.Flags().StringVar(&userID, "user", "user_001", "user filing the dispute")
	cmd.Flags().StringVar(&txnID, "txn-id", "", "transaction being disputed")
	cmd.Flags().StringVar(&complaint, "complaint", "", "what went wrong, in the user's words")
	_ = cmd.MarkFlagRequired("txn-id")
	_ = cmd.MarkFlagRequired("complaint")

	return cmd
}

func disputesListCmd() *cobra.Command {
	var userID string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List a user's disputes",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			settings := loadSettings()

			store, err := openStorage(ctx, settings)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			disputes, err := store.ListDisputesByUser(ctx, userID)
			if err != nil {
				return err
			}

			if len(disputes) == 0 {
				fmt.Println("No disputes on file.")
				return nil
			}

			for _, d := range disputes {
				fmt.Printf("%s  txn=%s  %s  %s\n    %s\n",
					d.ID, d.TransactionID, d.CreatedAt.Format("2006-01-02 15:04"), d.Status, d.Complaint)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&userID, "user", "user_001", "user whose disputes to list")

	return cmd
}
