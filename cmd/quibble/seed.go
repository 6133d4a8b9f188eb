package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func seedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed <catalog.json>",
		Short: "Import a JSON catalog of merchants and transactions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			settings := loadSettings()

			store, err := openStorage(ctx, settings)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			merchants, transactions, err := store.ImportCatalog(ctx, args[0])
			if err != nil {
				return err
			}

			fmt.Printf("Imported %d merchants and %d transactions.\n", merchants, transactions)
			return nil
		},
	}
}
