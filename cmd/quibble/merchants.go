package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/quibble-sh/quibble/internal/common"
)

func merchantsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "merchants",
		Short: "Look up merchants by name or ID",
	}

	cmd.AddCommand(merchantsSearchCmd())
	cmd.AddCommand(merchantsShowCmd())

	return cmd
}

func merchantsSearchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "search <name>",
		Short: "Search merchants by name or alias",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
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

			matches, err := resolver.LookupMerchants(ctx, args[0])
			if err != nil {
				return err
			}

			if len(matches) == 0 {
				fmt.Printf("No merchant found matching %q. Try a different spelling, or how the name appears on your statement.\n", args[0])
				return nil
			}

			for _, m := range matches {
				fmt.Printf("%s  %s (%s)\n    aliases: %s\n", m.ID, m.CanonicalName, m.Category, formatAliases(m.Aliases))
			}
			return nil
		},
	}
}

func merchantsShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <merchant-id>",
		Short: "Show one merchant's details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			settings := loadSettings()

			store, err := openStorage(ctx, settings)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			merchant, err := store.GetMerchant(ctx, args[0])
			if err != nil {
				if errors.Is(err, common.ErrNotFound) {
					fmt.Printf("Merchant %s not found.\n", args[0])
					return nil
				}
				return err
			}

			fmt.Printf("ID:       %s\n", merchant.ID)
			fmt.Printf("Name:     %s\n", merchant.CanonicalName)
			fmt.Printf("Category: %s\n", merchant.Category)
			fmt.Printf("Aliases:  %s\n", formatAliases(merchant.Aliases))
			return nil
		},
	}
}
