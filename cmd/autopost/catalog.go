package main

import (
	"github.com/spf13/cobra"

	"github.com/nordbooks/autopost/internal/catalog"
)

func catalogCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Manage the chart of accounts and tax codes",
	}

	cmd.PersistentFlags().String("tenant", "", "tenant id (required)")
	_ = cmd.MarkPersistentFlagRequired("tenant")

	cmd.AddCommand(catalogLoadCmd())
	cmd.AddCommand(catalogListCmd())

	return cmd
}

func catalogLoadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "load <chart.yaml>",
		Short: "Load accounts and tax codes from a YAML chart file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			tenant, _ := cmd.Flags().GetString("tenant")

			chart, err := catalog.LoadChartFile(args[0])
			if err != nil {
				return err
			}

			store, err := initStorage(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			if err := catalog.Seed(ctx, store, tenant, chart); err != nil {
				return err
			}

			cmd.Printf("loaded %d accounts and %d tax codes for tenant %s\n",
				len(chart.Accounts), len(chart.TaxCodes), tenant)
			return nil
		},
	}
}

func catalogListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the tenant's accounts",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			tenant, _ := cmd.Flags().GetString("tenant")

			store, err := initStorage(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			accounts, err := store.ListAccounts(ctx, tenant)
			if err != nil {
				return err
			}
			if len(accounts) == 0 {
				cmd.Println("No accounts loaded")
				return nil
			}

			for i := range accounts {
				active := ""
				if !accounts[i].IsActive {
					active = "  [inactive]"
				}
				cmd.Printf("%-6s %-10s %s%s\n", accounts[i].Number, accounts[i].Type, accounts[i].Name, active)
			}
			return nil
		},
	}
}
