package main

import (
	"github.com/spf13/cobra"
)

func tenantsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tenants",
		Short: "Manage per-tenant pipeline settings",
	}

	cmd.PersistentFlags().String("tenant", "", "tenant id (required)")
	_ = cmd.MarkPersistentFlagRequired("tenant")

	cmd.AddCommand(tenantsShowCmd())
	cmd.AddCommand(tenantsSetThresholdCmd())

	return cmd
}

func tenantsShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the tenant's effective settings",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			tenant, _ := cmd.Flags().GetString("tenant")

			store, err := initStorage(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			settings, err := store.GetTenantSettings(ctx, tenant)
			if err != nil {
				return err
			}

			cmd.Printf("tenant:               %s\n", settings.TenantID)
			cmd.Printf("confidence threshold: %d\n", settings.ConfidenceThreshold)
			cmd.Printf("voucher series:       %s\n", settings.VoucherSeries)
			cmd.Printf("currency:             %s (%d minor units)\n", settings.Currency, settings.MinorUnits)
			cmd.Printf("trade payables:       %s\n", settings.Rules.TradePayables)
			cmd.Printf("trade receivables:    %s\n", settings.Rules.TradeReceivables)
			cmd.Printf("tax input account:    %s\n", settings.Rules.TaxInputAccount)
			cmd.Printf("tax output account:   %s\n", settings.Rules.TaxOutputAccount)
			return nil
		},
	}
}

func tenantsSetThresholdCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "set-threshold",
		Short: "Set the tenant's auto-posting confidence threshold",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			tenant, _ := cmd.Flags().GetString("tenant")
			threshold, _ := cmd.Flags().GetInt("value")

			store, err := initStorage(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			settings, err := store.GetTenantSettings(ctx, tenant)
			if err != nil {
				return err
			}
			settings.ConfidenceThreshold = threshold

			if err := store.SaveTenantSettings(ctx, settings); err != nil {
				return err
			}

			cmd.Printf("tenant %s: confidence threshold set to %d\n", tenant, threshold)
			return nil
		},
	}

	cmd.Flags().Int("value", 0, "threshold on the 0-100 scale (required)")
	_ = cmd.MarkFlagRequired("value")
	return cmd
}
