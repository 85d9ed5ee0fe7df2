package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/nordbooks/autopost/internal/ledger"
	"github.com/nordbooks/autopost/internal/model"
	"github.com/nordbooks/autopost/internal/service"
)

func ledgerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ledger",
		Short: "Inspect and correct the voucher ledger",
	}

	cmd.PersistentFlags().String("tenant", "", "tenant id (required)")
	_ = cmd.MarkPersistentFlagRequired("tenant")

	cmd.AddCommand(ledgerListCmd())
	cmd.AddCommand(ledgerShowCmd())
	cmd.AddCommand(ledgerReverseCmd())
	cmd.AddCommand(ledgerLogCmd())

	return cmd
}

func ledgerListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List posted vouchers",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			tenant, _ := cmd.Flags().GetString("tenant")
			account, _ := cmd.Flags().GetString("account")
			from, _ := cmd.Flags().GetString("from")
			to, _ := cmd.Flags().GetString("to")
			limit, _ := cmd.Flags().GetInt("limit")

			filter := service.VoucherFilter{TenantID: tenant, Account: account, Limit: limit}
			if from != "" {
				start, err := time.Parse("2006-01-02", from)
				if err != nil {
					return fmt.Errorf("invalid --from date: %w", err)
				}
				filter.PeriodStart = &start
			}
			if to != "" {
				end, err := time.Parse("2006-01-02", to)
				if err != nil {
					return fmt.Errorf("invalid --to date: %w", err)
				}
				filter.PeriodEnd = &end
			}

			store, err := initStorage(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			vouchers, err := ledger.New(store).List(ctx, filter)
			if err != nil {
				return err
			}
			if len(vouchers) == 0 {
				cmd.Println("No vouchers found")
				return nil
			}

			for i := range vouchers {
				printVoucherLine(cmd, &vouchers[i])
			}
			return nil
		},
	}

	cmd.Flags().String("account", "", "only vouchers touching this account")
	cmd.Flags().String("from", "", "period start (YYYY-MM-DD)")
	cmd.Flags().String("to", "", "period end (YYYY-MM-DD)")
	cmd.Flags().Int("limit", 100, "maximum number of vouchers to list")
	return cmd
}

func ledgerShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <voucher-id>",
		Short: "Show a voucher with its lines",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			tenant, _ := cmd.Flags().GetString("tenant")

			store, err := initStorage(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			voucher, err := store.GetVoucher(ctx, tenant, args[0])
			if err != nil {
				return err
			}

			printVoucherLine(cmd, voucher)
			for i := range voucher.Lines {
				line := &voucher.Lines[i]
				side, amount := "credit", line.Credit
				if line.Credit.IsZero() {
					side, amount = "debit ", line.Debit
				}
				cmd.Printf("  %s %s %12s  %s\n", side, line.Account, amount.StringFixed(2), line.Description)
			}
			return nil
		},
	}
}

func ledgerReverseCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reverse <voucher-id>",
		Short: "Reverse a posted voucher",
		Long: `Post a new voucher with the original's debit and credit sides swapped,
linked to the original. The original voucher itself is never modified.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			tenant, _ := cmd.Flags().GetString("tenant")
			actor, _ := cmd.Flags().GetString("actor")
			reason, _ := cmd.Flags().GetString("reason")

			store, err := initStorage(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			reversal, err := ledger.New(store).Reverse(ctx, tenant, args[0], actor, reason)
			if err != nil {
				return err
			}

			cmd.Printf("reversed: voucher %s-%d posted against %s\n",
				reversal.Series, reversal.Number, args[0])
			return nil
		},
	}

	cmd.Flags().String("actor", "", "who ordered the reversal (required)")
	cmd.Flags().String("reason", "", "why the voucher is being reversed (required)")
	_ = cmd.MarkFlagRequired("actor")
	_ = cmd.MarkFlagRequired("reason")
	return cmd
}

func ledgerLogCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "log",
		Short: "Show the decision log",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			tenant, _ := cmd.Flags().GetString("tenant")
			subjectType, _ := cmd.Flags().GetString("subject-type")
			subjectID, _ := cmd.Flags().GetString("subject-id")
			limit, _ := cmd.Flags().GetInt("limit")

			store, err := initStorage(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			entries, err := store.ListDecisionLog(ctx, service.DecisionLogFilter{
				TenantID:    tenant,
				SubjectType: subjectType,
				SubjectID:   subjectID,
				Limit:       limit,
			})
			if err != nil {
				return err
			}

			for i := range entries {
				entry := &entries[i]
				cmd.Printf("%s  %-15s %s/%s  %s(%s)\n",
					entry.CreatedAt.Format(time.RFC3339),
					entry.Action,
					entry.SubjectType,
					entry.SubjectID,
					entry.ActorType,
					entry.ActorID)
			}
			return nil
		},
	}

	cmd.Flags().String("subject-type", "", "filter by subject type (proposal, review_item, voucher, pattern)")
	cmd.Flags().String("subject-id", "", "filter by subject id")
	cmd.Flags().Int("limit", 100, "maximum number of entries")
	return cmd
}

func printVoucherLine(cmd *cobra.Command, voucher *model.Voucher) {
	flag := ""
	if voucher.IsReversed {
		flag = "  [reversed]"
	}
	if voucher.Reverses != "" {
		flag = "  [reversal of " + voucher.Reverses + "]"
	}
	cmd.Printf("%s-%-6d %s  %s  %12s %s%s\n",
		voucher.Series,
		voucher.Number,
		voucher.Date.Format("2006-01-02"),
		voucher.ID,
		voucher.TotalDebit().StringFixed(2),
		voucher.Currency,
		flag)
}
