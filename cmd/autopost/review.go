package main

import (
	"github.com/spf13/cobra"

	"github.com/nordbooks/autopost/internal/catalog"
	"github.com/nordbooks/autopost/internal/model"
	"github.com/nordbooks/autopost/internal/service"
)

func reviewCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "review",
		Short: "Work the review queue",
	}

	cmd.PersistentFlags().String("tenant", "", "tenant id (required)")
	cmd.PersistentFlags().String("resolver", "", "resolver identity recorded on the decision")
	_ = cmd.MarkPersistentFlagRequired("tenant")

	cmd.AddCommand(reviewListCmd())
	cmd.AddCommand(reviewApproveCmd())
	cmd.AddCommand(reviewRejectCmd())
	cmd.AddCommand(reviewCorrectCmd())
	cmd.AddCommand(reviewApplySimilarCmd())

	return cmd
}

func reviewListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List pending review items, highest priority first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			tenant, _ := cmd.Flags().GetString("tenant")
			limit, _ := cmd.Flags().GetInt("limit")

			store, err := initStorage(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			items, err := store.ListPendingReviewItems(ctx, service.ReviewFilter{TenantID: tenant, Limit: limit})
			if err != nil {
				return err
			}
			if len(items) == 0 {
				cmd.Println("No pending review items")
				return nil
			}

			for i := range items {
				item := &items[i]
				cmd.Printf("%s  prio=%-3d score=%-3d due=%s  %s  %s %s\n",
					item.ID,
					item.Priority,
					item.Score,
					item.DueAt.Format("2006-01-02"),
					item.Proposal.Counterparty,
					item.Proposal.TotalAmount.StringFixed(2),
					item.Proposal.Currency)
				if item.FailureContext != "" {
					cmd.Printf("    posting failed: %s\n", item.FailureContext)
				}
			}
			return nil
		},
	}

	cmd.Flags().Int("limit", 50, "maximum number of items to list")
	return cmd
}

func reviewApproveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "approve <item-id>",
		Short: "Approve an item and post its voucher as proposed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			tenant, _ := cmd.Flags().GetString("tenant")
			resolver, _ := cmd.Flags().GetString("resolver")
			notes, _ := cmd.Flags().GetString("notes")

			store, err := initStorage(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			queue := initReviewQueue(store, catalog.New(store))
			voucher, err := queue.Approve(ctx, tenant, args[0], resolver, notes)
			if err != nil {
				return err
			}

			cmd.Printf("approved: voucher %s-%d posted\n", voucher.Series, voucher.Number)
			return nil
		},
	}

	cmd.Flags().String("notes", "", "resolution notes")
	return cmd
}

func reviewRejectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reject <item-id>",
		Short: "Reject an item without posting",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			tenant, _ := cmd.Flags().GetString("tenant")
			resolver, _ := cmd.Flags().GetString("resolver")
			reason, _ := cmd.Flags().GetString("reason")
			notes, _ := cmd.Flags().GetString("notes")

			store, err := initStorage(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			queue := initReviewQueue(store, catalog.New(store))
			if err := queue.Reject(ctx, tenant, args[0], resolver, reason, notes); err != nil {
				return err
			}

			cmd.Println("rejected: no voucher posted")
			return nil
		},
	}

	cmd.Flags().String("reason", "", "why the proposal is wrong (required)")
	cmd.Flags().String("notes", "", "resolution notes")
	_ = cmd.MarkFlagRequired("reason")
	return cmd
}

func reviewCorrectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "correct <item-id>",
		Short: "Post an item with a corrected account mapping",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			tenant, _ := cmd.Flags().GetString("tenant")
			resolver, _ := cmd.Flags().GetString("resolver")
			account, _ := cmd.Flags().GetString("account")
			taxCode, _ := cmd.Flags().GetString("tax-code")
			notes, _ := cmd.Flags().GetString("notes")

			store, err := initStorage(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			overrides := []model.LineOverride{{Account: account, TaxCode: taxCode}}

			queue := initReviewQueue(store, catalog.New(store))
			voucher, err := queue.Correct(ctx, tenant, args[0], resolver, overrides, notes)
			if err != nil {
				return err
			}

			cmd.Printf("corrected: voucher %s-%d posted to account %s\n",
				voucher.Series, voucher.Number, account)
			return nil
		},
	}

	cmd.Flags().String("account", "", "account the main line should post to (required)")
	cmd.Flags().String("tax-code", "", "tax code for the corrected line")
	cmd.Flags().String("notes", "", "resolution notes")
	_ = cmd.MarkFlagRequired("account")
	return cmd
}

func reviewApplySimilarCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "apply-similar <item-id>",
		Short: "Re-score pending items similar to a resolved one",
		Long: `Re-score all pending review items matching the resolved item's
counterparty and candidate account. Items whose refreshed score clears
the tenant threshold are posted; the rest stay queued.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			tenant, _ := cmd.Flags().GetString("tenant")
			resolver, _ := cmd.Flags().GetString("resolver")
			counterparty, _ := cmd.Flags().GetString("counterparty")
			account, _ := cmd.Flags().GetString("candidate-account")

			store, err := initStorage(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			scope := service.ScopeFilter{Counterparty: counterparty, CandidateAccount: account}

			queue := initReviewQueue(store, catalog.New(store))
			result, err := queue.ApplyToSimilar(ctx, tenant, args[0], resolver, scope)
			if err != nil {
				return err
			}

			cmd.Printf("%d similar items: %d posted, %d failed, %d left pending\n",
				result.Matched, result.Posted, result.Failed,
				result.Matched-result.Posted-result.Failed)
			return nil
		},
	}

	cmd.Flags().String("counterparty", "", "override the counterparty scope")
	cmd.Flags().String("candidate-account", "", "override the candidate account scope")
	return cmd
}
