package main

import (
	"github.com/spf13/cobra"
)

func patternsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "patterns",
		Short: "Inspect and manage learned posting patterns",
	}

	cmd.PersistentFlags().String("tenant", "", "tenant id (required)")
	_ = cmd.MarkPersistentFlagRequired("tenant")

	cmd.AddCommand(patternsListCmd())
	cmd.AddCommand(patternsDeactivateCmd())

	return cmd
}

func patternsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List active patterns with their success rates",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			tenant, _ := cmd.Flags().GetString("tenant")

			store, err := initStorage(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			patterns, err := store.GetActivePatterns(ctx, tenant)
			if err != nil {
				return err
			}
			if len(patterns) == 0 {
				cmd.Println("No active patterns")
				return nil
			}

			for i := range patterns {
				p := &patterns[i]
				cmd.Printf("%s  %s: %s → %s  rate=%.2f (%d/%d)\n",
					p.ID,
					p.Counterparty,
					p.TriggerAccount,
					p.Action.Account,
					p.SuccessRate(),
					p.Hits,
					p.Applications)
			}
			return nil
		},
	}
}

func patternsDeactivateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "deactivate <pattern-id>",
		Short: "Deactivate a pattern without deleting its history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			store, err := initStorage(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			if err := store.DeactivateLearnedPattern(ctx, args[0]); err != nil {
				return err
			}

			cmd.Printf("pattern %s deactivated\n", args[0])
			return nil
		},
	}
}
