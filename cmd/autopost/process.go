package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/nordbooks/autopost/internal/catalog"
	"github.com/nordbooks/autopost/internal/classifier"
	"github.com/nordbooks/autopost/internal/gate"
	"github.com/nordbooks/autopost/internal/ledger"
	"github.com/nordbooks/autopost/internal/model"
	"github.com/nordbooks/autopost/internal/voucher"
)

func processCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "process <proposals.json>",
		Short: "Run booking proposals through the posting gate",
		Long: `Read a JSON array of booking proposals and run each one through the
confidence gate. Proposals at or above the tenant's threshold post
directly to the ledger; the rest land in the review queue.`,
		Args: cobra.ExactArgs(1),
		RunE: runProcess,
	}

	cmd.Flags().String("metrics-addr", "", "serve Prometheus metrics on this address while processing (e.g. :9090)")

	return cmd
}

func runProcess(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	proposals, err := loadProposals(args[0])
	if err != nil {
		return err
	}
	if len(proposals) == 0 {
		slog.Info("No proposals to process")
		return nil
	}

	store, err := initStorage(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer func() { _ = store.Close() }()

	if addr, _ := cmd.Flags().GetString("metrics-addr"); addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		go func() {
			if serveErr := http.ListenAndServe(addr, mux); serveErr != nil {
				slog.Warn("Metrics server stopped", "error", serveErr)
			}
		}()
	}

	var refresher *classifier.Refresher
	if url := viper.GetString("classifier.url"); url != "" {
		client := classifier.NewHTTPClient(url, viper.GetString("classifier.api_key"))
		refresher = classifier.NewRefresher(client, classifier.DefaultTimeout)
	}

	cat := catalog.New(store)
	builder := voucher.NewBuilder(cat)
	g := gate.New(store, builder, ledger.New(store), refresher, initNotifier())

	var posted, queued, failed int
	for i := range proposals {
		decision, procErr := g.Process(ctx, &proposals[i])
		if procErr != nil {
			failed++
			slog.Error("Failed to process proposal",
				"proposal", proposals[i].ID,
				"error", procErr)
			continue
		}
		switch decision.Outcome {
		case gate.OutcomePosted:
			posted++
			cmd.Printf("posted   %s → voucher %s-%d (score %d)\n",
				proposals[i].ID, decision.Voucher.Series, decision.Voucher.Number, decision.Score)
		case gate.OutcomeQueued:
			queued++
			cmd.Printf("queued   %s → review item %s (score %d)\n",
				proposals[i].ID, decision.Item.ID, decision.Score)
		}
	}

	cmd.Printf("\n%d processed: %d posted, %d queued, %d failed\n",
		len(proposals), posted, queued, failed)
	if failed > 0 {
		return fmt.Errorf("%d proposals failed to process", failed)
	}
	return nil
}

func loadProposals(path string) ([]model.Proposal, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- user-supplied input file
	if err != nil {
		return nil, fmt.Errorf("failed to read proposals file: %w", err)
	}

	var proposals []model.Proposal
	if err := json.Unmarshal(data, &proposals); err != nil {
		return nil, fmt.Errorf("failed to parse proposals file: %w", err)
	}
	return proposals, nil
}
