package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/viper"

	"github.com/nordbooks/autopost/internal/learning"
	"github.com/nordbooks/autopost/internal/ledger"
	"github.com/nordbooks/autopost/internal/notify"
	"github.com/nordbooks/autopost/internal/review"
	"github.com/nordbooks/autopost/internal/service"
	"github.com/nordbooks/autopost/internal/storage"
	"github.com/nordbooks/autopost/internal/voucher"
)

// initStorage opens the configured database and brings the schema current.
func initStorage(ctx context.Context) (service.Storage, error) {
	dbPath := viper.GetString("database.path")
	if dbPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		dbPath = filepath.Join(home, ".local", "share", "autopost", "autopost.db")
	}
	dbPath = os.ExpandEnv(dbPath)

	store, err := storage.NewSQLiteStorage(dbPath)
	if err != nil {
		return nil, err
	}

	if err := store.Migrate(ctx); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return store, nil
}

// initNotifier connects to NATS when an URL is configured, otherwise falls
// back to logging events locally.
func initNotifier() service.Notifier {
	url := viper.GetString("nats.url")
	if url == "" {
		return &notify.LogNotifier{}
	}

	notifier, err := notify.NewNATSNotifier(url, viper.GetString("nats.subject_prefix"))
	if err != nil {
		slog.Warn("Failed to connect to NATS, events will be logged only", "url", url, "error", err)
		return &notify.LogNotifier{}
	}
	return notifier
}

// initReviewQueue wires the review queue service over an open storage.
func initReviewQueue(store service.Storage, cat service.Catalog) *review.Queue {
	builder := voucher.NewBuilder(cat)
	led := ledger.New(store)
	learner := learning.New(store)
	return review.New(store, builder, led, learner, initNotifier())
}
