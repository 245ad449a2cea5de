// Command prune-slots removes persisted preferences and history of sessions
// that have not been written for a while.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/swelljoe/skycast/internal/config"
	"github.com/swelljoe/skycast/internal/db"
	"github.com/swelljoe/skycast/internal/logging"
)

const appName = "prune-slots"

var version = "dev"

func main() {
	olderThan := flag.Duration("older-than", 30*24*time.Hour, "delete slots not written for this long")
	dryRun := flag.Bool("dry-run", false, "report the session count without deleting")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.LoadFromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}
	logger := logging.New(os.Stderr, cfg, version, appName)

	if err := run(context.Background(), cfg, logger, *olderThan, *dryRun); err != nil {
		logger.Error("prune failed", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger, olderThan time.Duration, dryRun bool) error {
	if olderThan <= 0 {
		return fmt.Errorf("-older-than must be positive, got %s", olderThan)
	}

	database, err := db.NewDB(cfg)
	if err != nil {
		return fmt.Errorf("failed to open db: %w", err)
	}
	defer database.Close()

	before, err := database.CountSessions(ctx)
	if err != nil {
		return err
	}
	if dryRun {
		logger.Info("dry run", "sessions", before)
		return nil
	}

	cutoff := time.Now().Add(-olderThan)
	removed, err := database.PruneSlots(ctx, cutoff)
	if err != nil {
		return err
	}
	after, err := database.CountSessions(ctx)
	if err != nil {
		return err
	}
	logger.Info("pruned slots",
		"cutoff", cutoff.UTC().Format(time.RFC3339),
		"rows", removed,
		"sessions_before", before,
		"sessions_after", after,
	)
	return nil
}
