// Command retention prunes respondent events and delivered outbox rows older
// than the configured horizon. It is meant to run from cron against the
// postgres backend.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	answersstore "pollster/internal/answers/store"
	complianceservice "pollster/internal/compliance/service"
	consentstore "pollster/internal/consent/store"
	eventservice "pollster/internal/events/service"
	eventstore "pollster/internal/events/store"
	participationstore "pollster/internal/participation/store"
	"pollster/internal/platform/config"
	"pollster/internal/platform/logger"
	"pollster/internal/platform/postgres"
	respondentstore "pollster/internal/respondent/store"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "retention: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.FromEnv()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	olderThan := flag.Duration("older-than", cfg.EventRetention, "delete events recorded before now minus this horizon")
	flag.Parse()

	log := logger.New(cfg.LogLevel)
	if cfg.Backend != config.BackendPostgres {
		return fmt.Errorf("retention requires the postgres backend, got %q", cfg.Backend)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := postgres.Open(ctx, cfg.DatabaseURL, log)
	if err != nil {
		return err
	}
	defer db.Close()

	compliance := complianceservice.New(
		respondentstore.NewPostgres(db),
		consentstore.NewPostgres(db),
		participationstore.NewPostgres(db),
		eventservice.New(eventstore.NewPostgres(db), eventservice.WithLogger(log)),
		postgres.NewTxRunner(db, cfg.TxTimeout),
		complianceservice.WithAnswers(answersstore.NewPostgres(db)),
		complianceservice.WithLogger(log),
	)

	res, err := compliance.PruneEvents(ctx, *olderThan)
	if err != nil {
		return err
	}
	log.InfoContext(ctx, "events pruned", "cutoff", res.Cutoff, "deleted", res.Deleted, "outbox_deleted", res.OutboxDeleted)
	return nil
}
