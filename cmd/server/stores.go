package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	answersservice "pollster/internal/answers/service"
	answersstore "pollster/internal/answers/store"
	consentservice "pollster/internal/consent/service"
	consentstore "pollster/internal/consent/store"
	"pollster/internal/events/outbox"
	eventservice "pollster/internal/events/service"
	eventstore "pollster/internal/events/store"
	participationservice "pollster/internal/participation/service"
	participationstore "pollster/internal/participation/store"
	"pollster/internal/platform/config"
	"pollster/internal/platform/postgres"
	"pollster/internal/platform/redis"
	respondentservice "pollster/internal/respondent/service"
	respondentstore "pollster/internal/respondent/store"
	statsservice "pollster/internal/stats/service"
	statsstore "pollster/internal/stats/store"
	surveymodels "pollster/internal/survey/models"
	surveystore "pollster/internal/survey/store"
	id "pollster/pkg/domain"
	txcontext "pollster/pkg/platform/tx"
)

type surveyCatalog interface {
	Get(ctx context.Context, surveyID id.SurveyID) (*surveymodels.Survey, error)
	Upsert(ctx context.Context, sv *surveymodels.Survey) error
}

type eventStore interface {
	eventservice.Store
	outbox.Repository
}

// backend bundles the stores selected by configuration along with the
// transaction runner they share.
type backend struct {
	tx             txcontext.Runner
	respondents    respondentservice.Store
	consents       consentservice.Store
	participations participationservice.Store
	answers        answersservice.Store
	surveys        surveyCatalog
	events         eventStore
	stats          statsservice.Store

	db    *sql.DB
	redis *redis.Client
}

func openBackend(ctx context.Context, cfg config.Server, logger *slog.Logger) (*backend, error) {
	var b *backend
	switch cfg.Backend {
	case config.BackendPostgres:
		db, err := postgres.Open(ctx, cfg.DatabaseURL, logger)
		if err != nil {
			return nil, err
		}
		if err := postgres.RunMigrations(ctx, db, logger); err != nil {
			_ = db.Close()
			return nil, err
		}
		b = &backend{
			tx:             postgres.NewTxRunner(db, cfg.TxTimeout),
			respondents:    respondentstore.NewPostgres(db),
			consents:       consentstore.NewPostgres(db),
			participations: participationstore.NewPostgres(db),
			answers:        answersstore.NewPostgres(db),
			surveys:        surveystore.NewPostgres(db),
			events:         eventstore.NewPostgres(db),
			db:             db,
		}
	default:
		b = &backend{
			tx:             txcontext.NewMemory(),
			respondents:    respondentstore.NewInMemory(),
			consents:       consentstore.NewInMemory(),
			participations: participationstore.NewInMemory(),
			answers:        answersstore.NewInMemory(),
			surveys:        surveystore.NewInMemory(),
			events:         eventstore.NewInMemory(),
		}
	}

	client, err := redis.New(ctx, cfg)
	if err != nil {
		b.Close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	if client != nil {
		b.redis = client
		b.stats = statsstore.NewRedis(client.Client)
	} else {
		b.stats = statsstore.NewInMemory()
	}
	return b, nil
}

// Ready pings the external stores in use.
func (b *backend) Ready(ctx context.Context) error {
	if b.db != nil {
		if err := b.db.PingContext(ctx); err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
	}
	if b.redis != nil {
		if err := b.redis.Health(ctx); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
	}
	return nil
}

func (b *backend) Close() {
	if b.redis != nil {
		_ = b.redis.Close()
	}
	if b.db != nil {
		_ = b.db.Close()
	}
}
