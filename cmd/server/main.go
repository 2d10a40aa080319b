package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	answersservice "pollster/internal/answers/service"
	compliancehandler "pollster/internal/compliance/handler"
	complianceservice "pollster/internal/compliance/service"
	consenthandler "pollster/internal/consent/handler"
	consentservice "pollster/internal/consent/service"
	"pollster/internal/events/outbox"
	eventservice "pollster/internal/events/service"
	jwttoken "pollster/internal/jwt_token"
	participationhandler "pollster/internal/participation/handler"
	participationservice "pollster/internal/participation/service"
	"pollster/internal/platform/config"
	"pollster/internal/platform/httpserver"
	"pollster/internal/platform/kafka"
	"pollster/internal/platform/kafka/consumer"
	"pollster/internal/platform/logger"
	"pollster/internal/platform/metrics"
	respondenthandler "pollster/internal/respondent/handler"
	respondentservice "pollster/internal/respondent/service"
	statshandler "pollster/internal/stats/handler"
	statsservice "pollster/internal/stats/service"
	surveystore "pollster/internal/survey/store"
	httptransport "pollster/internal/transport/http"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "pollster: %v\n", err)
		os.Exit(1)
	}
}

// run wires the stores, services and transports, then blocks until a
// signal arrives or one of the long-running components fails.
func run() error {
	cfg, err := config.FromEnv()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log := logger.New(cfg.LogLevel)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	b, err := openBackend(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer b.Close()

	if cfg.SurveysFile != "" {
		surveys, err := surveystore.LoadFile(cfg.SurveysFile, time.Now())
		if err != nil {
			return err
		}
		if err := surveystore.Seed(ctx, b.surveys, surveys); err != nil {
			return err
		}
		log.InfoContext(ctx, "survey catalog seeded", "surveys", len(surveys), "file", cfg.SurveysFile)
	}

	eventLog := eventservice.New(b.events, eventservice.WithLogger(log))
	resolver := respondentservice.NewResolver(b.respondents)

	consents := consentservice.New(b.consents, b.tx, resolver, b.surveys, eventLog,
		consentservice.WithLogger(log),
		consentservice.WithMetrics(m),
	)
	participations := participationservice.New(b.participations, b.tx, resolver, eventLog,
		participationservice.WithCatalog(b.surveys),
		participationservice.WithLogger(log),
		participationservice.WithMetrics(m),
	)
	answers := answersservice.New(b.answers, b.tx, resolver, consents,
		answersservice.WithLogger(log),
	)
	respondents := respondentservice.New(b.respondents, b.tx, eventLog,
		respondentservice.WithConsentGate(consents),
		respondentservice.WithDependents(b.consents, b.participations, b.answers),
		respondentservice.WithLogger(log),
		respondentservice.WithMetrics(m),
	)
	compliance := complianceservice.New(b.respondents, b.consents, b.participations, eventLog, b.tx,
		complianceservice.WithAnswers(b.answers),
		complianceservice.WithLogger(log),
		complianceservice.WithMetrics(m),
	)
	stats := statsservice.New(b.stats,
		statsservice.WithLogger(log),
		statsservice.WithMetrics(m),
	)

	router := httptransport.NewRouter(httptransport.Config{
		AdminToken:        cfg.AdminToken,
		SecureCookie:      !cfg.DevMode(),
		Tokens:            jwttoken.New(cfg.JWTSigningKey, cfg.JWTIssuer, cfg.JWTAudience),
		TrustProxyHeaders: cfg.TrustProxyHeaders,
		Metrics:           promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		Ready:             b.Ready,
	}, httptransport.Handlers{
		Respondents:    respondenthandler.New(respondents, eventLog, log),
		Consents:       consenthandler.New(consents, log),
		Participations: participationhandler.New(participations, answers, log),
		Compliance:     compliancehandler.New(compliance, log),
		Stats:          statshandler.New(stats, log),
	}, log)
	if cfg.AdminToken == "" {
		log.WarnContext(ctx, "ADMIN_API_TOKEN not set, admin routes are disabled")
	}

	var publisher outbox.Publisher = outbox.NewDirectPublisher(stats)
	if cfg.StreamingEnabled() {
		if err := kafka.EnsureTopic(ctx, cfg.KafkaBrokers, cfg.EventsTopic, 3, 1); err != nil {
			return fmt.Errorf("ensure events topic: %w", err)
		}
		producer, err := kafka.NewProducer(cfg.KafkaBrokers, cfg.EventsTopic)
		if err != nil {
			return fmt.Errorf("create kafka producer: %w", err)
		}
		defer producer.Close()
		publisher = producer
	}

	worker := outbox.NewWorker(log, b.events, publisher,
		outbox.WithInterval(cfg.OutboxPollInterval),
		outbox.WithBatchSize(cfg.OutboxBatchSize),
		outbox.WithMaxRetries(cfg.OutboxMaxRetries),
		outbox.WithMetrics(m),
	)

	srv := httpserver.New(cfg.Addr, router)
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.InfoContext(gctx, "starting pollster", "addr", cfg.Addr, "backend", cfg.Backend, "streaming", cfg.StreamingEnabled())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown: %w", err)
		}
		log.Info("http server stopped")
		return nil
	})
	g.Go(func() error {
		if err := worker.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("outbox worker: %w", err)
		}
		return nil
	})

	if cfg.StreamingEnabled() {
		topics := consumer.NewRouter(log, nil)
		topics.Register(cfg.EventsTopic, stats)
		c, err := consumer.New(cfg.KafkaBrokers, cfg.ConsumerGroup, topics.Topics(), log)
		if err != nil {
			stop()
			_ = g.Wait()
			return fmt.Errorf("create kafka consumer: %w", err)
		}
		defer c.Close()
		g.Go(func() error {
			if err := c.Run(gctx, topics); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("stats consumer: %w", err)
			}
			return nil
		})
	}

	return g.Wait()
}
