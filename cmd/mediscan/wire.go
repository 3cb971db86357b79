package main

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/bryanwahyu/mediscan/internal/application"
	appanalysis "github.com/bryanwahyu/mediscan/internal/application/analysis"
	appconsult "github.com/bryanwahyu/mediscan/internal/application/consultations"
	"github.com/bryanwahyu/mediscan/internal/application/retry"
	domain "github.com/bryanwahyu/mediscan/internal/domain/analysis"
	"github.com/bryanwahyu/mediscan/internal/domain/consultations"
	"github.com/bryanwahyu/mediscan/internal/domain/images"
	"github.com/bryanwahyu/mediscan/internal/domain/pipelineerrors"
	"github.com/bryanwahyu/mediscan/internal/config"
	"github.com/bryanwahyu/mediscan/internal/infra/ai/openai"
	mysqlp "github.com/bryanwahyu/mediscan/internal/infra/db/mysql"
	"github.com/bryanwahyu/mediscan/internal/infra/db/postgres"
	"github.com/bryanwahyu/mediscan/internal/infra/idempotency"
	"github.com/bryanwahyu/mediscan/internal/infra/messaging"
	"github.com/bryanwahyu/mediscan/internal/infra/storage"
	"github.com/bryanwahyu/mediscan/internal/middleware"
)

// app holds the wired services and everything that must be closed on exit.
type app struct {
	analysis      *appanalysis.Service
	consultations *appconsult.Service
	metrics       *middleware.Metrics

	health map[string]middleware.HealthChecker
	ready  map[string]middleware.HealthChecker

	closers []func()
}

type repositories struct {
	images        images.Repository
	analyses      domain.Repository
	errors        pipelineerrors.Repository
	consultations consultations.Repository
}

func openRepositories(ctx context.Context, cfg *config.Config) (*sql.DB, repositories, error) {
	switch cfg.Database.Driver {
	case "postgres":
		db, err := postgres.Connect(ctx, cfg.PostgresDSN())
		if err != nil {
			return nil, repositories{}, fmt.Errorf("postgres connect: %w", err)
		}
		return db, repositories{
			images:        postgres.NewImageRepository(db),
			analyses:      postgres.NewAnalysisRepository(db),
			errors:        postgres.NewPipelineErrorRepository(db),
			consultations: postgres.NewConsultationRepository(db),
		}, nil
	default:
		db, err := mysqlp.Connect(ctx, cfg.MySQLDSN())
		if err != nil {
			return nil, repositories{}, fmt.Errorf("mysql connect: %w", err)
		}
		return db, repositories{
			images:        mysqlp.NewImageRepository(db),
			analyses:      mysqlp.NewAnalysisRepository(db),
			errors:        mysqlp.NewPipelineErrorRepository(db),
			consultations: mysqlp.NewConsultationRepository(db),
		}, nil
	}
}

func toPolicy(p config.RetryPolicy, classify bool) retry.Policy {
	out := retry.Policy{
		MaxAttempts: p.MaxAttempts,
		BaseDelay:   p.BaseDelay,
		Backoff:     retry.Backoff(p.Backoff),
	}
	if classify {
		out.Retryable = appanalysis.Retryable
	}
	return out
}

const (
	// per attempt allowance for storage and database calls, which carry no timeout of their own
	stepAllowance = 10 * time.Second
	claimMargin   = 30 * time.Second
)

// claimTTL outlives one full analysis run: signed URL, validation and
// analysis with every retry and backoff, then the result insert.
func claimTTL(aiTimeout time.Duration, p appanalysis.Policies) time.Duration {
	return p.Storage.Budget(stepAllowance) +
		2*p.AI.Budget(aiTimeout) +
		p.Database.Budget(stepAllowance) +
		claimMargin
}

func buildApp(ctx context.Context, cfg *config.Config, log *logrus.Logger) (_ *app, err error) {
	a := &app{
		metrics: middleware.NewMetrics(),
		health:  map[string]middleware.HealthChecker{},
		ready:   map[string]middleware.HealthChecker{},
	}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	// record store
	db, repos, err := openRepositories(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, func() { db.Close() })
	dbCheck := &middleware.DatabaseHealthChecker{DB: db}
	a.health["database"] = dbCheck
	a.ready["database"] = dbCheck

	// object storage
	store, err := storage.New(ctx, storage.Config{
		Endpoint:  cfg.Minio.Endpoint,
		Region:    cfg.Minio.Region,
		Bucket:    cfg.Minio.BucketName,
		AccessKey: cfg.Minio.AccessKey,
		SecretKey: cfg.Minio.SecretKey,
		UseSSL:    cfg.Minio.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("minio init: %w", err)
	}
	a.health["storage"] = store
	a.ready["storage"] = store

	// analysis claims
	var locks appanalysis.Claimer
	if cfg.Redis.URL != "" {
		rs, err := idempotency.NewRedisStore(ctx, cfg.Redis.URL)
		if err != nil {
			return nil, fmt.Errorf("redis init: %w", err)
		}
		a.closers = append(a.closers, func() { rs.Close() })
		a.health["redis"] = rs
		locks = rs
	} else {
		log.Info("redis not configured, using in-process analysis claims")
		locks = idempotency.NewMemoryStore(4096, time.Hour)
	}

	// consultation fan-out
	var broker consultations.Broker
	if cfg.NATS.URL != "" {
		nb, err := messaging.NewNATSBroker(cfg.NATS.URL, cfg.NATS.SubjectPrefix, messaging.NATSOptions{}, log)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, nb.Close)
		a.health["nats"] = nb
		broker = nb
	} else {
		log.Info("nats not configured, using in-process consultation broker")
		broker = messaging.NewLocalBroker()
	}

	aiClient := openai.NewClient(openai.Config{
		BaseURL:         cfg.AI.BaseURL,
		APIKey:          cfg.AI.APIKey,
		ValidationModel: cfg.AI.ValidationModel,
		AnalysisModel:   cfg.AI.AnalysisModel,
		Timeout:         cfg.AI.Timeout,
	})
	aiClient.Usage = a.metrics.TokenUsage

	classify := cfg.Retry.ClassifyErrors
	policies := appanalysis.Policies{
		Storage:  toPolicy(cfg.Retry.Storage, classify),
		Database: toPolicy(cfg.Retry.Database, classify),
		AI:       toPolicy(cfg.Retry.AI, classify),
	}

	a.analysis = &appanalysis.Service{
		Images:   repos.images,
		Analyses: repos.analyses,
		Errors:   repos.errors,
		Store:    store,
		AI:       aiClient,
		Locks:    locks,
		Clock:    application.SystemClock{},
		Log:      log,
		Metrics:  a.metrics,
		Breakers: retry.NewBreakers(retry.BreakerConfig{
			Enabled:      cfg.AI.Breaker.Enabled,
			MinRequests:  cfg.AI.Breaker.MinRequests,
			FailureRatio: cfg.AI.Breaker.FailureRatio,
			OpenTimeout:  cfg.AI.Breaker.OpenTimeout,
		}, log),
		Policies:     policies,
		SignedURLTTL: cfg.Minio.SignedURLTTL,
		ClaimTTL:     claimTTL(cfg.AI.Timeout, policies),
		MaxBytes:     cfg.Upload.MaxBytes,
	}

	a.consultations = &appconsult.Service{
		Repo:   repos.consultations,
		Broker: broker,
		CheckAnalysis: func(ctx context.Context, userID, analysisID string) error {
			_, err := a.analysis.GetAnalysis(ctx, userID, domain.ResultID(analysisID))
			return err
		},
		Clock: application.SystemClock{},
		Log:   log,
	}

	return a, nil
}

// Close releases resources in reverse order of creation.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
