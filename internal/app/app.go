// Package app assembles repositories, services and the background queue from configuration.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/arnoma/tutor-admin-api/internal/repository"
	"github.com/arnoma/tutor-admin-api/internal/service"
	"github.com/arnoma/tutor-admin-api/pkg/cache"
	"github.com/arnoma/tutor-admin-api/pkg/config"
	"github.com/arnoma/tutor-admin-api/pkg/database"
	"github.com/arnoma/tutor-admin-api/pkg/jobs"
	"github.com/arnoma/tutor-admin-api/pkg/storage"
)

const queueName = "background"

// App holds the wired services of one process.
type App struct {
	Config *config.Config
	Logger *zap.Logger
	DB     *sqlx.DB
	Redis  *redis.Client

	Metrics        *service.MetricsService
	Cache          *service.CacheService
	Students       *service.StudentService
	Payments       *service.PaymentService
	Reconciliation *service.ReconciliationService
	Notes          *service.NoteAccessService
	Linker         *service.PaymentLinkService
	Exports        *service.ExportService
	Reports        *service.ReportService

	Queue *jobs.Queue
	Mux   *jobs.Mux
}

// New connects to Postgres and Redis and builds every service. A Redis outage only
// disables the read cache.
func New(cfg *config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	var redisClient *redis.Client
	if cfg.Reconcile.CacheEnabled {
		redisClient, err = cache.NewRedis(cfg.Redis)
		if err != nil {
			logger.Warn("redis unavailable, reconciliation cache disabled", zap.Error(err))
			redisClient = nil
		}
	}

	a, err := Build(cfg, logger, db, redisClient)
	if err != nil {
		_ = db.Close()
		if redisClient != nil {
			_ = redisClient.Close()
		}
		return nil, err
	}
	return a, nil
}

// Build wires services over already opened connections. redisClient may be nil.
func Build(cfg *config.Config, logger *zap.Logger, db *sqlx.DB, redisClient *redis.Client) (*App, error) {
	validate := validator.New()
	metrics := service.NewMetricsService()

	var cacheRepo service.CacheRepository
	if redisClient != nil {
		cacheRepo = repository.NewCacheRepository(redisClient, logger)
	}
	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.Reconcile.CacheTTL, logger, cfg.Reconcile.CacheEnabled)

	studentRepo := repository.NewStudentRepository(db)
	paymentRepo := repository.NewPaymentRepository(db)
	groupRepo := repository.NewGroupRepository(db)
	markerRepo := repository.NewClassMarkerRepository(db)
	noteRepo := repository.NewNoteRepository(db)
	reportRepo := repository.NewReportRepository(db)

	reconciliation := service.NewReconciliationService(studentRepo, paymentRepo, groupRepo, markerRepo, cacheSvc, metrics, validate, logger, service.ReconciliationConfig{
		Location:              cfg.Reconcile.Location(),
		CacheTTL:              cfg.Reconcile.CacheTTL,
		DefaultPricePerClass:  cfg.Reconcile.DefaultPricePerClass,
		WarnDuplicatePayments: cfg.Reconcile.DuplicatePaymentsWarn,
	})

	reportStore, err := storage.NewLocalStorage(cfg.Reports.StorageDir)
	if err != nil {
		return nil, fmt.Errorf("report storage: %w", err)
	}
	noteStore, err := storage.NewLocalStorage(cfg.Notes.StorageDir)
	if err != nil {
		return nil, fmt.Errorf("note storage: %w", err)
	}
	reportSigner := storage.NewSignedURLSigner(cfg.Reports.SignedURLSecret, cfg.Reports.SignedURLTTL)
	noteSigner := storage.NewSignedURLSigner(cfg.Notes.SignedURLSecret, cfg.Notes.SignedURLTTL)

	exports := service.NewExportService(studentRepo, paymentRepo, reconciliation, reportStore, reportSigner, metrics, service.ExportConfig{
		APIPrefix: cfg.APIPrefix,
		ResultTTL: cfg.Reports.SignedURLTTL,
	}, logger)
	linker := service.NewPaymentLinkService(paymentRepo, studentRepo, cacheSvc, metrics, logger)

	worker := service.NewReportWorker(reportRepo, exports, cfg.Reports.WorkerRetries, logger)
	mux := jobs.NewMux(worker.Handle)
	queue := jobs.NewQueue(queueName, mux.Dispatch, jobs.QueueConfig{
		Workers:    cfg.Reports.WorkerConcurrency,
		MaxRetries: cfg.Reports.WorkerRetries,
		RetryDelay: 2 * time.Second,
		Logger:     logger,
	})
	reports := service.NewReportService(reportRepo, queue, exports, validate, logger, service.ReportServiceConfig{
		ResultTTL:       cfg.Reports.SignedURLTTL,
		CleanupInterval: cfg.Reports.CleanupInterval,
	})

	if err := metrics.RegisterQueue(queueName, queue.Stats); err != nil {
		return nil, err
	}

	autoLinkTimeout := cfg.Cron.AutoLinkTimeout
	mux.Handle(jobs.TypeAutoLink, func(ctx context.Context, _ jobs.Job) error {
		ctx, cancel := context.WithTimeout(ctx, autoLinkTimeout)
		defer cancel()
		_, err := linker.AutoLink(ctx)
		return err
	})
	mux.Handle(jobs.TypeExportCleanup, func(ctx context.Context, _ jobs.Job) error {
		removed := reports.CleanupExpired(ctx)
		logger.Info("expired exports removed", zap.Int("count", removed))
		return nil
	})

	return &App{
		Config:         cfg,
		Logger:         logger,
		DB:             db,
		Redis:          redisClient,
		Metrics:        metrics,
		Cache:          cacheSvc,
		Students:       service.NewStudentService(studentRepo, cacheSvc, validate, logger),
		Payments:       service.NewPaymentService(paymentRepo, studentRepo, cacheSvc, validate, logger),
		Reconciliation: reconciliation,
		Notes:          service.NewNoteAccessService(noteRepo, reconciliation, noteStore, noteSigner, metrics, cfg.APIPrefix, logger),
		Linker:         linker,
		Exports:        exports,
		Reports:        reports,
		Queue:          queue,
		Mux:            mux,
	}, nil
}

// ReadinessChecks returns the dependency probes used by /ready.
func (a *App) ReadinessChecks() map[string]func(ctx context.Context) error {
	checks := map[string]func(ctx context.Context) error{
		"postgres": func(ctx context.Context) error { return a.DB.PingContext(ctx) },
		"queue":    func(context.Context) error { return a.Queue.Healthy() },
	}
	if a.Redis != nil {
		checks["redis"] = func(ctx context.Context) error { return a.Redis.Ping(ctx).Err() }
	}
	return checks
}

// Close stops the queue and releases connections.
func (a *App) Close() {
	a.Queue.Stop()
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			a.Logger.Warn("close redis", zap.Error(err))
		}
	}
	if err := a.DB.Close(); err != nil {
		a.Logger.Warn("close postgres", zap.Error(err))
	}
}
