package service

import (
	"context"
	"database/sql"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/arnoma/tutor-admin-api/internal/dto"
	"github.com/arnoma/tutor-admin-api/internal/models"
	"github.com/arnoma/tutor-admin-api/internal/repository"
	appErrors "github.com/arnoma/tutor-admin-api/pkg/errors"
	"github.com/arnoma/tutor-admin-api/pkg/jobs"
	"github.com/arnoma/tutor-admin-api/pkg/storage"
)

const (
	recoverBatch = 50
	cleanupBatch = 100
)

type reportJobStore interface {
	Create(ctx context.Context, job *models.ReportJob) error
	GetByID(ctx context.Context, id string) (*models.ReportJob, error)
	Update(ctx context.Context, id string, upd repository.ReportJobUpdate) error
	ListByStatus(ctx context.Context, status models.ReportStatus, limit int) ([]models.ReportJob, error)
	ListFinishedBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.ReportJob, error)
}

type jobDispatcher interface {
	Enqueue(job jobs.Job) error
}

type exportGenerator interface {
	Generate(ctx context.Context, job *models.ReportJob) (*ExportResult, error)
}

// ReportService persists report jobs, hands them to the queue and serves their files.
type ReportService struct {
	repo      reportJobStore
	queue     jobDispatcher
	exporter  *ExportService
	validator *validator.Validate
	logger    *zap.Logger
	cfg       ReportServiceConfig
	now       func() time.Time
}

// ReportServiceConfig governs result retention and the fallback cleanup ticker.
type ReportServiceConfig struct {
	ResultTTL       time.Duration
	CleanupInterval time.Duration
}

// ReportDownload is an opened report file ready to stream.
type ReportDownload struct {
	File      *os.File
	Filename  string
	Format    models.ReportFormat
	ExpiresAt time.Time
}

// NewReportService constructs the report service.
func NewReportService(repo reportJobStore, queue jobDispatcher, exporter *ExportService, validate *validator.Validate, logger *zap.Logger, cfg ReportServiceConfig) *ReportService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = 24 * time.Hour
	}
	return &ReportService{
		repo:      repo,
		queue:     queue,
		exporter:  exporter,
		validator: validate,
		logger:    logger.Named("reports"),
		cfg:       cfg,
		now:       time.Now,
	}
}

// CreateJob records a QUEUED job and enqueues it. source is "api" or "cli".
// A job the queue refuses is marked FAILED before the error is returned.
func (s *ReportService) CreateJob(ctx context.Context, req dto.ReportRequest, source string) (*dto.ReportJobResponse, error) {
	if err := s.validateRequest(req); err != nil {
		return nil, err
	}
	job := &models.ReportJob{
		Type: req.Type,
		Params: models.ReportJobParams{
			Format:      req.Format,
			GroupLetter: req.GroupLetter,
			AsOf:        req.AsOf,
			Extras:      req.Filters,
		},
		Status:    models.ReportStatusQueued,
		CreatedBy: source,
	}
	if err := s.repo.Create(ctx, job); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create report job")
	}
	if err := s.queue.Enqueue(jobs.Job{ID: job.ID, Type: string(job.Type), Key: job.ID}); err != nil {
		if updErr := s.repo.Update(ctx, job.ID, failedUpdate("failed to enqueue job", s.now())); updErr != nil {
			s.logger.Warn("mark unqueued job failed", zap.String("job_id", job.ID), zap.Error(updErr))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to enqueue report job")
	}
	s.logger.Info("report job queued",
		zap.String("job_id", job.ID),
		zap.String("type", string(job.Type)),
		zap.String("format", string(job.Params.Format)),
		zap.String("source", source),
	)
	return &dto.ReportJobResponse{ID: job.ID, Status: job.Status, Progress: job.Progress}, nil
}

// GetStatus returns the progress of a job and, once finished, its download URL.
func (s *ReportService) GetStatus(ctx context.Context, id string) (*dto.ReportStatusResponse, error) {
	job, err := s.loadJob(ctx, id)
	if err != nil {
		return nil, err
	}
	resp := &dto.ReportStatusResponse{
		ID:        job.ID,
		Type:      job.Type,
		Status:    job.Status,
		Progress:  job.Progress,
		ResultURL: job.ResultURL,
	}
	if job.ErrorMessage != nil && *job.ErrorMessage != "" {
		resp.Error = job.ErrorMessage
	}
	return resp, nil
}

// ResolveDownload checks a download token against its job and opens the file.
// Only the token most recently issued for a FINISHED job is accepted.
func (s *ReportService) ResolveDownload(ctx context.Context, token string) (*ReportDownload, error) {
	jobID, relPath, expiresAt, err := s.exporter.ParseToken(token, false)
	if err != nil {
		if errors.Is(err, storage.ErrTokenExpired) {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "download link expired")
		}
		return nil, appErrors.Clone(appErrors.ErrForbidden, "invalid or expired download token")
	}
	job, err := s.loadJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.Status != models.ReportStatusFinished {
		return nil, appErrors.Clone(appErrors.ErrConflict, "report not ready")
	}
	if issued := issuedToken(job); issued != token {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "token mismatch")
	}
	file, err := s.exporter.Open(relPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "report file no longer available")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open export file")
	}
	return &ReportDownload{
		File:      file,
		Filename:  filepath.Base(relPath),
		Format:    job.Params.Format,
		ExpiresAt: expiresAt,
	}, nil
}

// RecoverPendingJobs requeues jobs a previous process left QUEUED or PROCESSING
// and returns how many were handed back to the queue.
func (s *ReportService) RecoverPendingJobs(ctx context.Context) int {
	recovered := 0
	for _, status := range []models.ReportStatus{models.ReportStatusQueued, models.ReportStatusProcessing} {
		pending, err := s.repo.ListByStatus(ctx, status, recoverBatch)
		if err != nil {
			s.logger.Warn("list unfinished report jobs", zap.String("status", string(status)), zap.Error(err))
			continue
		}
		for _, job := range pending {
			if status == models.ReportStatusProcessing {
				if err := s.repo.Update(ctx, job.ID, requeueUpdate("interrupted by restart")); err != nil {
					s.logger.Warn("reset interrupted job", zap.String("job_id", job.ID), zap.Error(err))
					continue
				}
			}
			if err := s.queue.Enqueue(jobs.Job{ID: job.ID, Type: string(job.Type), Key: job.ID}); err != nil {
				s.logger.Warn("requeue report job", zap.String("job_id", job.ID), zap.Error(err))
				continue
			}
			recovered++
		}
	}
	if recovered > 0 {
		s.logger.Info("report jobs recovered", zap.Int("count", recovered))
	}
	return recovered
}

// StartCleanup runs CleanupExpired every CleanupInterval until ctx ends. It is
// the fallback when the cron scheduler is disabled.
func (s *ReportService) StartCleanup(ctx context.Context) {
	if s.cfg.CleanupInterval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(s.cfg.CleanupInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.CleanupExpired(ctx)
			}
		}
	}()
}

// CleanupExpired deletes the files of jobs finished more than ResultTTL ago, then
// sweeps any stray file older than the TTL. It returns the number of files removed.
func (s *ReportService) CleanupExpired(ctx context.Context) int {
	cutoff := s.now().Add(-s.cfg.ResultTTL)
	removed := 0
	seen := make(map[string]struct{})
	for {
		expired, err := s.repo.ListFinishedBefore(ctx, cutoff, cleanupBatch)
		if err != nil {
			s.logger.Warn("list expired report jobs", zap.Error(err))
			break
		}
		fresh := 0
		for _, job := range expired {
			if _, dup := seen[job.ID]; dup {
				continue
			}
			seen[job.ID] = struct{}{}
			fresh++
			relPath, ok := s.resultPath(job)
			if !ok {
				continue
			}
			if err := s.exporter.Delete(relPath); err != nil {
				s.logger.Warn("delete expired export", zap.String("job_id", job.ID), zap.Error(err))
				continue
			}
			removed++
		}
		if len(expired) < cleanupBatch || fresh == 0 {
			break
		}
	}
	stray, err := s.exporter.Cleanup(s.cfg.ResultTTL)
	if err != nil {
		s.logger.Warn("sweep export directory", zap.Error(err))
	}
	removed += len(stray)
	s.logger.Debug("export cleanup done", zap.Int("removed", removed), zap.Time("cutoff", cutoff))
	return removed
}

// resultPath recovers the stored file of a finished job from its download token.
func (s *ReportService) resultPath(job models.ReportJob) (string, bool) {
	token := issuedToken(&job)
	if token == "" {
		return "", false
	}
	_, relPath, _, err := s.exporter.ParseToken(token, true)
	if err != nil {
		return "", false
	}
	return relPath, true
}

func (s *ReportService) loadJob(ctx context.Context, id string) (*models.ReportJob, error) {
	job, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "report job not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load report job")
	}
	return job, nil
}

func (s *ReportService) validateRequest(req dto.ReportRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid report request")
	}
	if !req.Type.Valid() {
		return appErrors.Clone(appErrors.ErrValidation, "unsupported report type")
	}
	if !req.Format.Valid() {
		return appErrors.Clone(appErrors.ErrValidation, "unsupported report format")
	}
	return nil
}

func issuedToken(job *models.ReportJob) string {
	if job.ResultURL == nil {
		return ""
	}
	token, err := storage.TokenFromURL(*job.ResultURL)
	if err != nil {
		return ""
	}
	return token
}

func processingUpdate(progress int) repository.ReportJobUpdate {
	status := models.ReportStatusProcessing
	return repository.ReportJobUpdate{Status: &status, Progress: &progress}
}

func requeueUpdate(reason string) repository.ReportJobUpdate {
	status := models.ReportStatusQueued
	progress := 0
	return repository.ReportJobUpdate{Status: &status, Progress: &progress, ErrorMessage: &reason}
}

func failedUpdate(reason string, at time.Time) repository.ReportJobUpdate {
	status := models.ReportStatusFailed
	progress := 100
	at = at.UTC()
	return repository.ReportJobUpdate{Status: &status, Progress: &progress, ErrorMessage: &reason, FinishedAt: &at}
}

func finishedUpdate(resultURL string, at time.Time) repository.ReportJobUpdate {
	status := models.ReportStatusFinished
	progress := 100
	cleared := ""
	at = at.UTC()
	return repository.ReportJobUpdate{Status: &status, Progress: &progress, ResultURL: &resultURL, ErrorMessage: &cleared, FinishedAt: &at}
}

// ReportWorker renders queued report jobs. It is the fallback handler of the job mux.
type ReportWorker struct {
	repo       reportJobStore
	exporter   exportGenerator
	logger     *zap.Logger
	maxRetries int
	now        func() time.Time
}

// NewReportWorker constructs a worker. maxRetries must match the queue's retry budget
// so the last attempt is the one that marks a job FAILED.
func NewReportWorker(repo reportJobStore, exporter exportGenerator, maxRetries int, logger *zap.Logger) *ReportWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &ReportWorker{
		repo:       repo,
		exporter:   exporter,
		logger:     logger.Named("report_worker"),
		maxRetries: maxRetries,
		now:        time.Now,
	}
}

// Handle renders one job and records the outcome. Jobs already FINISHED or FAILED are skipped.
func (w *ReportWorker) Handle(ctx context.Context, job jobs.Job) error {
	record, err := w.repo.GetByID(ctx, job.ID)
	if err != nil {
		return err
	}
	if record.Status.Terminal() {
		w.logger.Debug("skip settled report job", zap.String("job_id", job.ID), zap.String("status", string(record.Status)))
		return nil
	}
	if err := w.repo.Update(ctx, job.ID, processingUpdate(10)); err != nil {
		return err
	}

	start := w.now()
	result, err := w.exporter.Generate(ctx, record)
	if err != nil {
		upd := requeueUpdate(err.Error())
		if job.Attempt >= w.maxRetries {
			upd = failedUpdate(err.Error(), w.now())
		}
		if updErr := w.repo.Update(ctx, job.ID, upd); updErr != nil {
			w.logger.Warn("record report failure", zap.String("job_id", job.ID), zap.Error(updErr))
		}
		w.logger.Warn("report generation failed",
			zap.String("job_id", job.ID),
			zap.Int("attempt", job.Attempt),
			zap.Error(err),
		)
		return err
	}

	if err := w.repo.Update(ctx, job.ID, finishedUpdate(result.URL, w.now())); err != nil {
		w.logger.Warn("record report result", zap.String("job_id", job.ID), zap.Error(err))
		return err
	}
	w.logger.Info("report finished",
		zap.String("job_id", job.ID),
		zap.String("type", string(record.Type)),
		zap.Duration("took", w.now().Sub(start)),
	)
	return nil
}
