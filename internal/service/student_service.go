package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/arnoma/tutor-admin-api/internal/dto"
	"github.com/arnoma/tutor-admin-api/internal/ingest"
	"github.com/arnoma/tutor-admin-api/internal/models"
	appErrors "github.com/arnoma/tutor-admin-api/pkg/errors"
)

type studentRepository interface {
	List(ctx context.Context, filter models.StudentFilter) ([]models.Student, int, error)
	FindByID(ctx context.Context, id string) (*models.Student, error)
	ExistsByEmail(ctx context.Context, email string, excludeID string) (bool, error)
	Create(ctx context.Context, student *models.Student) error
	Update(ctx context.Context, student *models.Student) error
	Deactivate(ctx context.Context, id string) error
}

// StudentRequest holds the payload for creating or updating students.
type StudentRequest struct {
	Name          string          `json:"name" validate:"required,max=200"`
	Email         string          `json:"email" validate:"omitempty,email"`
	GroupLetter   string          `json:"group_letter" validate:"max=32"`
	Aliases       []string        `json:"aliases" validate:"max=20,dive,max=200"`
	Schedule      string          `json:"schedule" validate:"max=500"`
	PricePerClass decimal.Decimal `json:"price_per_class"`
	StartDate     string          `json:"start_date" validate:"omitempty,datetime=2006-01-02"`
	Active        *bool           `json:"active"`
}

// StudentService handles roster use-cases.
type StudentService struct {
	repo      studentRepository
	cache     *CacheService
	validator *validator.Validate
	logger    *zap.Logger
}

// NewStudentService constructs the student service.
func NewStudentService(repo studentRepository, cache *CacheService, validate *validator.Validate, logger *zap.Logger) *StudentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StudentService{repo: repo, cache: cache, validator: validate, logger: logger}
}

// List returns students and pagination metadata.
func (s *StudentService) List(ctx context.Context, filter models.StudentFilter) ([]dto.StudentView, *models.Pagination, error) {
	if filter.GroupLetter != "" {
		filter.GroupLetter = ingest.CanonicalizeGroupCode(filter.GroupLetter)
	}
	students, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list students")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	views := make([]dto.StudentView, 0, len(students))
	for _, st := range students {
		views = append(views, dto.NewStudentView(st))
	}
	return views, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Get returns a student with decoded schedule and aliases.
func (s *StudentService) Get(ctx context.Context, id string) (*dto.StudentView, error) {
	student, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	view := dto.NewStudentView(*student)
	return &view, nil
}

// Create registers a new student.
func (s *StudentService) Create(ctx context.Context, req StudentRequest) (*dto.StudentView, error) {
	if err := s.validate(req); err != nil {
		return nil, err
	}
	if err := s.ensureEmailFree(ctx, req.Email, ""); err != nil {
		return nil, err
	}
	student := &models.Student{Active: true, Balance: decimal.Zero}
	if err := applyStudentRequest(student, req); err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, student); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create student")
	}
	s.logger.Info("student created", zap.String("student_id", student.ID))
	view := dto.NewStudentView(*student)
	return &view, nil
}

// Update modifies an existing student record and drops its cached reconciliation.
func (s *StudentService) Update(ctx context.Context, id string, req StudentRequest) (*dto.StudentView, error) {
	if err := s.validate(req); err != nil {
		return nil, err
	}
	student, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.ensureEmailFree(ctx, req.Email, id); err != nil {
		return nil, err
	}
	if err := applyStudentRequest(student, req); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, student); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update student")
	}
	_ = s.cache.InvalidateStudent(ctx, id)
	view := dto.NewStudentView(*student)
	return &view, nil
}

// Deactivate marks student inactive.
func (s *StudentService) Deactivate(ctx context.Context, id string) error {
	if _, err := s.load(ctx, id); err != nil {
		return err
	}
	if err := s.repo.Deactivate(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to deactivate student")
	}
	_ = s.cache.InvalidateStudent(ctx, id)
	return nil
}

func (s *StudentService) load(ctx context.Context, id string) (*models.Student, error) {
	student, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	return student, nil
}

func (s *StudentService) validate(req StudentRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid student payload")
	}
	if req.PricePerClass.IsNegative() {
		return appErrors.Clone(appErrors.ErrValidation, "price_per_class must not be negative")
	}
	if strings.TrimSpace(req.Schedule) != "" && len(ingest.ParseSessions(req.Schedule)) == 0 {
		return appErrors.Clone(appErrors.ErrValidation, "schedule has no recognisable sessions")
	}
	return nil
}

func (s *StudentService) ensureEmailFree(ctx context.Context, email, excludeID string) error {
	if email == "" {
		return nil
	}
	exists, err := s.repo.ExistsByEmail(ctx, email, excludeID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to validate email")
	}
	if exists {
		return appErrors.Clone(appErrors.ErrConflict, "email already used")
	}
	return nil
}

func applyStudentRequest(student *models.Student, req StudentRequest) error {
	student.Name = strings.TrimSpace(req.Name)
	student.Email = optionalString(strings.ToLower(strings.TrimSpace(req.Email)))
	student.GroupLetter = optionalString(ingest.CanonicalizeGroupCode(req.GroupLetter))
	student.Schedule = optionalString(strings.TrimSpace(req.Schedule))
	student.PricePerClass = req.PricePerClass
	if req.Active != nil {
		student.Active = *req.Active
	}

	student.Aliases = nil
	if aliases := ingest.ParseAliases(req.Aliases); len(aliases) > 0 {
		raw, err := json.Marshal(aliases)
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to encode aliases")
		}
		student.Aliases = optionalString(string(raw))
	}

	student.StartDate = nil
	if req.StartDate != "" {
		start, err := time.Parse("2006-01-02", req.StartDate)
		if err != nil {
			return appErrors.Clone(appErrors.ErrInvalidDate, "start_date must be formatted as YYYY-MM-DD")
		}
		student.StartDate = &start
	}
	return nil
}

func optionalString(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
