package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/arnoma/tutor-admin-api/internal/models"
	appErrors "github.com/arnoma/tutor-admin-api/pkg/errors"
)

type paymentRepository interface {
	List(ctx context.Context, filter models.PaymentFilter) ([]models.Payment, int, error)
	FindByID(ctx context.Context, id string) (*models.Payment, error)
	Create(ctx context.Context, payment *models.Payment) error
	UpdateStatus(ctx context.Context, id string, status models.PaymentStatus) error
	Delete(ctx context.Context, id string) error
}

type studentLookup interface {
	FindByID(ctx context.Context, id string) (*models.Student, error)
}

// RecordPaymentRequest is the payload for recording a received payment.
type RecordPaymentRequest struct {
	StudentID string          `json:"student_id" validate:"omitempty,max=64"`
	PayerName string          `json:"payer_name" validate:"required,max=200"`
	Amount    decimal.Decimal `json:"amount"`
	Date      string          `json:"date" validate:"required,datetime=2006-01-02"`
	ForClass  string          `json:"for_class" validate:"omitempty,datetime=2006-01-02"`
	Time      string          `json:"time" validate:"max=32"`
	Status    string          `json:"status" validate:"omitempty,oneof=paid pending cancelled absent"`
	Note      string          `json:"note" validate:"max=500"`
}

// UpdatePaymentStatusRequest changes the lifecycle status of a payment.
type UpdatePaymentStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=paid pending cancelled absent"`
}

// PaymentService records payments and keeps cached reconciliation in step with them.
type PaymentService struct {
	repo      paymentRepository
	students  studentLookup
	cache     *CacheService
	validator *validator.Validate
	logger    *zap.Logger
}

// NewPaymentService constructs the payment service.
func NewPaymentService(repo paymentRepository, students studentLookup, cache *CacheService, validate *validator.Validate, logger *zap.Logger) *PaymentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PaymentService{repo: repo, students: students, cache: cache, validator: validate, logger: logger}
}

// List returns payments and pagination metadata.
func (s *PaymentService) List(ctx context.Context, filter models.PaymentFilter) ([]models.Payment, *models.Pagination, error) {
	payments, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list payments")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 50
	}
	return payments, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Record stores a payment. An empty status is stored as paid.
func (s *PaymentService) Record(ctx context.Context, req RecordPaymentRequest) (*models.Payment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payment payload")
	}
	if req.Amount.IsNegative() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "amount must not be negative")
	}
	payment := &models.Payment{
		PayerName: strings.TrimSpace(req.PayerName),
		Amount:    req.Amount,
		Status:    models.PaymentStatus(strings.ToLower(req.Status)),
		Time:      optionalString(strings.TrimSpace(req.Time)),
		Note:      optionalString(strings.TrimSpace(req.Note)),
	}
	if payment.Status == "" {
		payment.Status = models.PaymentStatusPaid
	}
	date, err := time.Parse("2006-01-02", req.Date)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrInvalidDate, "")
	}
	payment.Date = date
	if req.ForClass != "" {
		forClass, err := time.Parse("2006-01-02", req.ForClass)
		if err != nil {
			return nil, appErrors.Clone(appErrors.ErrInvalidDate, "for_class must be formatted as YYYY-MM-DD")
		}
		payment.ForClass = &forClass
	}
	if req.StudentID != "" {
		if _, err := s.students.FindByID(ctx, req.StudentID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
		}
		payment.StudentID = &req.StudentID
	}

	if err := s.repo.Create(ctx, payment); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record payment")
	}
	s.invalidate(ctx, payment)
	s.logger.Info("payment recorded", zap.String("payment_id", payment.ID), zap.String("amount", payment.Amount.StringFixed(2)))
	return payment, nil
}

// UpdateStatus changes the status of a payment, e.g. to cancelled.
func (s *PaymentService) UpdateStatus(ctx context.Context, id string, req UpdatePaymentStatusRequest) (*models.Payment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid status")
	}
	payment, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	status := models.PaymentStatus(req.Status)
	if err := s.repo.UpdateStatus(ctx, id, status); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update payment")
	}
	payment.Status = status
	s.invalidate(ctx, payment)
	return payment, nil
}

// Delete removes a payment.
func (s *PaymentService) Delete(ctx context.Context, id string) error {
	payment, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete payment")
	}
	s.invalidate(ctx, payment)
	return nil
}

func (s *PaymentService) load(ctx context.Context, id string) (*models.Payment, error) {
	payment, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "payment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load payment")
	}
	return payment, nil
}

func (s *PaymentService) invalidate(ctx context.Context, payment *models.Payment) {
	if payment.StudentID == nil {
		return
	}
	_ = s.cache.InvalidateStudent(ctx, *payment.StudentID)
}
