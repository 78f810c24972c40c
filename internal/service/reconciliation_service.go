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

	"github.com/arnoma/tutor-admin-api/internal/dto"
	"github.com/arnoma/tutor-admin-api/internal/ingest"
	"github.com/arnoma/tutor-admin-api/internal/models"
	"github.com/arnoma/tutor-admin-api/internal/reconcile"
	appErrors "github.com/arnoma/tutor-admin-api/pkg/errors"
)

type ledgerPaymentReader interface {
	ListByStudent(ctx context.Context, studentID string) ([]models.Payment, error)
}

type groupReader interface {
	FindByName(ctx context.Context, name string) (*models.Group, error)
	ListSessions(ctx context.Context, name string, from, to *time.Time) ([]models.GroupSession, error)
}

type markerStore interface {
	ListForStudent(ctx context.Context, studentID, groupName string) ([]models.ClassMarker, error)
	Create(ctx context.Context, marker *models.ClassMarker) error
}

// ReconciliationConfig tunes the reconciliation service.
type ReconciliationConfig struct {
	Location              *time.Location
	CacheTTL              time.Duration
	DefaultPricePerClass  decimal.Decimal
	WarnDuplicatePayments bool
}

// Ledger bundles the engine inputs of one student.
type Ledger struct {
	Student  models.Student
	Account  *reconcile.Account
	Schedule reconcile.Schedule
	Skips    map[reconcile.Date]reconcile.SkipMarker
}

// ReconciliationService loads a student's data and runs the reconciliation engine on it.
type ReconciliationService struct {
	students  studentLookup
	payments  ledgerPaymentReader
	groups    groupReader
	markers   markerStore
	cache     *CacheService
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	cfg       ReconciliationConfig
	now       func() time.Time
}

// NewReconciliationService constructs the service.
func NewReconciliationService(students studentLookup, payments ledgerPaymentReader, groups groupReader, markers markerStore, cache *CacheService, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger, cfg ReconciliationConfig) *ReconciliationService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &ReconciliationService{
		students:  students,
		payments:  payments,
		groups:    groups,
		markers:   markers,
		cache:     cache,
		metrics:   metrics,
		validator: validate,
		logger:    logger,
		cfg:       cfg,
		now:       time.Now,
	}
}

// Today is the current civil date in the configured timezone.
func (s *ReconciliationService) Today() reconcile.Date {
	return reconcile.DateOf(s.now().In(s.cfg.Location))
}

// Location is the timezone note posting times are read in.
func (s *ReconciliationService) Location() *time.Location {
	return s.cfg.Location
}

// MonthCalendar classifies every class date of a month. month is YYYY-MM.
func (s *ReconciliationService) MonthCalendar(ctx context.Context, studentID, month string) (*dto.MonthCalendar, bool, error) {
	first, err := time.Parse("2006-01", strings.TrimSpace(month))
	if err != nil {
		return nil, false, appErrors.Clone(appErrors.ErrInvalidMonth, "")
	}
	today := s.Today()
	key := ReconcileKey(studentID, "calendar", first.Format("2006-01"), today.String())
	cal, hit, err := Remember(ctx, s.cache, key, s.cfg.CacheTTL, func() (*dto.MonthCalendar, error) {
		ledger, err := s.LoadLedger(ctx, studentID)
		if err != nil {
			return nil, err
		}
		days := reconcile.ClassifyMonth(ledger.Account, ledger.Schedule, ledger.Skips, first.Year(), first.Month(), today)
		counts := make(map[reconcile.Status]int)
		for _, d := range days {
			counts[d.Status]++
			s.metrics.RecordClassification(string(d.Status))
		}
		return &dto.MonthCalendar{StudentID: studentID, Month: first.Format("2006-01"), Days: days, Counts: counts}, nil
	})
	return cal, hit, err
}

// ClassStatus classifies a single date, scheduled or not.
func (s *ReconciliationService) ClassStatus(ctx context.Context, studentID, date string) (*dto.ClassStatusResponse, error) {
	classDate, err := reconcile.ParseDate(date)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrInvalidDate, "")
	}
	ledger, err := s.LoadLedger(ctx, studentID)
	if err != nil {
		return nil, err
	}
	var skip *reconcile.SkipMarker
	if marker, ok := ledger.Skips[classDate]; ok {
		skip = &marker
	}
	status := reconcile.Classify(ledger.Account, classDate, skip, s.Today())
	if status == nil {
		return nil, appErrors.Clone(appErrors.ErrInvalidDate, "date cannot be classified")
	}
	s.metrics.RecordClassification(string(status.Status))
	return &dto.ClassStatusResponse{
		StudentID:       studentID,
		Scheduled:       ledger.Schedule.HasClassOn(classDate),
		ClassDateStatus: *status,
	}, nil
}

// Balance aggregates every past class of the student into unpaid totals.
func (s *ReconciliationService) Balance(ctx context.Context, studentID string) (*dto.BalanceResponse, bool, error) {
	today := s.Today()
	key := ReconcileKey(studentID, "balance", today.String())
	return Remember(ctx, s.cache, key, s.cfg.CacheTTL, func() (*dto.BalanceResponse, error) {
		ledger, err := s.LoadLedger(ctx, studentID)
		if err != nil {
			return nil, err
		}
		return s.BalanceFor(ledger, today), nil
	})
}

// BalanceFor runs the aggregate on an already loaded ledger.
func (s *ReconciliationService) BalanceFor(ledger *Ledger, today reconcile.Date) *dto.BalanceResponse {
	unpaid := reconcile.AggregateUnpaid(ledger.Account, ledger.Schedule, ledger.Skips, today)
	return &dto.BalanceResponse{
		StudentID: ledger.Student.ID,
		AsOf:      today,
		Unpaid:    unpaid,
		Summary:   reconcile.Summarize(ledger.Account, unpaid),
	}
}

// AddMarker flags a class date for the student and drops cached results.
func (s *ReconciliationService) AddMarker(ctx context.Context, studentID string, req dto.MarkerRequest) (*models.ClassMarker, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid marker payload")
	}
	date, err := time.Parse("2006-01-02", req.Date)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrInvalidDate, "")
	}
	if _, err := s.loadStudent(ctx, studentID); err != nil {
		return nil, err
	}
	marker := &models.ClassMarker{
		StudentID: &studentID,
		Date:      date,
		Kind:      models.MarkerKind(req.Kind),
		Note:      optionalString(strings.TrimSpace(req.Note)),
	}
	if marker.Kind == models.MarkerSkip {
		marker.SkipType = optionalString(req.SkipType)
	}
	if err := s.markers.Create(ctx, marker); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save marker")
	}
	_ = s.cache.InvalidateStudent(ctx, studentID)
	return marker, nil
}

// LoadLedger reads the student and converts its rows into engine inputs.
func (s *ReconciliationService) LoadLedger(ctx context.Context, studentID string) (*Ledger, error) {
	student, err := s.loadStudent(ctx, studentID)
	if err != nil {
		return nil, err
	}
	return s.LedgerFor(ctx, student)
}

// LedgerFor converts an already loaded student into engine inputs.
func (s *ReconciliationService) LedgerFor(ctx context.Context, student *models.Student) (*Ledger, error) {
	groupName := ""
	if student.GroupLetter != nil {
		groupName = ingest.CanonicalizeGroupCode(*student.GroupLetter)
	}

	schedule, err := s.schedule(ctx, student, groupName)
	if err != nil {
		return nil, err
	}

	payments, err := s.payments.ListByStudent(ctx, student.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load payments")
	}
	markers, err := s.markers.ListForStudent(ctx, student.ID, groupName)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class markers")
	}

	price := student.PricePerClass
	if price.IsZero() {
		price = s.cfg.DefaultPricePerClass
	}
	acct := &reconcile.Account{
		StudentID:     student.ID,
		PricePerClass: price,
		Balance:       student.Balance,
		Payments:      toPaymentRecords(payments),
	}
	if student.StartDate != nil {
		start := reconcile.DateOf(*student.StartDate)
		acct.StartDate = &start
	}

	skips := make(map[reconcile.Date]reconcile.SkipMarker)
	for _, m := range markers {
		d := reconcile.DateOf(m.Date)
		switch m.Kind {
		case models.MarkerAbsence:
			acct.Absences = append(acct.Absences, d)
		case models.MarkerCredit:
			acct.CreditDates = append(acct.CreditDates, d)
		case models.MarkerSkip:
			marker := reconcile.SkipMarker{Type: "skipped"}
			if m.SkipType != nil && *m.SkipType != "" {
				marker.Type = *m.SkipType
			}
			if m.Note != nil {
				marker.Note = *m.Note
			}
			skips[d] = marker
		}
	}

	if s.cfg.WarnDuplicatePayments {
		s.warnDuplicates(student.ID, payments)
	}
	return &Ledger{Student: *student, Account: acct, Schedule: schedule, Skips: skips}, nil
}

func (s *ReconciliationService) schedule(ctx context.Context, student *models.Student, groupName string) (reconcile.Schedule, error) {
	var out reconcile.Schedule
	if student.Schedule != nil {
		out.WeeklyDays = ingest.WeeklyDays(ingest.ParseSessions(*student.Schedule))
	}
	if student.StartDate != nil {
		start := reconcile.DateOf(*student.StartDate)
		out.StartDate = &start
	}
	if groupName == "" {
		return out, nil
	}

	group, err := s.groups.FindByName(ctx, groupName)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		s.logger.Debug("group not found", zap.String("student_id", student.ID), zap.String("group", groupName))
	case err != nil:
		return out, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load group")
	default:
		if len(out.WeeklyDays) == 0 {
			days, err := ingest.ParseGroupSchedule(group.Schedule)
			if err != nil {
				s.logger.Warn("unreadable group schedule", zap.String("group", groupName), zap.Error(err))
			}
			out.WeeklyDays = days
		}
		if out.StartDate == nil && group.StartDate != nil {
			start := reconcile.DateOf(*group.StartDate)
			out.StartDate = &start
		}
	}

	sessions, err := s.groups.ListSessions(ctx, groupName, nil, nil)
	if err != nil {
		return out, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load group sessions")
	}
	for _, session := range sessions {
		out.OneTimeDates = append(out.OneTimeDates, reconcile.DateOf(session.Date))
	}
	return out, nil
}

func (s *ReconciliationService) loadStudent(ctx context.Context, id string) (*models.Student, error) {
	student, err := s.students.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	return student, nil
}

// warnDuplicates logs counting payments recorded against the same class date.
// The engine takes the first one; the rest are a data quality problem, not an error.
func (s *ReconciliationService) warnDuplicates(studentID string, payments []models.Payment) {
	seen := make(map[string]int)
	for _, p := range payments {
		if p.ForClass == nil || !(reconcile.PaymentRecord{Status: reconcile.PaymentStatus(p.Status)}).Counts() {
			continue
		}
		seen[p.ForClass.Format("2006-01-02")]++
	}
	for date, n := range seen {
		if n > 1 {
			s.logger.Warn("duplicate payments for class date",
				zap.String("student_id", studentID),
				zap.String("class_date", date),
				zap.Int("count", n))
		}
	}
}

func toPaymentRecords(payments []models.Payment) []reconcile.PaymentRecord {
	records := make([]reconcile.PaymentRecord, 0, len(payments))
	for _, p := range payments {
		record := reconcile.PaymentRecord{
			ID:      p.ID,
			DateStr: p.MatchDate().Format("2006-01-02"),
			Amount:  p.Amount,
			Status:  reconcile.PaymentStatus(p.Status),
		}
		if p.Time != nil {
			record.TimeStr = *p.Time
		}
		records = append(records, record)
	}
	return records
}
