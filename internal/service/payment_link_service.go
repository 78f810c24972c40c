package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/arnoma/tutor-admin-api/internal/dto"
	"github.com/arnoma/tutor-admin-api/internal/ingest"
	"github.com/arnoma/tutor-admin-api/internal/models"
	appErrors "github.com/arnoma/tutor-admin-api/pkg/errors"
)

// Auto-link outcomes.
const (
	AutoLinkLinked    = "linked"
	AutoLinkUnmatched = "unmatched"
	AutoLinkAmbiguous = "ambiguous"
	AutoLinkFailed    = "failed"
)

const autoLinkBatch = 500

type unlinkedPaymentStore interface {
	ListUnlinked(ctx context.Context, limit int) ([]models.Payment, error)
	LinkStudent(ctx context.Context, id, studentID string) (bool, error)
}

// PaymentLinkService attaches unlinked payments to students by payer name.
type PaymentLinkService struct {
	payments unlinkedPaymentStore
	students rosterSource
	cache    *CacheService
	metrics  *MetricsService
	logger   *zap.Logger
}

// NewPaymentLinkService constructs the service.
func NewPaymentLinkService(payments unlinkedPaymentStore, students rosterSource, cache *CacheService, metrics *MetricsService, logger *zap.Logger) *PaymentLinkService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PaymentLinkService{payments: payments, students: students, cache: cache, metrics: metrics, logger: logger}
}

// AutoLink links every unlinked payment whose payer name matches exactly one active
// student, by name or alias. Ambiguous and unmatched payments stay unlinked.
func (s *PaymentLinkService) AutoLink(ctx context.Context) (*dto.AutoLinkResult, error) {
	payments, err := s.payments.ListUnlinked(ctx, autoLinkBatch)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list unlinked payments")
	}
	students, err := s.students.ListActive(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list students")
	}
	candidates := buildLinkCandidates(students)

	result := &dto.AutoLinkResult{Scanned: len(payments), Links: map[string]string{}}
	for _, p := range payments {
		matches := matchPayer(p.PayerName, candidates)
		if len(matches) == 0 {
			result.Unmatched++
			continue
		}
		if len(matches) > 1 {
			result.Ambiguous++
			s.logger.Debug("ambiguous payer name", zap.String("payment_id", p.ID), zap.Int("candidates", len(matches)))
			continue
		}

		studentID := matches[0]
		linked, err := s.payments.LinkStudent(ctx, p.ID, studentID)
		if err != nil {
			result.Failed++
			s.logger.Warn("link payment failed", zap.String("payment_id", p.ID), zap.Error(err))
			continue
		}
		if !linked {
			// linked concurrently by someone else
			continue
		}
		result.Linked++
		result.Links[p.ID] = studentID
		_ = s.cache.InvalidateStudent(ctx, studentID)
	}

	s.metrics.RecordAutoLink(AutoLinkLinked, result.Linked)
	s.metrics.RecordAutoLink(AutoLinkUnmatched, result.Unmatched)
	s.metrics.RecordAutoLink(AutoLinkAmbiguous, result.Ambiguous)
	s.metrics.RecordAutoLink(AutoLinkFailed, result.Failed)
	s.logger.Info("auto-link finished",
		zap.Int("scanned", result.Scanned),
		zap.Int("linked", result.Linked),
		zap.Int("unmatched", result.Unmatched),
		zap.Int("ambiguous", result.Ambiguous),
		zap.Int("failed", result.Failed))
	return result, nil
}

type linkCandidate struct {
	studentID string
	names     []string
}

func buildLinkCandidates(students []models.Student) []linkCandidate {
	out := make([]linkCandidate, 0, len(students))
	for _, st := range students {
		names := []string{st.Name}
		if st.Aliases != nil {
			names = append(names, ingest.ParseAliases(*st.Aliases)...)
		}
		out = append(out, linkCandidate{studentID: st.ID, names: names})
	}
	return out
}

// matchPayer returns the ids of the distinct students any of whose names match payer.
func matchPayer(payer string, candidates []linkCandidate) []string {
	var ids []string
	for _, c := range candidates {
		for _, name := range c.names {
			if ingest.NamesMatch(payer, name) {
				ids = append(ids, c.studentID)
				break
			}
		}
	}
	return ids
}
