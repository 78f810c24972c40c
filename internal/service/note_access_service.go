package service

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/arnoma/tutor-admin-api/internal/dto"
	"github.com/arnoma/tutor-admin-api/internal/ingest"
	"github.com/arnoma/tutor-admin-api/internal/models"
	"github.com/arnoma/tutor-admin-api/internal/reconcile"
	appErrors "github.com/arnoma/tutor-admin-api/pkg/errors"
	"github.com/arnoma/tutor-admin-api/pkg/storage"
)

type noteRepository interface {
	ListByGroup(ctx context.Context, groupName string) ([]models.Note, error)
}

type ledgerLoader interface {
	LoadLedger(ctx context.Context, studentID string) (*Ledger, error)
	Today() reconcile.Date
	Location() *time.Location
}

type noteFileStore interface {
	Open(filename string) (*os.File, error)
}

// NoteDownload is an opened note file.
type NoteDownload struct {
	File      *os.File
	Filename  string
	ExpiresAt time.Time
}

// NoteAccessService decides which group notes a student may open and signs their downloads.
type NoteAccessService struct {
	notes     noteRepository
	ledgers   ledgerLoader
	files     noteFileStore
	signer    *storage.SignedURLSigner
	metrics   *MetricsService
	logger    *zap.Logger
	apiPrefix string
}

// NewNoteAccessService constructs the service.
func NewNoteAccessService(notes noteRepository, ledgers ledgerLoader, files noteFileStore, signer *storage.SignedURLSigner, metrics *MetricsService, apiPrefix string, logger *zap.Logger) *NoteAccessService {
	if logger == nil {
		logger = zap.NewNop()
	}
	prefix := strings.TrimRight(apiPrefix, "/")
	if prefix == "" {
		prefix = "/api/v1"
	}
	return &NoteAccessService{
		notes:     notes,
		ledgers:   ledgers,
		files:     files,
		signer:    signer,
		metrics:   metrics,
		logger:    logger,
		apiPrefix: prefix,
	}
}

// ListForStudent returns every note of the student's group with its unlock decision.
// Unlocked notes that carry a file get a signed download URL.
func (s *NoteAccessService) ListForStudent(ctx context.Context, studentID string) ([]dto.NoteAccessItem, error) {
	ledger, err := s.ledgers.LoadLedger(ctx, studentID)
	if err != nil {
		return nil, err
	}
	if ledger.Student.GroupLetter == nil || *ledger.Student.GroupLetter == "" {
		return []dto.NoteAccessItem{}, nil
	}
	group := ingest.CanonicalizeGroupCode(*ledger.Student.GroupLetter)
	rows, err := s.notes.ListByGroup(ctx, group)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load notes")
	}

	gateNotes := make([]reconcile.Note, 0, len(rows))
	for _, n := range rows {
		gateNotes = append(gateNotes, toGateNote(n))
	}
	decisions := reconcile.NoteAccess(gateNotes, ledger.Account, ledger.Schedule, s.ledgers.Today(), s.ledgers.Location())

	items := make([]dto.NoteAccessItem, 0, len(rows))
	for _, n := range rows {
		decision := decisions[n.ID]
		s.metrics.RecordNoteDecision(decision.Reason, decision.Unlocked)
		item := dto.NoteAccessItem{
			ID:               n.ID,
			Title:            n.Title,
			RequiresPayment:  n.RequiresPayment,
			Unlocked:         decision.Unlocked,
			Reason:           decision.Reason,
			MatchedClassDate: decision.MatchedClassDate,
		}
		if decision.Unlocked && n.FilePath != nil && *n.FilePath != "" && s.signer != nil {
			token, _, err := s.signer.Generate(n.ID, *n.FilePath)
			if err != nil {
				s.logger.Warn("sign note download failed", zap.String("note_id", n.ID), zap.Error(err))
			} else {
				url := storage.DownloadURL(s.apiPrefix, "/notes/download", token)
				item.DownloadURL = &url
			}
		}
		items = append(items, item)
	}
	return items, nil
}

// ResolveDownload validates a note token and opens the file it points at.
func (s *NoteAccessService) ResolveDownload(token string) (*NoteDownload, error) {
	if s.signer == nil || s.files == nil {
		return nil, appErrors.Clone(appErrors.ErrUnavailable, "note downloads are not configured")
	}
	_, relPath, expiresAt, err := s.signer.Parse(token, false)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "invalid or expired download token")
	}
	file, err := s.files.Open(relPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "note file not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open note file")
	}
	return &NoteDownload{File: file, Filename: filepath.Base(relPath), ExpiresAt: expiresAt}, nil
}

func toGateNote(n models.Note) reconcile.Note {
	out := reconcile.Note{
		ID:              n.ID,
		Title:           n.Title,
		RequiresPayment: n.RequiresPayment,
		UpdatedAt:       n.UpdatedAt,
	}
	if n.ClassDate != nil {
		out.ClassDate = n.ClassDate.Format("2006-01-02")
	}
	if !n.CreatedAt.IsZero() {
		created := n.CreatedAt
		out.CreatedAt = &created
	}
	return out
}
