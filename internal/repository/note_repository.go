package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/arnoma/tutor-admin-api/internal/models"
)

// NoteRepository reads content items shared with groups.
type NoteRepository struct {
	db *sqlx.DB
}

// NewNoteRepository constructs a NoteRepository.
func NewNoteRepository(db *sqlx.DB) *NoteRepository {
	return &NoteRepository{db: db}
}

// ListByGroup returns notes posted for the group, newest first.
func (r *NoteRepository) ListByGroup(ctx context.Context, groupName string) ([]models.Note, error) {
	const query = `SELECT id, title, group_name, file_path, class_date, requires_payment, created_at, updated_at
        FROM notes WHERE group_name = $1 ORDER BY COALESCE(updated_at, created_at) DESC`
	var notes []models.Note
	if err := r.db.SelectContext(ctx, &notes, query, groupName); err != nil {
		return nil, fmt.Errorf("list notes: %w", err)
	}
	return notes, nil
}
