package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/arnoma/tutor-admin-api/internal/models"
)

// ClassMarkerRepository stores absence, credit and skip markers.
type ClassMarkerRepository struct {
	db *sqlx.DB
}

// NewClassMarkerRepository constructs a ClassMarkerRepository.
func NewClassMarkerRepository(db *sqlx.DB) *ClassMarkerRepository {
	return &ClassMarkerRepository{db: db}
}

// ListForStudent returns the student's own markers plus skip markers posted for the whole group.
func (r *ClassMarkerRepository) ListForStudent(ctx context.Context, studentID, groupName string) ([]models.ClassMarker, error) {
	const query = `SELECT id, student_id, group_name, date, kind, skip_type, note, created_at FROM class_markers
        WHERE student_id = $1 OR (student_id IS NULL AND group_name = $2 AND kind = $3) ORDER BY date ASC`
	var markers []models.ClassMarker
	if err := r.db.SelectContext(ctx, &markers, query, studentID, groupName, models.MarkerSkip); err != nil {
		return nil, fmt.Errorf("list class markers: %w", err)
	}
	return markers, nil
}

// Create inserts a marker.
func (r *ClassMarkerRepository) Create(ctx context.Context, marker *models.ClassMarker) error {
	if marker.ID == "" {
		marker.ID = uuid.NewString()
	}
	if marker.CreatedAt.IsZero() {
		marker.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO class_markers (id, student_id, group_name, date, kind, skip_type, note, created_at)
        VALUES (:id, :student_id, :group_name, :date, :kind, :skip_type, :note, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, marker); err != nil {
		return fmt.Errorf("create class marker: %w", err)
	}
	return nil
}
