package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/arnoma/tutor-admin-api/internal/models"
)

// GroupRepository reads group timetables and their one-off sessions.
type GroupRepository struct {
	db *sqlx.DB
}

// NewGroupRepository constructs a GroupRepository.
func NewGroupRepository(db *sqlx.DB) *GroupRepository {
	return &GroupRepository{db: db}
}

// FindByName fetches a group by its canonical name.
func (r *GroupRepository) FindByName(ctx context.Context, name string) (*models.Group, error) {
	const query = `SELECT group_name, schedule, start_date, updated_at FROM groups WHERE group_name = $1`
	var group models.Group
	if err := r.db.GetContext(ctx, &group, query, name); err != nil {
		return nil, err
	}
	return &group, nil
}

// ListSessions returns one-off sessions of the group, optionally bounded by date.
func (r *GroupRepository) ListSessions(ctx context.Context, name string, from, to *time.Time) ([]models.GroupSession, error) {
	query := `SELECT id, group_name, date, note FROM group_one_time_sessions WHERE group_name = $1`
	args := []interface{}{name}
	if from != nil {
		args = append(args, *from)
		query += fmt.Sprintf(" AND date >= $%d", len(args))
	}
	if to != nil {
		args = append(args, *to)
		query += fmt.Sprintf(" AND date <= $%d", len(args))
	}
	query += " ORDER BY date ASC"
	var sessions []models.GroupSession
	if err := r.db.SelectContext(ctx, &sessions, query, args...); err != nil {
		return nil, fmt.Errorf("list group sessions: %w", err)
	}
	return sessions, nil
}
