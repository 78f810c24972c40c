package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arnoma/tutor-admin-api/internal/models"
)

func TestGroupRepositoryFindByName(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	defer cleanup()
	repo := NewGroupRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT group_name, schedule, start_date, updated_at FROM groups WHERE group_name = $1")).
		WithArgs("A").
		WillReturnRows(sqlmock.NewRows([]string{"group_name", "schedule", "start_date", "updated_at"}).
			AddRow("A", []byte(`{"Monday":["17:00"]}`), nil, time.Now()))

	group, err := repo.FindByName(context.Background(), "A")
	require.NoError(t, err)
	assert.JSONEq(t, `{"Monday":["17:00"]}`, string(group.Schedule))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGroupRepositoryListSessionsBounded(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	defer cleanup()
	repo := NewGroupRepository(db)

	from := time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2025, 12, 31, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta("FROM group_one_time_sessions WHERE group_name = $1 AND date >= $2 AND date <= $3 ORDER BY date ASC")).
		WithArgs("A", from, to).
		WillReturnRows(sqlmock.NewRows([]string{"id", "group_name", "date", "note"}).AddRow("g1", "A", from.AddDate(0, 0, 19), "makeup"))

	sessions, err := repo.ListSessions(context.Background(), "A", &from, &to)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, 20, sessions[0].Date.Day())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClassMarkerRepositoryListForStudent(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	defer cleanup()
	repo := NewClassMarkerRepository(db)

	day := time.Date(2025, 12, 3, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta("WHERE student_id = $1 OR (student_id IS NULL AND group_name = $2 AND kind = $3)")).
		WithArgs("s1", "A", models.MarkerSkip).
		WillReturnRows(sqlmock.NewRows([]string{"id", "student_id", "group_name", "date", "kind", "skip_type", "note", "created_at"}).
			AddRow("m1", "s1", nil, day, "absence", nil, nil, day).
			AddRow("m2", nil, "A", day.AddDate(0, 0, 5), "skip", "class-canceled", "snow", day))

	markers, err := repo.ListForStudent(context.Background(), "s1", "A")
	require.NoError(t, err)
	require.Len(t, markers, 2)
	assert.Equal(t, models.MarkerAbsence, markers[0].Kind)
	require.NotNil(t, markers[1].SkipType)
	assert.Equal(t, "class-canceled", *markers[1].SkipType)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClassMarkerRepositoryCreate(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	defer cleanup()
	repo := NewClassMarkerRepository(db)

	mock.ExpectExec("INSERT INTO class_markers").
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), models.MarkerCredit, sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	studentID := "s1"
	marker := &models.ClassMarker{StudentID: &studentID, Date: time.Now(), Kind: models.MarkerCredit}
	require.NoError(t, repo.Create(context.Background(), marker))
	assert.NotEmpty(t, marker.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNoteRepositoryListByGroup(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	defer cleanup()
	repo := NewNoteRepository(db)

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("FROM notes WHERE group_name = $1")).
		WithArgs("A").
		WillReturnRows(sqlmock.NewRows([]string{"id", "title", "group_name", "file_path", "class_date", "requires_payment", "created_at", "updated_at"}).
			AddRow("n1", "Week 1", "A", "a/week1.pdf", nil, true, now, nil))

	notes, err := repo.ListByGroup(context.Background(), "A")
	require.NoError(t, err)
	require.Len(t, notes, 1)
	assert.True(t, notes[0].RequiresPayment)
	assert.Nil(t, notes[0].UpdatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}
