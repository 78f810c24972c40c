package dto

import (
	"github.com/arnoma/tutor-admin-api/internal/ingest"
	"github.com/arnoma/tutor-admin-api/internal/models"
)

// StudentView is a student row with its loosely stored fields decoded.
type StudentView struct {
	models.Student
	AliasList     []string         `json:"alias_list"`
	Sessions      []ingest.Session `json:"sessions"`
	ScheduleLabel string           `json:"schedule_label"`
}

// NewStudentView decodes aliases and schedule of a student row.
func NewStudentView(s models.Student) StudentView {
	var aliases, schedule any
	if s.Aliases != nil {
		aliases = *s.Aliases
	}
	if s.Schedule != nil {
		schedule = *s.Schedule
	}
	sessions := ingest.ParseSessions(schedule)
	return StudentView{
		Student:       s,
		AliasList:     ingest.ParseAliases(aliases),
		Sessions:      sessions,
		ScheduleLabel: ingest.FormatSessions(sessions),
	}
}
