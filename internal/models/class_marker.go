package models

import "time"

// MarkerKind distinguishes the per-date markers kept on the calendar.
type MarkerKind string

const (
	MarkerAbsence MarkerKind = "absence"
	MarkerCredit  MarkerKind = "credit"
	MarkerSkip    MarkerKind = "skip"
)

// ClassMarker flags a single class date for a student, or for a whole group when StudentID is nil.
type ClassMarker struct {
	ID        string     `db:"id" json:"id"`
	StudentID *string    `db:"student_id" json:"student_id,omitempty"`
	GroupName *string    `db:"group_name" json:"group_name,omitempty"`
	Date      time.Time  `db:"date" json:"date"`
	Kind      MarkerKind `db:"kind" json:"kind"`
	SkipType  *string    `db:"skip_type" json:"skip_type,omitempty"`
	Note      *string    `db:"note" json:"note,omitempty"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
}
