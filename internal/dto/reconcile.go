package dto

import "github.com/arnoma/tutor-admin-api/internal/reconcile"

// MonthCalendar lists the classified class dates of one student in one month.
type MonthCalendar struct {
	StudentID string                      `json:"student_id"`
	Month     string                      `json:"month"`
	Days      []reconcile.ClassDateStatus `json:"days"`
	Counts    map[reconcile.Status]int    `json:"counts"`
}

// ClassStatusResponse is the verdict for a single date.
type ClassStatusResponse struct {
	StudentID string `json:"student_id"`
	// Scheduled is false when the date is not a class date of the student's schedule.
	Scheduled bool `json:"scheduled"`
	reconcile.ClassDateStatus
}

// BalanceResponse bundles the unpaid aggregate with the portal summary.
type BalanceResponse struct {
	StudentID string                   `json:"student_id"`
	AsOf      reconcile.Date           `json:"as_of"`
	Unpaid    reconcile.UnpaidSummary  `json:"unpaid"`
	Summary   reconcile.PaymentSummary `json:"summary"`
}

// NoteAccessItem is one note as presented to a student.
type NoteAccessItem struct {
	ID               string          `json:"id"`
	Title            string          `json:"title"`
	RequiresPayment  bool            `json:"requires_payment"`
	Unlocked         bool            `json:"unlocked"`
	Reason           string          `json:"reason"`
	MatchedClassDate *reconcile.Date `json:"matched_class_date,omitempty"`
	DownloadURL      *string         `json:"download_url,omitempty"`
}

// MarkerRequest flags a class date as absent, credited or skipped.
type MarkerRequest struct {
	Date     string `json:"date" validate:"required,datetime=2006-01-02"`
	Kind     string `json:"kind" validate:"required,oneof=absence credit skip"`
	SkipType string `json:"skip_type" validate:"required_if=Kind skip"`
	Note     string `json:"note" validate:"max=500"`
}
