package models

import "time"

// Note is an uploaded content item shared with a group.
type Note struct {
	ID              string     `db:"id" json:"id"`
	Title           string     `db:"title" json:"title"`
	GroupName       *string    `db:"group_name" json:"group_name,omitempty"`
	FilePath        *string    `db:"file_path" json:"file_path,omitempty"`
	ClassDate       *time.Time `db:"class_date" json:"class_date,omitempty"`
	RequiresPayment bool       `db:"requires_payment" json:"requires_payment"`
	CreatedAt       time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt       *time.Time `db:"updated_at" json:"updated_at,omitempty"`
}
