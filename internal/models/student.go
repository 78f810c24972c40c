package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Student represents a tutoring client on the roster.
type Student struct {
	ID          string  `db:"id" json:"id"`
	Name        string  `db:"name" json:"name"`
	Email       *string `db:"email" json:"email,omitempty"`
	GroupLetter *string `db:"group_letter" json:"group_letter,omitempty"`
	// Aliases and Schedule hold the loosely formatted text the console stores; see internal/ingest.
	Aliases       *string         `db:"aliases" json:"aliases,omitempty"`
	Schedule      *string         `db:"schedule" json:"schedule,omitempty"`
	PricePerClass decimal.Decimal `db:"price_per_class" json:"price_per_class"`
	Balance       decimal.Decimal `db:"balance" json:"balance"`
	StartDate     *time.Time      `db:"start_date" json:"start_date,omitempty"`
	Active        bool            `db:"active" json:"active"`
	CreatedAt     time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time       `db:"updated_at" json:"updated_at"`
}

// StudentFilter encapsulates allowed search parameters for listing students.
type StudentFilter struct {
	Search      string
	GroupLetter string
	Active      *bool
	Page        int
	PageSize    int
	SortBy      string
	SortOrder   string
}
