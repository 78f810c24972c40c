package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PaymentStatus enumerates payment lifecycle states.
type PaymentStatus string

const (
	PaymentStatusPaid      PaymentStatus = "paid"
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusCancelled PaymentStatus = "cancelled"
	PaymentStatusAbsent    PaymentStatus = "absent"
)

// Payment is a received payment, optionally linked to a student and a class.
type Payment struct {
	ID        string          `db:"id" json:"id"`
	StudentID *string         `db:"student_id" json:"student_id,omitempty"`
	PayerName string          `db:"payer_name" json:"payer_name"`
	Amount    decimal.Decimal `db:"amount" json:"amount"`
	// Date is the receipt date; ForClass, when set, is the class the payment was recorded against.
	Date      time.Time     `db:"date" json:"date"`
	ForClass  *time.Time    `db:"for_class" json:"for_class,omitempty"`
	Time      *string       `db:"time" json:"time,omitempty"`
	Status    PaymentStatus `db:"status" json:"status"`
	Note      *string       `db:"note" json:"note,omitempty"`
	CreatedAt time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt time.Time     `db:"updated_at" json:"updated_at"`
}

// MatchDate returns the date used for class matching.
func (p Payment) MatchDate() time.Time {
	if p.ForClass != nil && !p.ForClass.IsZero() {
		return *p.ForClass
	}
	return p.Date
}

// PaymentFilter narrows payment listings.
type PaymentFilter struct {
	StudentID string
	Status    PaymentStatus
	Unlinked  bool
	From      *time.Time
	To        *time.Time
	Page      int
	PageSize  int
}
