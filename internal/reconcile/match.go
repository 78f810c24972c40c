package reconcile

import (
	"strings"

	"github.com/shopspring/decimal"
)

// PaymentStatus is the lifecycle state of a recorded payment.
type PaymentStatus string

// Known payment statuses.
const (
	PaymentStatusPaid      PaymentStatus = "paid"
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusCancelled PaymentStatus = "cancelled"
	PaymentStatusAbsent    PaymentStatus = "absent"
)

// PaymentRecord is a single payment as seen by the engine.
type PaymentRecord struct {
	ID string `json:"id,omitempty"`
	// DateStr is the date the payment is matched on: receipt date or for_class date, chosen by the caller.
	DateStr string          `json:"date"`
	TimeStr string          `json:"time,omitempty"`
	Amount  decimal.Decimal `json:"amount"`
	// Status may be empty when every record passed in is implicitly paid.
	Status PaymentStatus `json:"status,omitempty"`
}

// Counts reports whether the record takes part in matching.
func (p PaymentRecord) Counts() bool {
	return p.Status == "" || PaymentStatus(strings.ToLower(string(p.Status))) == PaymentStatusPaid
}

// Date parses DateStr.
func (p PaymentRecord) Date() (Date, bool) {
	if p.DateStr == "" {
		return Date{}, false
	}
	d, err := ParseDate(p.DateStr)
	if err != nil {
		return Date{}, false
	}
	return d, true
}

// MatchPayment returns the record covering classDate.
//
// An exact-date record always wins. Classes after today are never matched
// otherwise. For today and earlier, the first record in input order that falls
// in the class's month covers it; callers pass records sorted chronologically.
func MatchPayment(classDate Date, records []PaymentRecord, today Date) (PaymentRecord, bool) {
	if classDate.IsZero() {
		return PaymentRecord{}, false
	}

	for _, rec := range records {
		if !rec.Counts() {
			continue
		}
		if d, ok := rec.Date(); ok && d == classDate {
			return rec, true
		}
	}

	if classDate.After(today) {
		return PaymentRecord{}, false
	}

	for _, rec := range records {
		if !rec.Counts() {
			continue
		}
		if d, ok := rec.Date(); ok && d.SameMonth(classDate) {
			return rec, true
		}
	}
	return PaymentRecord{}, false
}
