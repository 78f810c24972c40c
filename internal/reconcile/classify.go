package reconcile

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Status is the classification of one class date for one student.
type Status string

// Class date statuses.
const (
	StatusPaid     Status = "paid"
	StatusUnpaid   Status = "unpaid"
	StatusUpcoming Status = "upcoming"
	StatusAbsent   Status = "absent"
	StatusCanceled Status = "canceled"
	StatusSkipped  Status = "skipped"
	StatusCredit   Status = "credit"
)

// SkipTypeCanceled marks a class that did not take place; every other marker type means skipped.
const SkipTypeCanceled = "class-canceled"

// SkipMarker is an administrative flag overriding payment and absence for a date.
type SkipMarker struct {
	Type string `json:"type"`
	Note string `json:"note,omitempty"`
}

// Account carries the per-student inputs of the engine.
type Account struct {
	StudentID     string          `json:"student_id"`
	PricePerClass decimal.Decimal `json:"price_per_class"`
	Balance       decimal.Decimal `json:"balance"`
	StartDate     *Date           `json:"start_date,omitempty"`
	Payments      []PaymentRecord `json:"payments"`
	Absences      []Date          `json:"absences"`
	CreditDates   []Date          `json:"credit_dates"`
}

// ClassDateStatus is the engine's verdict for one class date.
type ClassDateStatus struct {
	Date           Date             `json:"date"`
	Status         Status           `json:"status"`
	Label          string           `json:"label"`
	PaidAmount     decimal.Decimal  `json:"paid_amount"`
	Balance        decimal.Decimal  `json:"balance"`
	PaymentDate    string           `json:"payment_date,omitempty"`
	PaymentTime    string           `json:"payment_time,omitempty"`
	OwedAmount     *decimal.Decimal `json:"owed_amount,omitempty"`
	OverpaidAmount *decimal.Decimal `json:"overpaid_amount,omitempty"`
}

// Classify assigns exactly one status to classDate.
//
// Precedence: canceled/skipped, absent, paid, credit, upcoming, unpaid.
// It returns nil when the account is nil or the date is zero.
func Classify(acct *Account, classDate Date, skip *SkipMarker, today Date) *ClassDateStatus {
	if acct == nil || classDate.IsZero() {
		return nil
	}
	return classify(acct, classDate, skip, today, NewDateSet(acct.Absences...), NewDateSet(acct.CreditDates...))
}

func classify(acct *Account, classDate Date, skip *SkipMarker, today Date, absences, credits DateSet) *ClassDateStatus {
	price := acct.PricePerClass
	out := &ClassDateStatus{Date: classDate, Balance: acct.Balance, PaidAmount: decimal.Zero}

	if skip != nil {
		if skip.Type == SkipTypeCanceled {
			out.Status = StatusCanceled
			out.Label = labelOr(skip.Note, "Class canceled")
		} else {
			out.Status = StatusSkipped
			out.Label = labelOr(skip.Note, "Class skipped")
		}
		return out
	}

	if absences.Has(classDate) {
		out.Status = StatusAbsent
		out.Label = "Marked absent"
		return out
	}

	if match, ok := MatchPayment(classDate, acct.Payments, today); ok && match.Amount.IsPositive() {
		out.Status = StatusPaid
		out.PaidAmount = match.Amount
		out.PaymentDate = match.DateStr
		out.PaymentTime = match.TimeStr
		out.Label = fmt.Sprintf("Paid %s $", money(match.Amount))
		if price.IsPositive() && match.Amount.GreaterThan(price) {
			over := match.Amount.Sub(price)
			out.OverpaidAmount = &over
			out.Label = fmt.Sprintf("%s (%s $ overpaid)", out.Label, money(over))
		}
		return out
	}

	if credits.Has(classDate) {
		out.Status = StatusCredit
		out.PaidAmount = price
		out.Label = fmt.Sprintf("Paid from credit (%s $)", money(price))
		return out
	}

	if classDate.After(today) {
		out.Status = StatusUpcoming
		if acct.Balance.IsPositive() {
			out.Label = fmt.Sprintf("Upcoming (balance %s $)", money(acct.Balance))
		} else {
			out.Label = "Upcoming class"
		}
		return out
	}

	out.Status = StatusUnpaid
	owed := price
	out.OwedAmount = &owed
	if acct.Balance.IsPositive() {
		out.Label = fmt.Sprintf("Unpaid (%s $ balance)", money(acct.Balance))
	} else {
		out.Label = "Unpaid"
	}
	return out
}

// ClassifyMonth classifies every class date of a month, in date order.
func ClassifyMonth(acct *Account, s Schedule, skips map[Date]SkipMarker, year int, month time.Month, today Date) []ClassDateStatus {
	if acct == nil {
		return []ClassDateStatus{}
	}
	return classifyAll(acct, ExpandMonth(s, year, month), skips, today)
}

func classifyAll(acct *Account, dates []Date, skips map[Date]SkipMarker, today Date) []ClassDateStatus {
	absences := NewDateSet(acct.Absences...)
	credits := NewDateSet(acct.CreditDates...)
	out := make([]ClassDateStatus, 0, len(dates))
	for _, d := range dates {
		var skip *SkipMarker
		if marker, ok := skips[d]; ok {
			skip = &marker
		}
		out = append(out, *classify(acct, d, skip, today, absences, credits))
	}
	return out
}

func labelOr(label, fallback string) string {
	if label != "" {
		return label
	}
	return fallback
}

func money(d decimal.Decimal) string {
	return d.StringFixed(2)
}
