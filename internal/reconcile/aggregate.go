package reconcile

import (
	"time"

	"github.com/shopspring/decimal"
)

// DefaultStartDate is where balance history begins for students without a start date.
var DefaultStartDate = NewDate(2024, time.January, 1)

// UnpaidSummary aggregates the classes that have already happened.
type UnpaidSummary struct {
	From          Date            `json:"from"`
	Through       Date            `json:"through"`
	UnpaidDates   []Date          `json:"unpaid_dates"`
	UnpaidCount   int             `json:"unpaid_count"`
	UnpaidAmount  decimal.Decimal `json:"unpaid_amount"`
	SettledCount  int             `json:"settled_count"`
	PaidCount     int             `json:"paid_count"`
	CreditCount   int             `json:"credit_count"`
	AbsentCount   int             `json:"absent_count"`
	CanceledCount int             `json:"canceled_count"`
	SkippedCount  int             `json:"skipped_count"`
	TotalClasses  int             `json:"total_classes"`
}

// EffectiveStartDate picks the account start date, then the schedule start date, then DefaultStartDate.
func EffectiveStartDate(acct *Account, s Schedule) Date {
	switch {
	case acct != nil && acct.StartDate != nil && !acct.StartDate.IsZero():
		return *acct.StartDate
	case s.StartDate != nil && !s.StartDate.IsZero():
		return *s.StartDate
	default:
		return DefaultStartDate
	}
}

// AggregateUnpaid classifies every class from the effective start date through today and totals them.
// Classes after today are not counted at all.
func AggregateUnpaid(acct *Account, s Schedule, skips map[Date]SkipMarker, today Date) UnpaidSummary {
	summary := UnpaidSummary{Through: today, UnpaidDates: []Date{}, UnpaidAmount: decimal.Zero}
	if acct == nil {
		return summary
	}

	start := EffectiveStartDate(acct, s)
	summary.From = start
	// The weekly pattern never runs before the schedule's own start date.
	recurringFrom := start
	if s.StartDate != nil && s.StartDate.After(recurringFrom) {
		recurringFrom = *s.StartDate
	}
	bounded := s
	bounded.StartDate = &recurringFrom

	statuses := classifyAll(acct, ExpandRange(bounded, start, today), skips, today)
	summary.TotalClasses = len(statuses)
	for _, st := range statuses {
		switch st.Status {
		case StatusUnpaid:
			summary.UnpaidDates = append(summary.UnpaidDates, st.Date)
		case StatusPaid:
			summary.PaidCount++
		case StatusCredit:
			summary.CreditCount++
		case StatusAbsent:
			summary.AbsentCount++
		case StatusCanceled:
			summary.CanceledCount++
		case StatusSkipped:
			summary.SkippedCount++
		}
	}
	summary.UnpaidCount = len(summary.UnpaidDates)
	summary.SettledCount = summary.PaidCount + summary.CreditCount
	summary.UnpaidAmount = acct.PricePerClass.Mul(decimal.NewFromInt(int64(summary.UnpaidCount)))
	return summary
}

// PaymentSummary is the balance panel shown on the student portal.
type PaymentSummary struct {
	TotalPaid     decimal.Decimal `json:"total_paid"`
	Balance       decimal.Decimal `json:"balance"`
	UnpaidAmount  decimal.Decimal `json:"unpaid_amount"`
	PaidClasses   int             `json:"paid_classes"`
	UnpaidClasses int             `json:"unpaid_classes"`
	TotalClasses  int             `json:"total_classes"`
}

// Summarize combines the account's counting payments with an UnpaidSummary.
// PaidClasses counts every past class that is not unpaid.
func Summarize(acct *Account, summary UnpaidSummary) PaymentSummary {
	out := PaymentSummary{
		TotalPaid:     decimal.Zero,
		Balance:       decimal.Zero,
		UnpaidAmount:  summary.UnpaidAmount,
		PaidClasses:   summary.TotalClasses - summary.UnpaidCount,
		UnpaidClasses: summary.UnpaidCount,
		TotalClasses:  summary.TotalClasses,
	}
	if acct == nil {
		return out
	}
	out.Balance = acct.Balance
	for _, p := range acct.Payments {
		if p.Counts() {
			out.TotalPaid = out.TotalPaid.Add(p.Amount)
		}
	}
	return out
}
