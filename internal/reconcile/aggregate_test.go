package reconcile

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAggregateUnpaidMonthlyLumpSumCoversMonth(t *testing.T) {
	start := MustParseDate("2025-12-01")
	acct := &Account{PricePerClass: decimal.NewFromInt(20), StartDate: &start, Payments: []PaymentRecord{payment("2025-12-15", 80)}}
	s := NewSchedule([]string{"Monday", "Wednesday"}, nil, nil)

	got := AggregateUnpaid(acct, s, nil, MustParseDate("2025-12-31"))
	assert.Equal(t, 0, got.UnpaidCount)
	assert.True(t, got.UnpaidAmount.IsZero())
	assert.Empty(t, got.UnpaidDates)
	assert.Equal(t, 10, got.TotalClasses)
	assert.Equal(t, 10, got.SettledCount)
	assert.Equal(t, start, got.From)
}

func TestAggregateUnpaidExcludesAbsence(t *testing.T) {
	start := MustParseDate("2025-12-01")
	acct := &Account{PricePerClass: decimal.NewFromInt(20), StartDate: &start, Absences: dates("2025-12-03")}
	s := NewSchedule([]string{"Monday", "Wednesday"}, nil, nil)

	got := AggregateUnpaid(acct, s, nil, MustParseDate("2025-12-10"))
	assert.Equal(t, 4, got.TotalClasses)
	assert.Equal(t, 3, got.UnpaidCount)
	assert.Equal(t, dates("2025-12-01", "2025-12-08", "2025-12-10"), got.UnpaidDates)
	assert.NotContains(t, got.UnpaidDates, MustParseDate("2025-12-03"))
	assert.Equal(t, 1, got.AbsentCount)
	assert.True(t, got.UnpaidAmount.Equal(decimal.NewFromInt(60)))
}

func TestAggregateUnpaidCountsEveryBucket(t *testing.T) {
	start := MustParseDate("2025-11-01")
	acct := &Account{
		PricePerClass: decimal.NewFromInt(25),
		StartDate:     &start,
		Payments:      []PaymentRecord{payment("2025-11-20", 100)},
		CreditDates:   dates("2025-12-01"),
	}
	s := NewSchedule([]string{"Monday"}, nil, nil)
	skips := map[Date]SkipMarker{
		MustParseDate("2025-12-08"): {Type: SkipTypeCanceled},
		MustParseDate("2025-12-15"): {Type: "holiday"},
	}

	got := AggregateUnpaid(acct, s, skips, MustParseDate("2025-12-20"))
	// November Mondays are paid by the lump sum; December: credit, canceled, skipped.
	assert.Equal(t, 4, got.PaidCount)
	assert.Equal(t, 1, got.CreditCount)
	assert.Equal(t, 5, got.SettledCount)
	assert.Equal(t, 1, got.CanceledCount)
	assert.Equal(t, 1, got.SkippedCount)
	assert.Equal(t, 0, got.UnpaidCount)
	assert.Equal(t, 7, got.TotalClasses)
}

func TestAggregateUnpaidExcludesFutureDates(t *testing.T) {
	start := MustParseDate("2025-12-01")
	acct := &Account{PricePerClass: decimal.NewFromInt(20), StartDate: &start}
	s := NewSchedule([]string{"Monday", "Wednesday"}, dates("2025-12-20"), nil)

	got := AggregateUnpaid(acct, s, nil, MustParseDate("2025-12-03"))
	assert.Equal(t, dates("2025-12-01", "2025-12-03"), got.UnpaidDates)
	assert.Equal(t, 2, got.TotalClasses)
}

func TestAggregateUnpaidMissingScheduleIsZero(t *testing.T) {
	got := AggregateUnpaid(account(), Schedule{}, nil, MustParseDate("2025-12-31"))
	assert.Equal(t, 0, got.UnpaidCount)
	assert.Equal(t, 0, got.TotalClasses)
	assert.True(t, got.UnpaidAmount.IsZero())

	nilAcct := AggregateUnpaid(nil, NewSchedule([]string{"Monday"}, nil, nil), nil, MustParseDate("2025-12-31"))
	assert.Equal(t, 0, nilAcct.UnpaidCount)
}

func TestAggregateUnpaidHonoursLaterScheduleStart(t *testing.T) {
	acctStart := MustParseDate("2025-01-01")
	schedStart := MustParseDate("2025-06-02")
	acct := &Account{PricePerClass: decimal.NewFromInt(20), StartDate: &acctStart}
	s := NewSchedule([]string{"Monday"}, nil, &schedStart)
	today := MustParseDate("2025-06-30")

	got := AggregateUnpaid(acct, s, nil, today)
	assert.Equal(t, acctStart, got.From)
	assert.Equal(t, dates("2025-06-02", "2025-06-09", "2025-06-16", "2025-06-23", "2025-06-30"), got.UnpaidDates)
	assert.Equal(t, 5, got.TotalClasses)
	assert.Empty(t, ClassifyMonth(acct, s, nil, 2025, time.May, today))

	early := MustParseDate("2025-06-16")
	acct.StartDate = &early
	got = AggregateUnpaid(acct, s, nil, today)
	assert.Equal(t, dates("2025-06-16", "2025-06-23", "2025-06-30"), got.UnpaidDates)
}

func TestEffectiveStartDate(t *testing.T) {
	acctStart := MustParseDate("2025-03-01")
	schedStart := MustParseDate("2025-01-01")

	assert.Equal(t, acctStart, EffectiveStartDate(&Account{StartDate: &acctStart}, Schedule{StartDate: &schedStart}))
	assert.Equal(t, schedStart, EffectiveStartDate(&Account{}, Schedule{StartDate: &schedStart}))
	assert.Equal(t, DefaultStartDate, EffectiveStartDate(&Account{}, Schedule{}))
}

func TestSummarize(t *testing.T) {
	acct := account(payment("2025-12-01", 40), PaymentRecord{DateStr: "2025-12-02", Amount: decimal.NewFromInt(99), Status: PaymentStatusCancelled})
	acct.Balance = decimal.NewFromInt(5)
	summary := UnpaidSummary{UnpaidCount: 2, TotalClasses: 6, UnpaidAmount: decimal.NewFromInt(40)}

	got := Summarize(acct, summary)
	require.True(t, got.TotalPaid.Equal(decimal.NewFromInt(40)))
	assert.True(t, got.Balance.Equal(decimal.NewFromInt(5)))
	assert.Equal(t, 4, got.PaidClasses)
	assert.Equal(t, 2, got.UnpaidClasses)
	assert.Equal(t, 6, got.TotalClasses)
}
