package reconcile

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func payment(date string, amount int64) PaymentRecord {
	return PaymentRecord{DateStr: date, TimeStr: "14:00:00", Amount: decimal.NewFromInt(amount)}
}

func account(payments ...PaymentRecord) *Account {
	return &Account{StudentID: "stu-1", PricePerClass: decimal.NewFromInt(20), Payments: payments}
}

func TestMatchPaymentExactDateWinsRegardlessOfOrder(t *testing.T) {
	records := []PaymentRecord{payment("2025-12-03", 25), payment("2025-12-10", 30), payment("2025-12-06", 20)}

	match, ok := MatchPayment(MustParseDate("2025-12-06"), records, MustParseDate("2025-12-10"))
	require.True(t, ok)
	assert.Equal(t, "2025-12-06", match.DateStr)
	assert.True(t, match.Amount.Equal(decimal.NewFromInt(20)))
}

func TestMatchPaymentExactDateMatchesFutureClass(t *testing.T) {
	match, ok := MatchPayment(MustParseDate("2025-12-20"), []PaymentRecord{payment("2025-12-20", 20)}, MustParseDate("2025-12-10"))
	require.True(t, ok)
	assert.Equal(t, "2025-12-20", match.DateStr)
}

func TestMatchPaymentFutureClassIgnoresSameMonth(t *testing.T) {
	_, ok := MatchPayment(MustParseDate("2025-12-20"), []PaymentRecord{payment("2025-12-05", 80)}, MustParseDate("2025-12-10"))
	assert.False(t, ok)
}

func TestMatchPaymentSameMonthFirstRecordWins(t *testing.T) {
	records := []PaymentRecord{payment("2025-11-30", 10), payment("2025-12-15", 20), payment("2025-12-02", 30)}

	match, ok := MatchPayment(MustParseDate("2025-12-06"), records, MustParseDate("2025-12-31"))
	require.True(t, ok)
	assert.Equal(t, "2025-12-15", match.DateStr)
}

func TestMatchPaymentTodayUsesSameMonthFallback(t *testing.T) {
	match, ok := MatchPayment(MustParseDate("2025-12-10"), []PaymentRecord{payment("2025-12-01", 20)}, MustParseDate("2025-12-10"))
	require.True(t, ok)
	assert.Equal(t, "2025-12-01", match.DateStr)
}

func TestMatchPaymentNoSameMonthRecord(t *testing.T) {
	records := []PaymentRecord{payment("2025-11-06", 20), payment("2024-12-06", 20)}
	_, ok := MatchPayment(MustParseDate("2025-12-06"), records, MustParseDate("2025-12-31"))
	assert.False(t, ok)
}

func TestMatchPaymentSkipsMalformedAndNonPaidRecords(t *testing.T) {
	records := []PaymentRecord{
		{DateStr: "not-a-date", Amount: decimal.NewFromInt(20)},
		{DateStr: "2025-12-06", Amount: decimal.NewFromInt(20), Status: PaymentStatusPending},
		{DateStr: "2025-12-08", Amount: decimal.NewFromInt(40), Status: "PAID"},
	}
	match, ok := MatchPayment(MustParseDate("2025-12-06"), records, MustParseDate("2025-12-31"))
	require.True(t, ok)
	assert.Equal(t, "2025-12-08", match.DateStr)

	_, ok = MatchPayment(Date{}, records, MustParseDate("2025-12-31"))
	assert.False(t, ok)
}

func TestClassifyPrecedence(t *testing.T) {
	today := MustParseDate("2025-12-10")
	day := MustParseDate("2025-12-08")

	cases := []struct {
		name   string
		acct   *Account
		day    Date
		skip   *SkipMarker
		status Status
	}{
		{
			name:   "canceled beats absent and payment",
			acct:   &Account{PricePerClass: decimal.NewFromInt(20), Payments: []PaymentRecord{payment("2025-12-08", 20)}, Absences: []Date{day}},
			day:    day,
			skip:   &SkipMarker{Type: SkipTypeCanceled},
			status: StatusCanceled,
		},
		{
			name:   "other marker types are skipped",
			acct:   account(payment("2025-12-08", 20)),
			day:    day,
			skip:   &SkipMarker{Type: "holiday"},
			status: StatusSkipped,
		},
		{
			name:   "absent beats payment",
			acct:   &Account{PricePerClass: decimal.NewFromInt(20), Payments: []PaymentRecord{payment("2025-12-08", 20)}, Absences: []Date{day}},
			day:    day,
			status: StatusAbsent,
		},
		{
			name:   "paid beats credit",
			acct:   &Account{PricePerClass: decimal.NewFromInt(20), Payments: []PaymentRecord{payment("2025-12-01", 20)}, CreditDates: []Date{day}},
			day:    day,
			status: StatusPaid,
		},
		{
			name:   "credit beats upcoming",
			acct:   &Account{PricePerClass: decimal.NewFromInt(20), CreditDates: []Date{MustParseDate("2025-12-15")}},
			day:    MustParseDate("2025-12-15"),
			status: StatusCredit,
		},
		{
			name:   "future without payment is upcoming",
			acct:   account(payment("2025-12-01", 20)),
			day:    MustParseDate("2025-12-15"),
			status: StatusUpcoming,
		},
		{
			name:   "past without payment is unpaid",
			acct:   account(payment("2025-11-01", 20)),
			day:    day,
			status: StatusUnpaid,
		},
		{
			name:   "today without payment is unpaid",
			acct:   account(),
			day:    today,
			status: StatusUnpaid,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Classify(tc.acct, tc.day, tc.skip, today)
			require.NotNil(t, got)
			assert.Equal(t, tc.status, got.Status)
			assert.Equal(t, tc.day, got.Date)
		})
	}
}

func TestClassifyCanceledAndAbsentForceZeroPaid(t *testing.T) {
	day := MustParseDate("2025-12-08")
	acct := &Account{PricePerClass: decimal.NewFromInt(20), Payments: []PaymentRecord{payment("2025-12-08", 20)}, Absences: []Date{day}}

	canceled := Classify(acct, day, &SkipMarker{Type: SkipTypeCanceled, Note: "Teacher sick"}, MustParseDate("2025-12-10"))
	assert.True(t, canceled.PaidAmount.IsZero())
	assert.Equal(t, "Teacher sick", canceled.Label)

	absent := Classify(acct, day, nil, MustParseDate("2025-12-10"))
	assert.True(t, absent.PaidAmount.IsZero())
	assert.Equal(t, "Marked absent", absent.Label)
}

func TestClassifyPaidCarriesPaymentDetails(t *testing.T) {
	acct := account(payment("2025-12-06", 20))
	got := Classify(acct, MustParseDate("2025-12-06"), nil, MustParseDate("2025-12-10"))

	require.Equal(t, StatusPaid, got.Status)
	assert.True(t, got.PaidAmount.Equal(decimal.NewFromInt(20)))
	assert.Equal(t, "2025-12-06", got.PaymentDate)
	assert.Equal(t, "14:00:00", got.PaymentTime)
	assert.Nil(t, got.OverpaidAmount)
	assert.Nil(t, got.OwedAmount)
	assert.Equal(t, "Paid 20.00 $", got.Label)
}

func TestClassifyOverpaidAndPartial(t *testing.T) {
	today := MustParseDate("2025-12-10")

	over := Classify(account(payment("2025-12-06", 50)), MustParseDate("2025-12-06"), nil, today)
	require.Equal(t, StatusPaid, over.Status)
	require.NotNil(t, over.OverpaidAmount)
	assert.True(t, over.OverpaidAmount.Equal(decimal.NewFromInt(30)))
	assert.Equal(t, "Paid 50.00 $ (30.00 $ overpaid)", over.Label)

	partial := Classify(account(payment("2025-12-06", 5)), MustParseDate("2025-12-06"), nil, today)
	assert.Equal(t, StatusPaid, partial.Status)
	assert.Nil(t, partial.OverpaidAmount)
}

func TestClassifyZeroAmountNeverPaid(t *testing.T) {
	today := MustParseDate("2025-12-10")
	day := MustParseDate("2025-12-06")

	unpaid := Classify(account(payment("2025-12-06", 0)), day, nil, today)
	assert.Equal(t, StatusUnpaid, unpaid.Status)
	require.NotNil(t, unpaid.OwedAmount)
	assert.True(t, unpaid.OwedAmount.Equal(decimal.NewFromInt(20)))

	acct := account(payment("2025-12-06", 0))
	acct.CreditDates = []Date{day}
	credit := Classify(acct, day, nil, today)
	assert.Equal(t, StatusCredit, credit.Status)
	assert.True(t, credit.PaidAmount.Equal(decimal.NewFromInt(20)))
}

func TestClassifyBalancePassThroughAndLabels(t *testing.T) {
	acct := account()
	acct.Balance = decimal.NewFromInt(15)
	today := MustParseDate("2025-12-10")

	upcoming := Classify(acct, MustParseDate("2025-12-12"), nil, today)
	assert.Equal(t, "Upcoming (balance 15.00 $)", upcoming.Label)
	assert.True(t, upcoming.Balance.Equal(decimal.NewFromInt(15)))

	unpaid := Classify(acct, MustParseDate("2025-12-01"), nil, today)
	assert.Equal(t, "Unpaid (15.00 $ balance)", unpaid.Label)
}

func TestClassifyCannotClassify(t *testing.T) {
	assert.Nil(t, Classify(nil, MustParseDate("2025-12-01"), nil, MustParseDate("2025-12-10")))
	assert.Nil(t, Classify(account(), Date{}, nil, MustParseDate("2025-12-10")))
}

func TestClassifyMonth(t *testing.T) {
	s := NewSchedule([]string{"Monday", "Wednesday"}, nil, nil)
	acct := account(payment("2025-12-01", 20))
	acct.Absences = dates("2025-12-03")
	skips := map[Date]SkipMarker{MustParseDate("2025-12-08"): {Type: SkipTypeCanceled}}

	got := ClassifyMonth(acct, s, skips, 2025, time.December, MustParseDate("2025-12-10"))
	require.Len(t, got, 10)
	want := []Status{StatusPaid, StatusAbsent, StatusCanceled, StatusPaid, StatusUpcoming, StatusUpcoming, StatusUpcoming, StatusUpcoming, StatusUpcoming, StatusUpcoming}
	for i, st := range got {
		assert.Equal(t, want[i], st.Status, st.Date.String())
	}
}
