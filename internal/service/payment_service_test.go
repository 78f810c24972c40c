package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arnoma/tutor-admin-api/internal/models"
	appErrors "github.com/arnoma/tutor-admin-api/pkg/errors"
)

func newPaymentServiceForTest() (*PaymentService, *paymentRepoStub, *memoryCache) {
	students := newStudentRepoStub(models.Student{ID: "s1", Name: "Ana Diaz", Active: true})
	repo := &paymentRepoStub{}
	store := newMemoryCache()
	cache := NewCacheService(store, nil, 0, nil, true)
	return NewPaymentService(repo, students, cache, nil, nil), repo, store
}

func TestPaymentServiceRecord(t *testing.T) {
	svc, repo, store := newPaymentServiceForTest()
	ctx := context.Background()
	require.NoError(t, store.Set(ctx, ReconcileKey("s1", "balance", "2025-12-10"), 1, 0))

	payment, err := svc.Record(ctx, RecordPaymentRequest{
		StudentID: "s1",
		PayerName: " ANA DIAZ ",
		Amount:    money(20),
		Date:      "2025-12-02",
		ForClass:  "2025-12-01",
		Time:      "17:05",
	})
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusPaid, payment.Status)
	assert.Equal(t, "ANA DIAZ", payment.PayerName)
	require.NotNil(t, payment.ForClass)
	assert.Equal(t, "2025-12-01", payment.MatchDate().Format("2006-01-02"))
	assert.Len(t, repo.payments, 1)
	assert.Empty(t, store.keys())
}

func TestPaymentServiceRecordUnlinked(t *testing.T) {
	svc, repo, _ := newPaymentServiceForTest()

	payment, err := svc.Record(context.Background(), RecordPaymentRequest{PayerName: "Someone", Amount: money(10), Date: "2025-12-02", Status: "pending"})
	require.NoError(t, err)
	assert.Nil(t, payment.StudentID)
	assert.Equal(t, models.PaymentStatusPending, repo.payments[0].Status)
}

func TestPaymentServiceRecordValidation(t *testing.T) {
	svc, _, _ := newPaymentServiceForTest()
	ctx := context.Background()

	_, err := svc.Record(ctx, RecordPaymentRequest{PayerName: "A", Amount: money(-5), Date: "2025-12-02"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	_, err = svc.Record(ctx, RecordPaymentRequest{PayerName: "A", Amount: money(5), Date: "02.12.2025"})
	require.Error(t, err)

	_, err = svc.Record(ctx, RecordPaymentRequest{PayerName: "A", Amount: money(5), Date: "2025-12-02", Status: "refunded"})
	require.Error(t, err)

	_, err = svc.Record(ctx, RecordPaymentRequest{StudentID: "ghost", PayerName: "A", Amount: money(5), Date: "2025-12-02"})
	require.Error(t, err)
	assert.Equal(t, 404, appErrors.FromError(err).Status)
}

func TestPaymentServiceUpdateStatusAndDelete(t *testing.T) {
	svc, repo, _ := newPaymentServiceForTest()
	ctx := context.Background()
	payment, err := svc.Record(ctx, RecordPaymentRequest{StudentID: "s1", PayerName: "Ana", Amount: money(20), Date: "2025-12-02"})
	require.NoError(t, err)

	updated, err := svc.UpdateStatus(ctx, payment.ID, UpdatePaymentStatusRequest{Status: "cancelled"})
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusCancelled, updated.Status)
	assert.Equal(t, models.PaymentStatusCancelled, repo.payments[0].Status)

	_, err = svc.UpdateStatus(ctx, payment.ID, UpdatePaymentStatusRequest{Status: "lost"})
	require.Error(t, err)

	require.NoError(t, svc.Delete(ctx, payment.ID))
	assert.Empty(t, repo.payments)

	err = svc.Delete(ctx, payment.ID)
	require.Error(t, err)
	assert.Equal(t, 404, appErrors.FromError(err).Status)
}

func TestPaymentServiceList(t *testing.T) {
	svc, _, _ := newPaymentServiceForTest()
	ctx := context.Background()
	for _, d := range []string{"2025-12-01", "2025-12-02", "2025-12-03"} {
		_, err := svc.Record(ctx, RecordPaymentRequest{PayerName: "X", Amount: money(1), Date: d})
		require.NoError(t, err)
	}

	payments, pagination, err := svc.List(ctx, models.PaymentFilter{Unlinked: true, PageSize: 2})
	require.NoError(t, err)
	assert.Len(t, payments, 2)
	assert.Equal(t, 3, pagination.TotalCount)
	assert.Equal(t, 2, pagination.PageSize)
}
