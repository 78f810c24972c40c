package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arnoma/tutor-admin-api/internal/dto"
	"github.com/arnoma/tutor-admin-api/internal/models"
	"github.com/arnoma/tutor-admin-api/internal/service"
)

type fakePaymentSrv struct {
	lastFilter models.PaymentFilter
	lastRecord service.RecordPaymentRequest
	lastStatus service.UpdatePaymentStatusRequest
	lastID     string
	err        error
}

func (f *fakePaymentSrv) List(_ context.Context, filter models.PaymentFilter) ([]models.Payment, *models.Pagination, error) {
	f.lastFilter = filter
	return []models.Payment{}, &models.Pagination{Page: 1, PageSize: filter.PageSize}, f.err
}

func (f *fakePaymentSrv) Record(_ context.Context, req service.RecordPaymentRequest) (*models.Payment, error) {
	f.lastRecord = req
	return &models.Payment{ID: "p1", PayerName: req.PayerName, Amount: req.Amount}, f.err
}

func (f *fakePaymentSrv) UpdateStatus(_ context.Context, id string, req service.UpdatePaymentStatusRequest) (*models.Payment, error) {
	f.lastID = id
	f.lastStatus = req
	return &models.Payment{ID: id, Status: models.PaymentStatus(req.Status)}, f.err
}

func (f *fakePaymentSrv) Delete(_ context.Context, id string) error {
	f.lastID = id
	return f.err
}

type fakeLinker struct {
	result *dto.AutoLinkResult
	err    error
	calls  int
}

func (f *fakeLinker) AutoLink(context.Context) (*dto.AutoLinkResult, error) {
	f.calls++
	return f.result, f.err
}

func TestPaymentHandlerListParsesFilters(t *testing.T) {
	srv := &fakePaymentSrv{}
	handler := NewPaymentHandler(srv, nil)

	c, w := newGinContext(http.MethodGet, "/payments?student_id=s1&status=PAID&unlinked=true&from=2025-12-01&to=2025-12-31&limit=10", nil)
	handler.List(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "s1", srv.lastFilter.StudentID)
	assert.Equal(t, models.PaymentStatusPaid, srv.lastFilter.Status)
	assert.True(t, srv.lastFilter.Unlinked)
	require.NotNil(t, srv.lastFilter.From)
	require.NotNil(t, srv.lastFilter.To)
	assert.Equal(t, "2025-12-01", srv.lastFilter.From.Format("2006-01-02"))
	assert.Equal(t, "2025-12-31", srv.lastFilter.To.Format("2006-01-02"))
	assert.Equal(t, 10, srv.lastFilter.PageSize)
}

func TestPaymentHandlerListRejectsBadDate(t *testing.T) {
	handler := NewPaymentHandler(&fakePaymentSrv{}, nil)

	c, w := newGinContext(http.MethodGet, "/payments?from=12/01/2025", nil)
	handler.List(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_DATE", decodeEnvelope(t, w).Error["code"])
}

func TestPaymentHandlerRecord(t *testing.T) {
	srv := &fakePaymentSrv{}
	handler := NewPaymentHandler(srv, nil)

	c, w := newGinContext(http.MethodPost, "/payments", []byte(`{"payer_name":"Ana Diaz","amount":"20.00","date":"2025-12-01","for_class":"2025-12-01"}`))
	handler.Record(c)

	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "Ana Diaz", srv.lastRecord.PayerName)
	assert.True(t, decimal.NewFromInt(20).Equal(srv.lastRecord.Amount))
	assert.Equal(t, "2025-12-01", srv.lastRecord.ForClass)
}

func TestPaymentHandlerUpdateStatus(t *testing.T) {
	srv := &fakePaymentSrv{}
	handler := NewPaymentHandler(srv, nil)

	c, w := newGinContext(http.MethodPatch, "/payments/p1/status", []byte(`{"status":"cancelled"}`))
	c.Params = gin.Params{{Key: "id", Value: "p1"}}
	handler.UpdateStatus(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "p1", srv.lastID)
	assert.Equal(t, "cancelled", srv.lastStatus.Status)
}

func TestPaymentHandlerDeletePropagatesErrors(t *testing.T) {
	handler := NewPaymentHandler(&fakePaymentSrv{err: errors.New("boom")}, nil)

	c, w := newGinContext(http.MethodDelete, "/payments/p1", nil)
	c.Params = gin.Params{{Key: "id", Value: "p1"}}
	handler.Delete(c)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestPaymentHandlerAutoLink(t *testing.T) {
	linker := &fakeLinker{result: &dto.AutoLinkResult{Scanned: 3, Linked: 2, Unmatched: 1, Links: map[string]string{"p1": "s1", "p2": "s2"}}}
	handler := NewPaymentHandler(&fakePaymentSrv{}, linker)

	c, w := newGinContext(http.MethodPost, "/payments/auto-link", nil)
	handler.AutoLink(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, linker.calls)
	var result dto.AutoLinkResult
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, w).Data, &result))
	assert.Equal(t, 2, result.Linked)
	assert.Equal(t, "s2", result.Links["p2"])
}

func TestPaymentHandlerAutoLinkUnavailable(t *testing.T) {
	handler := NewPaymentHandler(&fakePaymentSrv{}, nil)

	c, w := newGinContext(http.MethodPost, "/payments/auto-link", nil)
	handler.AutoLink(c)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
