package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/arnoma/tutor-admin-api/internal/dto"
	"github.com/arnoma/tutor-admin-api/internal/models"
	"github.com/arnoma/tutor-admin-api/internal/service"
	appErrors "github.com/arnoma/tutor-admin-api/pkg/errors"
	"github.com/arnoma/tutor-admin-api/pkg/response"
)

type paymentService interface {
	List(ctx context.Context, filter models.PaymentFilter) ([]models.Payment, *models.Pagination, error)
	Record(ctx context.Context, req service.RecordPaymentRequest) (*models.Payment, error)
	UpdateStatus(ctx context.Context, id string, req service.UpdatePaymentStatusRequest) (*models.Payment, error)
	Delete(ctx context.Context, id string) error
}

type autoLinker interface {
	AutoLink(ctx context.Context) (*dto.AutoLinkResult, error)
}

// PaymentHandler exposes the payment ledger.
type PaymentHandler struct {
	payments paymentService
	linker   autoLinker
}

// NewPaymentHandler constructs the handler.
func NewPaymentHandler(payments paymentService, linker autoLinker) *PaymentHandler {
	return &PaymentHandler{payments: payments, linker: linker}
}

// List godoc
// @Summary List payments
// @Tags Payments
// @Produce json
// @Param student_id query string false "Filter by linked student"
// @Param status query string false "paid, pending, cancelled or absent"
// @Param unlinked query bool false "Only payments without a student"
// @Param from query string false "Receipt date from (YYYY-MM-DD)"
// @Param to query string false "Receipt date to (YYYY-MM-DD)"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /payments [get]
func (h *PaymentHandler) List(c *gin.Context) {
	filter := models.PaymentFilter{
		StudentID: strings.TrimSpace(c.Query("student_id")),
		Status:    models.PaymentStatus(strings.ToLower(strings.TrimSpace(c.Query("status")))),
	}
	unlinked, err := parseOptionalBool(c.Query("unlinked"))
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "unlinked must be true or false"))
		return
	}
	filter.Unlinked = unlinked != nil && *unlinked
	if filter.From, err = parseOptionalDate(c.Query("from")); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInvalidDate, "from must be formatted as YYYY-MM-DD"))
		return
	}
	if filter.To, err = parseOptionalDate(c.Query("to")); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInvalidDate, "to must be formatted as YYYY-MM-DD"))
		return
	}
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "50")); err == nil {
		filter.PageSize = size
	}

	payments, pagination, err := h.payments.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, payments, pagination)
}

// Record godoc
// @Summary Record a received payment
// @Tags Payments
// @Accept json
// @Produce json
// @Param payload body service.RecordPaymentRequest true "Payment payload"
// @Success 201 {object} response.Envelope
// @Router /payments [post]
func (h *PaymentHandler) Record(c *gin.Context) {
	var req service.RecordPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	payment, err := h.payments.Record(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, payment)
}

// UpdateStatus godoc
// @Summary Change payment status
// @Tags Payments
// @Accept json
// @Produce json
// @Param id path string true "Payment ID"
// @Param payload body service.UpdatePaymentStatusRequest true "Status payload"
// @Success 200 {object} response.Envelope
// @Router /payments/{id}/status [patch]
func (h *PaymentHandler) UpdateStatus(c *gin.Context) {
	var req service.UpdatePaymentStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	payment, err := h.payments.UpdateStatus(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, payment, nil)
}

// Delete godoc
// @Summary Delete a payment
// @Tags Payments
// @Param id path string true "Payment ID"
// @Success 204
// @Router /payments/{id} [delete]
func (h *PaymentHandler) Delete(c *gin.Context) {
	if err := h.payments.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// AutoLink godoc
// @Summary Link unlinked payments to students by payer name
// @Tags Payments
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /payments/auto-link [post]
func (h *PaymentHandler) AutoLink(c *gin.Context) {
	if h.linker == nil {
		response.Error(c, appErrors.ErrUnavailable)
		return
	}
	result, err := h.linker.AutoLink(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

func parseOptionalDate(raw string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
