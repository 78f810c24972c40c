package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/arnoma/tutor-admin-api/internal/dto"
	"github.com/arnoma/tutor-admin-api/internal/middleware"
	"github.com/arnoma/tutor-admin-api/internal/models"
	"github.com/arnoma/tutor-admin-api/internal/reconcile"
	appErrors "github.com/arnoma/tutor-admin-api/pkg/errors"
	"github.com/arnoma/tutor-admin-api/pkg/response"
)

type reconciliationService interface {
	Today() reconcile.Date
	MonthCalendar(ctx context.Context, studentID, month string) (*dto.MonthCalendar, bool, error)
	ClassStatus(ctx context.Context, studentID, date string) (*dto.ClassStatusResponse, error)
	Balance(ctx context.Context, studentID string) (*dto.BalanceResponse, bool, error)
	AddMarker(ctx context.Context, studentID string, req dto.MarkerRequest) (*models.ClassMarker, error)
}

// ReconciliationHandler serves per-student class and balance views.
type ReconciliationHandler struct {
	service reconciliationService
}

// NewReconciliationHandler constructs the handler.
func NewReconciliationHandler(service reconciliationService) *ReconciliationHandler {
	return &ReconciliationHandler{service: service}
}

// Calendar godoc
// @Summary Classified class dates of one month
// @Tags Reconciliation
// @Produce json
// @Param id path string true "Student ID"
// @Param month query string false "Month (YYYY-MM). Defaults to the current month"
// @Success 200 {object} response.Envelope
// @Router /students/{id}/calendar [get]
func (h *ReconciliationHandler) Calendar(c *gin.Context) {
	month := strings.TrimSpace(c.Query("month"))
	if month == "" {
		month = h.service.Today().Time().Format("2006-01")
	}
	start := time.Now()
	calendar, hit, err := h.service.MonthCalendar(c.Request.Context(), c.Param("id"), month)
	if err != nil {
		response.Error(c, err)
		return
	}
	respondWithCacheMeta(c, calendar, hit, start)
}

// ClassStatus godoc
// @Summary Payment status of a single class date
// @Tags Reconciliation
// @Produce json
// @Param id path string true "Student ID"
// @Param date path string true "Class date (YYYY-MM-DD)"
// @Success 200 {object} response.Envelope
// @Router /students/{id}/classes/{date} [get]
func (h *ReconciliationHandler) ClassStatus(c *gin.Context) {
	status, err := h.service.ClassStatus(c.Request.Context(), c.Param("id"), c.Param("date"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, status, nil)
}

// Balance godoc
// @Summary Unpaid classes and payment summary
// @Tags Reconciliation
// @Produce json
// @Param id path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Router /students/{id}/balance [get]
func (h *ReconciliationHandler) Balance(c *gin.Context) {
	start := time.Now()
	balance, hit, err := h.service.Balance(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	respondWithCacheMeta(c, balance, hit, start)
}

// AddMarker godoc
// @Summary Mark a class date absent, credited or skipped
// @Tags Reconciliation
// @Accept json
// @Produce json
// @Param id path string true "Student ID"
// @Param payload body dto.MarkerRequest true "Marker payload"
// @Success 201 {object} response.Envelope
// @Router /students/{id}/markers [post]
func (h *ReconciliationHandler) AddMarker(c *gin.Context) {
	var req dto.MarkerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	marker, err := h.service.AddMarker(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, marker)
}

func respondWithCacheMeta(c *gin.Context, data interface{}, hit bool, start time.Time) {
	middleware.SetCacheHit(c, hit)
	meta := middleware.ResponseMeta(c)
	if _, ok := meta["processing_time_ms"]; !ok {
		meta["processing_time_ms"] = time.Since(start).Milliseconds()
	}
	response.JSON(c, http.StatusOK, data, nil, meta)
}
