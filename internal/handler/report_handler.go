package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/arnoma/tutor-admin-api/internal/dto"
	"github.com/arnoma/tutor-admin-api/internal/models"
	"github.com/arnoma/tutor-admin-api/internal/service"
	appErrors "github.com/arnoma/tutor-admin-api/pkg/errors"
	"github.com/arnoma/tutor-admin-api/pkg/response"
)

const reportSourceAPI = "api"

type reportService interface {
	CreateJob(ctx context.Context, req dto.ReportRequest, source string) (*dto.ReportJobResponse, error)
	GetStatus(ctx context.Context, id string) (*dto.ReportStatusResponse, error)
	ResolveDownload(ctx context.Context, token string) (*service.ReportDownload, error)
}

// ReportHandler queues report exports and serves their files.
type ReportHandler struct {
	reports reportService
}

// NewReportHandler constructs handler.
func NewReportHandler(reports reportService) *ReportHandler {
	return &ReportHandler{reports: reports}
}

// Unpaid godoc
// @Summary Queue the unpaid balances report
// @Tags Reports
// @Accept json
// @Produce json
// @Param format query string false "csv, pdf or xlsx"
// @Param payload body dto.ReportRequest false "Report options"
// @Success 202 {object} response.Envelope
// @Router /reports/unpaid [post]
func (h *ReportHandler) Unpaid(c *gin.Context) {
	h.enqueue(c, models.ReportTypeUnpaid)
}

// Payments godoc
// @Summary Queue the payment ledger report
// @Tags Reports
// @Accept json
// @Produce json
// @Param format query string false "csv, pdf or xlsx"
// @Param payload body dto.ReportRequest false "Report options"
// @Success 202 {object} response.Envelope
// @Router /reports/payments [post]
func (h *ReportHandler) Payments(c *gin.Context) {
	h.enqueue(c, models.ReportTypePayments)
}

func (h *ReportHandler) enqueue(c *gin.Context, reportType models.ReportType) {
	var req dto.ReportRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	req.Type = reportType
	if format := strings.TrimSpace(c.Query("format")); format != "" {
		req.Format = models.ReportFormat(strings.ToLower(format))
	}
	if req.Format == "" {
		req.Format = models.ReportFormatCSV
	}
	job, err := h.reports.CreateJob(c.Request.Context(), req, reportSourceAPI)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Accepted(c, job)
}

// Status godoc
// @Summary Report job status
// @Tags Reports
// @Produce json
// @Param id path string true "Job ID"
// @Success 200 {object} response.Envelope
// @Router /reports/{id} [get]
func (h *ReportHandler) Status(c *gin.Context) {
	status, err := h.reports.GetStatus(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, status, nil)
}

// Download godoc
// @Summary Download a finished report
// @Tags Reports
// @Produce octet-stream
// @Param token query string true "Signed download token"
// @Success 200 {file} file
// @Router /reports/download [get]
func (h *ReportHandler) Download(c *gin.Context) {
	token := strings.TrimSpace(c.Query("token"))
	if token == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "token is required"))
		return
	}
	download, err := h.reports.ResolveDownload(c.Request.Context(), token)
	if err != nil {
		response.Error(c, err)
		return
	}
	defer download.File.Close()

	info, err := download.File.Stat()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read report file"))
		return
	}
	c.DataFromReader(http.StatusOK, info.Size(), download.Format.ContentType(), download.File, map[string]string{
		"Content-Disposition": fmt.Sprintf(`attachment; filename="%s"`, download.Filename),
	})
}
