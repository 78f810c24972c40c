package dto

import "github.com/arnoma/tutor-admin-api/internal/models"

// ReportRequest captures the payload of POST /reports/unpaid and /reports/payments.
type ReportRequest struct {
	Type        models.ReportType   `json:"type"`
	Format      models.ReportFormat `json:"format"`
	GroupLetter string              `json:"group_letter,omitempty"`
	AsOf        string              `json:"as_of,omitempty" validate:"omitempty,datetime=2006-01-02"`
	// Filters narrows the payment ledger: from, to (YYYY-MM-DD) and status.
	Filters map[string]string `json:"filters,omitempty"`
}

// ReportJobResponse is returned after enqueueing a report.
type ReportJobResponse struct {
	ID       string              `json:"id"`
	Status   models.ReportStatus `json:"status"`
	Progress int                 `json:"progress"`
}

// ReportStatusResponse exposes job progress metadata.
type ReportStatusResponse struct {
	ID        string              `json:"id"`
	Type      models.ReportType   `json:"type"`
	Status    models.ReportStatus `json:"status"`
	Progress  int                 `json:"progress"`
	ResultURL *string             `json:"result_url,omitempty"`
	Error     *string             `json:"error,omitempty"`
}
