package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// ReportType names an export a report job renders.
type ReportType string

const (
	ReportTypeUnpaid   ReportType = "unpaid-balances"
	ReportTypePayments ReportType = "payments"
)

// Valid reports whether t is a known report type.
func (t ReportType) Valid() bool {
	return t == ReportTypeUnpaid || t == ReportTypePayments
}

// ReportFormat is the file encoding of a rendered report.
type ReportFormat string

const (
	ReportFormatCSV  ReportFormat = "csv"
	ReportFormatPDF  ReportFormat = "pdf"
	ReportFormatXLSX ReportFormat = "xlsx"
)

var reportContentTypes = map[ReportFormat]string{
	ReportFormatCSV:  "text/csv",
	ReportFormatPDF:  "application/pdf",
	ReportFormatXLSX: "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
}

// Valid reports whether f is a supported format.
func (f ReportFormat) Valid() bool {
	_, ok := reportContentTypes[f]
	return ok
}

// ContentType is the MIME type served for downloads of this format.
func (f ReportFormat) ContentType() string {
	if ct, ok := reportContentTypes[f]; ok {
		return ct
	}
	return "application/octet-stream"
}

// ReportStatus is the lifecycle state of a report job:
// QUEUED -> PROCESSING -> FINISHED | FAILED, with PROCESSING -> QUEUED on a retryable failure.
type ReportStatus string

const (
	ReportStatusQueued     ReportStatus = "QUEUED"
	ReportStatusProcessing ReportStatus = "PROCESSING"
	ReportStatusFinished   ReportStatus = "FINISHED"
	ReportStatusFailed     ReportStatus = "FAILED"
)

// Terminal reports whether no further transition is expected.
func (s ReportStatus) Terminal() bool {
	return s == ReportStatusFinished || s == ReportStatusFailed
}

// ReportJob is a row of report_jobs.
type ReportJob struct {
	ID           string          `db:"id" json:"id"`
	Type         ReportType      `db:"type" json:"type"`
	Params       ReportJobParams `db:"params" json:"params"`
	Status       ReportStatus    `db:"status" json:"status"`
	Progress     int             `db:"progress" json:"progress"`
	ResultURL    *string         `db:"result_url" json:"result_url,omitempty"`
	CreatedBy    string          `db:"created_by" json:"created_by"`
	CreatedAt    time.Time       `db:"created_at" json:"created_at"`
	FinishedAt   *time.Time      `db:"finished_at" json:"finished_at,omitempty"`
	ErrorMessage *string         `db:"error_message" json:"error_message,omitempty"`
}

// ReportJobParams is stored in the params JSONB column.
type ReportJobParams struct {
	Format      ReportFormat `json:"format"`
	GroupLetter string       `json:"group_letter,omitempty"`
	// AsOf is the YYYY-MM-DD reconciliation date; empty means the day the job runs.
	AsOf string `json:"as_of,omitempty"`
	// Extras carries the payment ledger filters: from, to and status.
	Extras map[string]string `json:"extras,omitempty"`
}

// Value implements driver.Valuer.
func (p ReportJobParams) Value() (driver.Value, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshal report job params: %w", err)
	}
	return data, nil
}

// Scan implements sql.Scanner. NULL and empty payloads decode to zero params.
func (p *ReportJobParams) Scan(value interface{}) error {
	*p = ReportJobParams{}
	var data []byte
	switch v := value.(type) {
	case nil:
		return nil
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("report job params: unsupported column type %T", value)
	}
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, p); err != nil {
		return fmt.Errorf("unmarshal report job params: %w", err)
	}
	return nil
}
