package service

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/arnoma/tutor-admin-api/internal/dto"
	"github.com/arnoma/tutor-admin-api/internal/ingest"
	"github.com/arnoma/tutor-admin-api/internal/models"
	"github.com/arnoma/tutor-admin-api/internal/reconcile"
	"github.com/arnoma/tutor-admin-api/pkg/export"
	"github.com/arnoma/tutor-admin-api/pkg/storage"
)

const paymentExportPageSize = 200

type rosterSource interface {
	ListActive(ctx context.Context) ([]models.Student, error)
}

type paymentLister interface {
	List(ctx context.Context, filter models.PaymentFilter) ([]models.Payment, int, error)
}

type ledgerSource interface {
	LedgerFor(ctx context.Context, student *models.Student) (*Ledger, error)
	BalanceFor(ledger *Ledger, today reconcile.Date) *dto.BalanceResponse
	Today() reconcile.Date
}

type fileStorage interface {
	Save(filename string, data []byte) (string, error)
	Open(filename string) (*os.File, error)
	Delete(filename string) error
	CleanupOlderThan(ttl time.Duration) ([]string, error)
}

// ExportConfig tunes export behaviour.
type ExportConfig struct {
	APIPrefix string
	ResultTTL time.Duration
}

// ExportResult captures successful generation metadata.
type ExportResult struct {
	RelativePath string
	Token        string
	URL          string
	Format       models.ReportFormat
	ExpiresAt    time.Time
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type titledRenderer interface {
	Render(data export.Dataset, title string) ([]byte, error)
}

// ExportService builds report datasets and persists rendered files.
type ExportService struct {
	students rosterSource
	payments paymentLister
	ledgers  ledgerSource
	storage  fileStorage
	csv      csvRenderer
	pdf      titledRenderer
	xlsx     titledRenderer
	signer   *storage.SignedURLSigner
	metrics  *MetricsService
	logger   *zap.Logger
	cfg      ExportConfig
}

// NewExportService constructs an ExportService rendering through the pkg/export encoders.
func NewExportService(students rosterSource, payments paymentLister, ledgers ledgerSource, store fileStorage, signer *storage.SignedURLSigner, metrics *MetricsService, cfg ExportConfig, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = 24 * time.Hour
	}
	return &ExportService{
		students: students,
		payments: payments,
		ledgers:  ledgers,
		storage:  store,
		csv:      export.NewCSVExporter(),
		pdf:      export.NewPDFExporter(),
		xlsx:     export.NewXLSXExporter(),
		signer:   signer,
		metrics:  metrics,
		logger:   logger,
		cfg:      cfg,
	}
}

// Generate builds the dataset for the job, renders it and stores the file.
func (s *ExportService) Generate(ctx context.Context, job *models.ReportJob) (*ExportResult, error) {
	if job == nil {
		return nil, fmt.Errorf("job nil")
	}
	dataset, title, err := s.BuildDataset(ctx, job.Type, job.Params)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	payload, err := s.Render(job.Params.Format, dataset, title)
	if err != nil {
		return nil, err
	}
	s.metrics.ObserveReportRender(string(job.Params.Format), time.Since(start))

	relPath, err := s.storage.Save(s.buildFilename(job), payload)
	if err != nil {
		return nil, err
	}

	token, expiresAt, err := s.signer.Generate(job.ID, relPath)
	if err != nil {
		return nil, err
	}
	prefix := strings.TrimRight(s.cfg.APIPrefix, "/")
	if prefix == "" {
		prefix = "/api/v1"
	}

	return &ExportResult{
		RelativePath: relPath,
		Token:        token,
		URL:          storage.DownloadURL(prefix, "/reports/download", token),
		Format:       job.Params.Format,
		ExpiresAt:    expiresAt,
	}, nil
}

// Render encodes a dataset in the requested format.
func (s *ExportService) Render(format models.ReportFormat, dataset export.Dataset, title string) ([]byte, error) {
	switch format {
	case models.ReportFormatCSV:
		return s.csv.Render(dataset)
	case models.ReportFormatPDF:
		return s.pdf.Render(dataset, title)
	case models.ReportFormatXLSX:
		return s.xlsx.Render(dataset, title)
	default:
		return nil, fmt.Errorf("unsupported format %s", format)
	}
}

// ParseToken validates download token metadata.
func (s *ExportService) ParseToken(token string, allowExpired bool) (jobID, relPath string, expiresAt time.Time, err error) {
	return s.signer.Parse(token, allowExpired)
}

// Open returns a handle to the stored file.
func (s *ExportService) Open(relPath string) (*os.File, error) {
	return s.storage.Open(relPath)
}

// Delete removes a stored export file.
func (s *ExportService) Delete(relPath string) error {
	return s.storage.Delete(relPath)
}

// Cleanup removes files older than ttl (defaults to configured ResultTTL when ttl <= 0).
func (s *ExportService) Cleanup(ttl time.Duration) ([]string, error) {
	if ttl <= 0 {
		ttl = s.cfg.ResultTTL
	}
	return s.storage.CleanupOlderThan(ttl)
}

// BuildDataset assembles the rows of a report without rendering them.
func (s *ExportService) BuildDataset(ctx context.Context, reportType models.ReportType, params models.ReportJobParams) (export.Dataset, string, error) {
	switch reportType {
	case models.ReportTypeUnpaid:
		return s.buildUnpaidDataset(ctx, params)
	case models.ReportTypePayments:
		return s.buildPaymentsDataset(ctx, params)
	default:
		return export.Dataset{}, "", fmt.Errorf("unsupported report type %s", reportType)
	}
}

var unpaidHeaders = []string{"Student", "Group", "Price", "Classes", "Unpaid Classes", "Unpaid Amount", "Unpaid Dates", "Credits", "Balance"}

func (s *ExportService) buildUnpaidDataset(ctx context.Context, params models.ReportJobParams) (export.Dataset, string, error) {
	asOf := s.ledgers.Today()
	if params.AsOf != "" {
		parsed, err := reconcile.ParseDate(params.AsOf)
		if err != nil {
			return export.Dataset{}, "", fmt.Errorf("as_of: %w", err)
		}
		asOf = parsed
	}
	group := ingest.CanonicalizeGroupCode(params.GroupLetter)

	students, err := s.students.ListActive(ctx)
	if err != nil {
		return export.Dataset{}, "", err
	}
	rows := make([]map[string]string, 0, len(students))
	unpaidClasses := 0
	unpaidTotal := decimal.Zero
	for i := range students {
		student := &students[i]
		studentGroup := ""
		if student.GroupLetter != nil {
			studentGroup = ingest.CanonicalizeGroupCode(*student.GroupLetter)
		}
		if group != "" && studentGroup != group {
			continue
		}
		ledger, err := s.ledgers.LedgerFor(ctx, student)
		if err != nil {
			return export.Dataset{}, "", fmt.Errorf("ledger for %s: %w", student.ID, err)
		}
		balance := s.ledgers.BalanceFor(ledger, asOf)
		dates := make([]string, 0, len(balance.Unpaid.UnpaidDates))
		for _, d := range balance.Unpaid.UnpaidDates {
			dates = append(dates, d.String())
		}
		unpaidClasses += balance.Unpaid.UnpaidCount
		unpaidTotal = unpaidTotal.Add(balance.Unpaid.UnpaidAmount)
		rows = append(rows, map[string]string{
			"Student":        student.Name,
			"Group":          studentGroup,
			"Price":          ledger.Account.PricePerClass.StringFixed(2),
			"Classes":        fmt.Sprintf("%d", balance.Unpaid.TotalClasses),
			"Unpaid Classes": fmt.Sprintf("%d", balance.Unpaid.UnpaidCount),
			"Unpaid Amount":  balance.Unpaid.UnpaidAmount.StringFixed(2),
			"Unpaid Dates":   strings.Join(dates, " "),
			"Credits":        fmt.Sprintf("%d", balance.Unpaid.CreditCount),
			"Balance":        student.Balance.StringFixed(2),
		})
	}

	title := fmt.Sprintf("Unpaid balances %s", asOf)
	if group != "" {
		title = fmt.Sprintf("Unpaid balances %s group %s", asOf, group)
	}
	return export.Dataset{
		Headers: unpaidHeaders,
		Rows:    rows,
		Numeric: []string{"Price", "Classes", "Unpaid Classes", "Unpaid Amount", "Credits", "Balance"},
		Totals: map[string]string{
			"Student":        "Total",
			"Unpaid Classes": fmt.Sprintf("%d", unpaidClasses),
			"Unpaid Amount":  unpaidTotal.StringFixed(2),
		},
	}, title, nil
}

var paymentHeaders = []string{"Date", "For Class", "Time", "Payer", "Student ID", "Amount", "Status", "Note"}

func (s *ExportService) buildPaymentsDataset(ctx context.Context, params models.ReportJobParams) (export.Dataset, string, error) {
	filter := models.PaymentFilter{PageSize: paymentExportPageSize}
	if raw := params.Extras["from"]; raw != "" {
		from, err := time.Parse("2006-01-02", raw)
		if err != nil {
			return export.Dataset{}, "", fmt.Errorf("from: %w", err)
		}
		filter.From = &from
	}
	if raw := params.Extras["to"]; raw != "" {
		to, err := time.Parse("2006-01-02", raw)
		if err != nil {
			return export.Dataset{}, "", fmt.Errorf("to: %w", err)
		}
		filter.To = &to
	}
	filter.Status = models.PaymentStatus(params.Extras["status"])

	rows := make([]map[string]string, 0)
	total := decimal.Zero
	for page := 1; ; page++ {
		filter.Page = page
		payments, count, err := s.payments.List(ctx, filter)
		if err != nil {
			return export.Dataset{}, "", err
		}
		for _, p := range payments {
			total = total.Add(p.Amount)
			rows = append(rows, map[string]string{
				"Date":       p.Date.Format("2006-01-02"),
				"For Class":  formatOptionalDate(p.ForClass),
				"Time":       derefString(p.Time),
				"Payer":      p.PayerName,
				"Student ID": derefString(p.StudentID),
				"Amount":     p.Amount.StringFixed(2),
				"Status":     string(p.Status),
				"Note":       derefString(p.Note),
			})
		}
		if len(payments) < paymentExportPageSize || page*paymentExportPageSize >= count {
			break
		}
	}
	return export.Dataset{
		Headers: paymentHeaders,
		Rows:    rows,
		Numeric: []string{"Amount"},
		Totals:  map[string]string{"Payer": fmt.Sprintf("Total (%d)", len(rows)), "Amount": total.StringFixed(2)},
	}, "Payment ledger", nil
}

func (s *ExportService) buildFilename(job *models.ReportJob) string {
	timestamp := time.Now().UTC().Format("20060102_150405")
	scope := sanitizeFilename(job.Params.GroupLetter)
	return fmt.Sprintf("%s_%s_%s.%s", strings.ToLower(string(job.Type)), scope, timestamp, job.Params.Format)
}

func sanitizeFilename(raw string) string {
	if raw == "" {
		return "all"
	}
	replacer := strings.NewReplacer(" ", "_", "/", "-", "\\", "-", ":", "-", "..", ".", "__", "_")
	result := replacer.Replace(raw)
	if len(result) > 100 {
		return result[:100]
	}
	return result
}

func derefString(ptr *string) string {
	if ptr == nil {
		return ""
	}
	return *ptr
}

func formatOptionalDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format("2006-01-02")
}
