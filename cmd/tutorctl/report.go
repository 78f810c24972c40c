package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/arnoma/tutor-admin-api/internal/app"
	"github.com/arnoma/tutor-admin-api/internal/dto"
	"github.com/arnoma/tutor-admin-api/internal/models"
	"github.com/arnoma/tutor-admin-api/pkg/storage"
)

const (
	reportSourceCLI    = "cli"
	reportPollInterval = 500 * time.Millisecond
)

type reportFlags struct {
	reportType string
	format     string
	group      string
	asOf       string
	from       string
	to         string
	status     string
	out        string
	queue      bool
}

func reportCmd(state *cli) *cobra.Command {
	var flags reportFlags
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Export the unpaid balances or payment ledger report",
		Long: `Renders a report to a file. With --queue the report goes through the background
job pipeline and is recorded in report_jobs like an API request.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			req, err := flags.request()
			if err != nil {
				return err
			}
			a, err := state.connect()
			if err != nil {
				return err
			}
			var data []byte
			if flags.queue {
				data, err = runQueuedReport(cmd.Context(), a, req)
			} else {
				data, err = renderReport(cmd.Context(), a, req)
			}
			if err != nil {
				return err
			}
			return writeOutput(cmd.OutOrStdout(), flags.outputPath(req), data)
		},
	}
	f := cmd.Flags()
	f.StringVar(&flags.reportType, "type", string(models.ReportTypeUnpaid), "report type (unpaid-balances, payments)")
	f.StringVar(&flags.format, "format", string(models.ReportFormatCSV), "output format (csv, pdf, xlsx)")
	f.StringVar(&flags.group, "group", "", "only students of this group (unpaid-balances)")
	f.StringVar(&flags.asOf, "as-of", "", "balance date YYYY-MM-DD (unpaid-balances); defaults to today")
	f.StringVar(&flags.from, "from", "", "first receipt date YYYY-MM-DD (payments)")
	f.StringVar(&flags.to, "to", "", "last receipt date YYYY-MM-DD (payments)")
	f.StringVar(&flags.status, "status", "", "payment status filter (payments)")
	f.StringVarP(&flags.out, "out", "o", "", "output file; '-' writes to stdout")
	f.BoolVar(&flags.queue, "queue", false, "run through the report job queue")
	return cmd
}

func (f reportFlags) request() (dto.ReportRequest, error) {
	req := dto.ReportRequest{
		Type:        models.ReportType(strings.ToLower(strings.TrimSpace(f.reportType))),
		Format:      models.ReportFormat(strings.ToLower(strings.TrimSpace(f.format))),
		GroupLetter: strings.TrimSpace(f.group),
		AsOf:        strings.TrimSpace(f.asOf),
	}
	switch req.Type {
	case models.ReportTypeUnpaid, models.ReportTypePayments:
	default:
		return req, fmt.Errorf("unknown report type %q", f.reportType)
	}
	switch req.Format {
	case models.ReportFormatCSV, models.ReportFormatPDF, models.ReportFormatXLSX:
	default:
		return req, fmt.Errorf("unknown format %q", f.format)
	}
	for name, raw := range map[string]string{"as-of": req.AsOf, "from": f.from, "to": f.to} {
		if raw == "" {
			continue
		}
		if _, err := time.Parse("2006-01-02", raw); err != nil {
			return req, fmt.Errorf("--%s must be formatted as YYYY-MM-DD", name)
		}
	}
	filters := map[string]string{}
	if f.from != "" {
		filters["from"] = f.from
	}
	if f.to != "" {
		filters["to"] = f.to
	}
	if f.status != "" {
		filters["status"] = strings.ToLower(f.status)
	}
	if len(filters) > 0 {
		req.Filters = filters
	}
	return req, nil
}

func (f reportFlags) outputPath(req dto.ReportRequest) string {
	if f.out != "" {
		return f.out
	}
	return fmt.Sprintf("%s_%s.%s", req.Type, time.Now().Format("20060102_150405"), req.Format)
}

func renderReport(ctx context.Context, a *app.App, req dto.ReportRequest) ([]byte, error) {
	params := models.ReportJobParams{Format: req.Format, GroupLetter: req.GroupLetter, AsOf: req.AsOf, Extras: req.Filters}
	dataset, title, err := a.Exports.BuildDataset(ctx, req.Type, params)
	if err != nil {
		return nil, err
	}
	return a.Exports.Render(req.Format, dataset, title)
}

func runQueuedReport(ctx context.Context, a *app.App, req dto.ReportRequest) ([]byte, error) {
	a.Queue.Start(ctx)
	job, err := a.Reports.CreateJob(ctx, req, reportSourceCLI)
	if err != nil {
		return nil, err
	}
	ticker := time.NewTicker(reportPollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
		status, err := a.Reports.GetStatus(ctx, job.ID)
		if err != nil {
			return nil, err
		}
		switch status.Status {
		case models.ReportStatusFailed:
			msg := "unknown error"
			if status.Error != nil {
				msg = *status.Error
			}
			return nil, fmt.Errorf("report job %s failed: %s", job.ID, msg)
		case models.ReportStatusFinished:
			if status.ResultURL == nil {
				return nil, fmt.Errorf("report job %s finished without a file", job.ID)
			}
			token, err := storage.TokenFromURL(*status.ResultURL)
			if err != nil {
				return nil, err
			}
			download, err := a.Reports.ResolveDownload(ctx, token)
			if err != nil {
				return nil, err
			}
			defer download.File.Close()
			return io.ReadAll(download.File)
		}
	}
}

func writeOutput(stdout io.Writer, path string, data []byte) error {
	if path == "-" {
		_, err := stdout.Write(data)
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	fmt.Fprintf(stdout, "wrote %s (%d bytes)\n", path, len(data))
	return nil
}
