package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-gradebook-api/internal/models"
	appErrors "github.com/noah-isme/sma-gradebook-api/pkg/errors"
	"github.com/noah-isme/sma-gradebook-api/pkg/export"
)

// ExportFormat names a rendered summary table format.
type ExportFormat string

const (
	ExportCSV ExportFormat = "csv"
	ExportPDF ExportFormat = "pdf"
)

const exportPageSize = 500

type summaryLister interface {
	ListSummaries(ctx context.Context, filter models.ScoreFilter) ([]models.StudentSummary, *models.Pagination, error)
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset, title string) ([]byte, error)
}

// ExportConfig tunes export behaviour.
type ExportConfig struct {
	Enabled bool
}

// ExportFile is a rendered export ready to be sent as an attachment.
type ExportFile struct {
	Filename    string
	ContentType string
	Data        []byte
}

// ExportService renders the summary table of an institution.
type ExportService struct {
	configs   gradingConfigProvider
	summaries summaryLister
	csv       csvRenderer
	pdf       pdfRenderer
	logger    *zap.Logger
	cfg       ExportConfig
}

// NewExportService constructs an ExportService.
func NewExportService(configs gradingConfigProvider, summaries summaryLister, cfg ExportConfig, logger *zap.Logger, csv csvRenderer, pdf pdfRenderer) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter(export.WithCellStyler(statusFill))
	}
	return &ExportService{configs: configs, summaries: summaries, csv: csv, pdf: pdf, logger: logger, cfg: cfg}
}

// Export renders every summary of the institution in the requested format.
func (s *ExportService) Export(ctx context.Context, institutionID string, format ExportFormat) (*ExportFile, error) {
	if !s.cfg.Enabled {
		return nil, appErrors.ErrExportsDisabled
	}
	format = ExportFormat(strings.ToLower(string(format)))
	if format != ExportCSV && format != ExportPDF {
		return nil, appErrors.Clone(appErrors.ErrUnsupportedFormat, fmt.Sprintf("unsupported export format %q", format))
	}

	cfg, err := s.configs.Get(ctx, institutionID)
	if err != nil {
		return nil, err
	}
	rows, err := s.collect(ctx, institutionID)
	if err != nil {
		return nil, err
	}
	dataset := buildSummaryDataset(cfg, rows)
	title := fmt.Sprintf("Annual Summary %s", institutionID)

	file := &ExportFile{Filename: buildExportFilename(institutionID, format)}
	switch format {
	case ExportCSV:
		file.ContentType = "text/csv"
		file.Data, err = s.csv.Render(dataset)
	case ExportPDF:
		file.ContentType = "application/pdf"
		file.Data, err = s.pdf.Render(dataset, title)
	}
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render export")
	}

	s.logger.Info("summary export rendered",
		zap.String("institution_id", institutionID),
		zap.String("format", string(format)),
		zap.Int("rows", len(rows)),
	)
	return file, nil
}

func (s *ExportService) collect(ctx context.Context, institutionID string) ([]models.StudentSummary, error) {
	var all []models.StudentSummary
	for page := 1; ; page++ {
		rows, pagination, err := s.summaries.ListSummaries(ctx, models.ScoreFilter{InstitutionID: institutionID, Page: page, PageSize: exportPageSize})
		if err != nil {
			return nil, err
		}
		all = append(all, rows...)
		if len(rows) == 0 || pagination == nil || len(all) >= pagination.TotalCount {
			return all, nil
		}
	}
}

func buildSummaryDataset(cfg *models.GradingConfig, rows []models.StudentSummary) export.Dataset {
	periods := cfg.RegularPeriods()
	headers := []string{"Student ID"}
	for _, p := range periods {
		headers = append(headers, p.Name)
	}
	headers = append(headers, "Base Total", "Council Bonus", "Annual Total", "Status", "Points Needed", "Notes")

	dataRows := make([]map[string]string, 0, len(rows))
	for _, row := range rows {
		data := map[string]string{"Student ID": row.StudentID}
		if row.Error != "" {
			data["Notes"] = row.Error
			dataRows = append(dataRows, data)
			continue
		}
		summary := row.Summary
		totals := make(map[string]float64, len(summary.PeriodTotals))
		for _, pt := range summary.PeriodTotals {
			totals[pt.PeriodID] = pt.Total
		}
		for _, p := range periods {
			data[p.Name] = formatScore(totals[p.ID])
		}
		data["Base Total"] = formatScore(summary.BaseTotal)
		data["Council Bonus"] = formatScore(summary.CouncilBonus)
		data["Annual Total"] = formatScore(summary.AnnualTotal)
		data["Status"] = string(summary.Status)
		if !summary.Status.Passing() {
			data["Points Needed"] = formatScore(summary.PointsNeeded)
		}
		dataRows = append(dataRows, data)
	}
	return export.Dataset{Headers: headers, Rows: dataRows}
}

func statusFill(header, value string) (export.Fill, bool) {
	if header != "Status" {
		return export.Fill{}, false
	}
	switch models.PromotionStatus(value) {
	case models.StatusDirectApproved, models.StatusFinalApproved, models.StatusRecoveryApproved:
		return export.Fill{R: 204, G: 235, B: 204}, true
	case models.StatusFinalPending, models.StatusRecoveryPending:
		return export.Fill{R: 255, G: 236, B: 179}, true
	case models.StatusFailed:
		return export.Fill{R: 245, G: 199, B: 199}, true
	}
	return export.Fill{}, false
}

func formatScore(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func buildExportFilename(institutionID string, format ExportFormat) string {
	timestamp := time.Now().UTC().Format("20060102_150405")
	return fmt.Sprintf("summaries_%s_%s.%s", sanitizeFilename(institutionID), timestamp, format)
}

func sanitizeFilename(raw string) string {
	if raw == "" {
		return "na"
	}
	replacer := strings.NewReplacer(" ", "_", "/", "-", "\\", "-", ":", "-", "..", ".", "__", "_", "\"", "")
	result := replacer.Replace(raw)
	if len(result) > 100 {
		return result[:100]
	}
	return result
}
