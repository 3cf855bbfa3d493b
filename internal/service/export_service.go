package service

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/pbcdev/attend-sync/internal/models"
	"github.com/pbcdev/attend-sync/pkg/config"
	appErrors "github.com/pbcdev/attend-sync/pkg/errors"
	"github.com/pbcdev/attend-sync/pkg/export"
)

type recordLister interface {
	List(ctx context.Context, filter models.RecordFilter) ([]models.AttendanceRecord, int, error)
}

// ExportFormat names a supported review-sheet format.
type ExportFormat string

const (
	FormatCSV ExportFormat = "csv"
	FormatPDF ExportFormat = "pdf"
)

// ExportResult carries rendered export bytes with their HTTP metadata.
type ExportResult struct {
	Content     []byte
	ContentType string
	Filename    string
}

// ExportService renders filtered attendance records into downloadable review
// sheets.
type ExportService struct {
	records recordLister
	csv     *export.CSVExporter
	pdf     *export.PDFExporter
	cfg     config.ExportConfig
	logger  *zap.Logger
}

// NewExportService constructs the export service.
func NewExportService(records recordLister, cfg config.ExportConfig, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExportService{
		records: records,
		csv:     export.NewCSVExporter(),
		pdf:     export.NewPDFExporter(),
		cfg:     cfg,
		logger:  logger,
	}
}

// Export renders records matching the filter, capped at the configured row
// limit.
func (s *ExportService) Export(ctx context.Context, format ExportFormat, filter models.RecordFilter) (*ExportResult, error) {
	filter.Page = 1
	filter.PageSize = s.cfg.MaxRows

	records, total, err := s.records.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "list records for export")
	}
	if total > len(records) {
		s.logger.Warn("export truncated", zap.Int("total", total), zap.Int("exported", len(records)))
	}

	dataset := buildDataset(records)
	switch format {
	case FormatCSV:
		content, err := s.csv.Render(dataset)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "render csv")
		}
		return &ExportResult{Content: content, ContentType: "text/csv", Filename: "attendance-records.csv"}, nil
	case FormatPDF:
		content, err := s.pdf.Render(dataset, "Attendance Review Sheet")
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "render pdf")
		}
		return &ExportResult{Content: content, ContentType: "application/pdf", Filename: "attendance-records.pdf"}, nil
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported export format %q", format))
	}
}

func buildDataset(records []models.AttendanceRecord) export.Dataset {
	headers := []string{"Student", "Course", "Term", "Meeting", "Status", "Review", "Note", "Rejection Reason"}
	rows := make([]map[string]string, 0, len(records))
	for _, record := range records {
		meeting := ""
		if record.MeetingStartTime != nil {
			meeting = record.MeetingStartTime.Format("2006-01-02 15:04")
		}
		rows = append(rows, map[string]string{
			"Student":          strings.TrimSpace(record.FirstName + " " + record.LastName),
			"Course":           record.CourseName,
			"Term":             record.TermName,
			"Meeting":          meeting,
			"Status":           string(record.Status),
			"Review":           string(record.ReviewStatus),
			"Note":             record.Note,
			"Rejection Reason": record.RejectionReason,
		})
	}
	return export.Dataset{Headers: headers, Rows: rows}
}
