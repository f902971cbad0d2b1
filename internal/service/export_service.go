package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/room-access-api/internal/dto"
	"github.com/noah-isme/room-access-api/internal/models"
	appErrors "github.com/noah-isme/room-access-api/pkg/errors"
	"github.com/noah-isme/room-access-api/pkg/export"
)

// ExportFormat selects the rendered file type.
type ExportFormat string

const (
	ExportFormatCSV ExportFormat = "csv"
	ExportFormatPDF ExportFormat = "pdf"
)

const exportTimeLayout = "2006-01-02 15:04:05"

type recordExportSource interface {
	ListForExport(ctx context.Context, filter models.AccessRecordFilter) ([]models.AccessRecordDetail, error)
}

type datasetRenderer interface {
	Render(data export.Dataset) ([]byte, error)
	ContentType() string
}

// ExportFile is a rendered export ready to be written out.
type ExportFile struct {
	Filename    string
	ContentType string
	Content     []byte
	Rows        int
}

var recordColumns = []export.Column{
	{Key: "recordId", Label: "Record ID", Weight: 1.6},
	{Key: "visitTime", Label: "Visit time", Weight: 1.2},
	{Key: "accessStatus", Label: "Status", Weight: 0.7},
	{Key: "reason", Label: "Reason", Weight: 0.9},
	{Key: "accessCode", Label: "Code", Weight: 0.8},
	{Key: "deviceId", Label: "Device", Weight: 0.9},
	{Key: "applicantName", Label: "Applicant", Weight: 1},
	{Key: "roomName", Label: "Room", Weight: 1},
	{Key: "requestType", Label: "Type", Weight: 0.8},
	{Key: "visitPurpose", Label: "Purpose", Weight: 1.2},
	{Key: "plannedEntryTime", Label: "Planned entry", Weight: 1.2},
	{Key: "plannedExitTime", Label: "Planned exit", Weight: 1.2},
}

// ExportService renders access records as CSV or PDF.
type ExportService struct {
	records recordExportSource
	csv     datasetRenderer
	pdf     datasetRenderer
	audit   auditLogger
	logger  *zap.Logger
	clock   Clock
}

// NewExportService constructs an ExportService. Nil renderers use the defaults.
func NewExportService(records recordExportSource, audit auditLogger, logger *zap.Logger, csv, pdf datasetRenderer) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	return &ExportService{records: records, csv: csv, pdf: pdf, audit: audit, logger: logger, clock: systemClock}
}

// ParseExportFormat validates a requested format; empty means csv.
func ParseExportFormat(raw string) (ExportFormat, error) {
	switch ExportFormat(strings.ToLower(strings.TrimSpace(raw))) {
	case "", ExportFormatCSV:
		return ExportFormatCSV, nil
	case ExportFormatPDF:
		return ExportFormatPDF, nil
	}
	return "", appErrors.WithDetails(appErrors.ErrValidation, "unsupported export format", map[string]string{"format": "oneof=csv pdf"})
}

// ExportRecords renders the access records visible to actor.
func (s *ExportService) ExportRecords(ctx context.Context, query dto.AccessRecordQuery, format ExportFormat, actor *models.JWTClaims) (*ExportFile, error) {
	filter, err := recordFilter(query, actor)
	if err != nil {
		return nil, err
	}
	renderer := s.csv
	if format == ExportFormatPDF {
		renderer = s.pdf
	}

	items, err := s.records.ListForExport(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load access records")
	}
	now := s.clock()
	content, err := renderer.Render(export.Dataset{
		Title:   fmt.Sprintf("Access records (%s UTC)", now.Format(exportTimeLayout)),
		Columns: recordColumns,
		Rows:    recordRows(items),
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render export")
	}

	emitAudit(ctx, s.audit, s.logger, &models.AuditLog{
		UserID:    &actor.UserID,
		Action:    models.AuditActionRecordsExport,
		Resource:  "access_record",
		NewValues: []byte(fmt.Sprintf(`{"format":%q,"rows":%d}`, format, len(items))),
	})
	return &ExportFile{
		Filename:    fmt.Sprintf("access-records-%s.%s", now.Format("20060102-150405"), format),
		ContentType: renderer.ContentType(),
		Content:     content,
		Rows:        len(items),
	}, nil
}

func recordRows(items []models.AccessRecordDetail) []map[string]string {
	rows := make([]map[string]string, 0, len(items))
	for _, item := range items {
		rows = append(rows, map[string]string{
			"recordId":         item.ID,
			"visitTime":        formatTime(&item.VisitTime),
			"accessStatus":     string(item.Status),
			"reason":           deref(item.Reason),
			"accessCode":       item.Code,
			"deviceId":         item.DeviceID,
			"applicantName":    deref(item.ApplicantName),
			"roomName":         deref(item.RoomName),
			"requestType":      deref(item.RequestType),
			"visitPurpose":     deref(item.VisitPurpose),
			"plannedEntryTime": formatTime(item.PlannedEntryTime),
			"plannedExitTime":  formatTime(item.PlannedExitTime),
		})
	}
	return rows
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func formatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return t.UTC().Format(exportTimeLayout)
}
