package service

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/room-access-api/internal/dto"
	"github.com/noah-isme/room-access-api/internal/models"
	appErrors "github.com/noah-isme/room-access-api/pkg/errors"
)

type exportSourceStub struct {
	filter models.AccessRecordFilter
	items  []models.AccessRecordDetail
}

func (s *exportSourceStub) ListForExport(_ context.Context, filter models.AccessRecordFilter) ([]models.AccessRecordDetail, error) {
	s.filter = filter
	return s.items, nil
}

type auditStub struct {
	logs []*models.AuditLog
}

func (a *auditStub) CreateAuditLog(_ context.Context, log *models.AuditLog) error {
	a.logs = append(a.logs, log)
	return nil
}

func exportFixture() (*ExportService, *exportSourceStub, *auditStub) {
	visit := time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)
	reason := "ALREADY_USED"
	room := "Lab A"
	source := &exportSourceStub{items: []models.AccessRecordDetail{
		{AccessRecord: models.AccessRecord{ID: "rec-1", Code: "ABCD2345", DeviceID: "gate-1", VisitTime: visit, Status: models.RecordStatusGranted}, RoomName: &room},
		{AccessRecord: models.AccessRecord{ID: "rec-2", Code: "ABCD2345", DeviceID: "gate-1", VisitTime: visit.Add(time.Minute), Status: models.RecordStatusDenied, Reason: &reason}},
	}}
	audit := &auditStub{}
	svc := NewExportService(source, audit, zap.NewNop(), nil, nil)
	svc.clock = func() time.Time { return visit.Add(time.Hour) }
	return svc, source, audit
}

func TestExportServiceCSV(t *testing.T) {
	svc, source, audit := exportFixture()

	file, err := svc.ExportRecords(context.Background(), dto.AccessRecordQuery{}, ExportFormatCSV, managerActor)
	require.NoError(t, err)
	assert.Equal(t, "access-records-20260302-103000.csv", file.Filename)
	assert.Equal(t, "text/csv; charset=utf-8", file.ContentType)
	assert.Equal(t, 2, file.Rows)
	assert.Equal(t, managerID, source.filter.ManagerID)

	lines := strings.Split(strings.TrimSpace(string(file.Content)), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "Record ID,Visit time,Status"))
	assert.True(t, strings.HasPrefix(lines[1], "rec-1,2026-03-02 09:30:00,GRANTED,,ABCD2345,gate-1,,Lab A"))
	assert.Contains(t, lines[2], "DENIED,ALREADY_USED")

	require.Len(t, audit.logs, 1)
	assert.Equal(t, models.AuditActionRecordsExport, audit.logs[0].Action)
}

func TestExportServicePDF(t *testing.T) {
	svc, _, _ := exportFixture()

	file, err := svc.ExportRecords(context.Background(), dto.AccessRecordQuery{}, ExportFormatPDF, adminActor)
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", file.ContentType)
	assert.True(t, bytes.HasPrefix(file.Content, []byte("%PDF")))
}

func TestExportServiceScopesAndFormats(t *testing.T) {
	svc, source, _ := exportFixture()

	_, err := svc.ExportRecords(context.Background(), dto.AccessRecordQuery{}, ExportFormatCSV, applicantActor)
	require.NoError(t, err)
	assert.Equal(t, applicantID, source.filter.ApplicantID)

	_, err = svc.ExportRecords(context.Background(), dto.AccessRecordQuery{}, ExportFormatCSV, nil)
	assert.True(t, errors.Is(err, appErrors.ErrUnauthorized))

	format, err := ParseExportFormat(" PDF ")
	require.NoError(t, err)
	assert.Equal(t, ExportFormatPDF, format)
	format, err = ParseExportFormat("")
	require.NoError(t, err)
	assert.Equal(t, ExportFormatCSV, format)
	_, err = ParseExportFormat("xlsx")
	assert.True(t, errors.Is(err, appErrors.ErrValidation))
}
