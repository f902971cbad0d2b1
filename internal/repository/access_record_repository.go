package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/room-access-api/internal/models"
)

const accessRecordDetailSelect = `SELECT rec.id, rec.code, rec.request_id, rec.approval_id, rec.device_id, rec.event_id,
       rec.visit_time, rec.status, rec.reason, rec.created_at,
       u.nickname AS applicant_name, r.name AS room_name, ar.request_type, ar.visit_purpose,
       ar.planned_entry_time, ar.planned_exit_time
FROM access_records rec
LEFT JOIN access_requests ar ON ar.id = rec.request_id
LEFT JOIN rooms r ON r.id = ar.room_id
LEFT JOIN users u ON u.id = ar.applicant_id`

// maxExportRows bounds a single export.
const maxExportRows = 10000

// AccessRecordRepository appends and reads gate access records.
type AccessRecordRepository struct {
	db *sqlx.DB
}

// NewAccessRecordRepository constructs the repository.
func NewAccessRecordRepository(db *sqlx.DB) *AccessRecordRepository {
	return &AccessRecordRepository{db: db}
}

// Append inserts a record. A record carrying an event id already stored for
// the same device is not inserted and ErrDuplicateEvent is returned.
func (r *AccessRecordRepository) Append(ctx context.Context, record *models.AccessRecord) error {
	return insertAccessRecord(ctx, r.db, record)
}

func insertAccessRecord(ctx context.Context, exec sqlx.ExtContext, record *models.AccessRecord) error {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO access_records
	(id, code, request_id, approval_id, device_id, event_id, visit_time, status, reason, created_at)
	VALUES (:id, :code, :request_id, :approval_id, :device_id, :event_id, :visit_time, :status, :reason, :created_at)
	ON CONFLICT (device_id, event_id) WHERE event_id IS NOT NULL DO NOTHING`
	result, err := sqlx.NamedExecContext(ctx, exec, query, record)
	if err != nil {
		return fmt.Errorf("append access record: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check access record rows: %w", err)
	}
	if rows == 0 {
		return ErrDuplicateEvent
	}
	return nil
}

// FindByEvent returns the record stored for a device event, if any.
func (r *AccessRecordRepository) FindByEvent(ctx context.Context, deviceID, eventID string) (*models.AccessRecord, error) {
	const query = `SELECT id, code, request_id, approval_id, device_id, event_id, visit_time, status, reason, created_at
	FROM access_records WHERE device_id = $1 AND event_id = $2`
	var record models.AccessRecord
	if err := r.db.GetContext(ctx, &record, query, deviceID, eventID); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find access record by event: %w", err)
	}
	return &record, nil
}

func recordConditions(filter models.AccessRecordFilter) (string, []interface{}) {
	conditions := make([]string, 0, 6)
	args := make([]interface{}, 0, 6)
	if filter.ApplicantID != "" {
		args = append(args, filter.ApplicantID)
		conditions = append(conditions, fmt.Sprintf("ar.applicant_id = $%d", len(args)))
	}
	if filter.ManagerID != "" {
		args = append(args, filter.ManagerID)
		conditions = append(conditions, fmt.Sprintf("(r.manager_id = $%d OR r.backup_manager_id = $%d)", len(args), len(args)))
	}
	if filter.RoomID != "" {
		args = append(args, filter.RoomID)
		conditions = append(conditions, fmt.Sprintf("ar.room_id = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		conditions = append(conditions, fmt.Sprintf("rec.status = $%d", len(args)))
	}
	if filter.From != nil {
		args = append(args, *filter.From)
		conditions = append(conditions, fmt.Sprintf("rec.visit_time >= $%d", len(args)))
	}
	if filter.To != nil {
		args = append(args, *filter.To)
		conditions = append(conditions, fmt.Sprintf("rec.visit_time <= $%d", len(args)))
	}
	if len(conditions) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conditions, " AND "), args
}

// List returns records matching the filter, latest visit first.
func (r *AccessRecordRepository) List(ctx context.Context, filter models.AccessRecordFilter) ([]models.AccessRecordDetail, int, error) {
	where, args := recordConditions(filter)
	page, size := models.NormalizePage(filter.Page, filter.PageSize)
	listQuery := fmt.Sprintf("%s%s ORDER BY rec.visit_time DESC, rec.id LIMIT %d OFFSET %d", accessRecordDetailSelect, where, size, (page-1)*size)

	var records []models.AccessRecordDetail
	if err := r.db.SelectContext(ctx, &records, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list access records: %w", err)
	}

	countQuery := `SELECT COUNT(*) FROM access_records rec
LEFT JOIN access_requests ar ON ar.id = rec.request_id
LEFT JOIN rooms r ON r.id = ar.room_id` + where
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count access records: %w", err)
	}
	return records, total, nil
}

// ListForExport returns up to maxExportRows records matching the filter, ignoring pagination.
func (r *AccessRecordRepository) ListForExport(ctx context.Context, filter models.AccessRecordFilter) ([]models.AccessRecordDetail, error) {
	where, args := recordConditions(filter)
	query := fmt.Sprintf("%s%s ORDER BY rec.visit_time DESC, rec.id LIMIT %d", accessRecordDetailSelect, where, maxExportRows)

	var records []models.AccessRecordDetail
	if err := r.db.SelectContext(ctx, &records, query, args...); err != nil {
		return nil, fmt.Errorf("export access records: %w", err)
	}
	return records, nil
}
