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

const accessRequestDetailSelect = `SELECT ar.id, ar.applicant_id, ar.room_id, ar.contact, ar.request_type, ar.visit_purpose,
       ar.purpose_description, ar.planned_entry_time, ar.planned_exit_time, ar.status, ar.approval_remarks,
       ar.access_code, ar.created_at, ar.updated_at,
       COALESCE(u.nickname, '') AS applicant_name, COALESCE(r.name, '') AS room_name
FROM access_requests ar
LEFT JOIN users u ON u.id = ar.applicant_id
LEFT JOIN rooms r ON r.id = ar.room_id`

// AccessRequestRepository persists access requests and their state transitions.
// Every transition is a conditional update on the current status; a zero row
// count is reported as sql.ErrNoRows.
type AccessRequestRepository struct {
	db *sqlx.DB
}

// NewAccessRequestRepository constructs the repository.
func NewAccessRequestRepository(db *sqlx.DB) *AccessRequestRepository {
	return &AccessRequestRepository{db: db}
}

// Create inserts a pending request. The target room is share-locked so a
// concurrent tombstone either waits for this insert or makes it fail.
func (r *AccessRequestRepository) Create(ctx context.Context, req *models.AccessRequest) (err error) {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	if req.Status == "" {
		req.Status = models.AccessStatusPending
	}
	if req.CreatedAt.IsZero() {
		req.CreatedAt = time.Now().UTC()
	}
	req.UpdatedAt = req.CreatedAt

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin access request: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var roomID string
	if err = tx.GetContext(ctx, &roomID, `SELECT id FROM rooms WHERE id = $1 AND deleted_at IS NULL FOR SHARE`, req.RoomID); err != nil {
		if err == sql.ErrNoRows {
			err = ErrRoomUnavailable
			return err
		}
		return fmt.Errorf("lock room: %w", err)
	}

	const query = `INSERT INTO access_requests
	(id, applicant_id, room_id, contact, request_type, visit_purpose, purpose_description, planned_entry_time, planned_exit_time,
	 status, approval_remarks, access_code, created_at, updated_at)
	VALUES (:id, :applicant_id, :room_id, :contact, :request_type, :visit_purpose, :purpose_description, :planned_entry_time, :planned_exit_time,
	 :status, :approval_remarks, :access_code, :created_at, :updated_at)`
	if _, err = tx.NamedExecContext(ctx, query, req); err != nil {
		return fmt.Errorf("create access request: %w", err)
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit access request: %w", err)
	}
	return nil
}

// GetByID fetches a request joined with applicant and room names.
func (r *AccessRequestRepository) GetByID(ctx context.Context, id string) (*models.AccessRequestDetail, error) {
	query := accessRequestDetailSelect + ` WHERE ar.id = $1`
	var req models.AccessRequestDetail
	if err := r.db.GetContext(ctx, &req, query, id); err != nil {
		return nil, err
	}
	return &req, nil
}

// List returns requests matching the filter, most recent activity first.
func (r *AccessRequestRepository) List(ctx context.Context, filter models.AccessRequestFilter) ([]models.AccessRequestDetail, int, error) {
	conditions := make([]string, 0, 6)
	args := make([]interface{}, 0, 8)
	if filter.ApplicantID != "" {
		args = append(args, filter.ApplicantID)
		conditions = append(conditions, fmt.Sprintf("ar.applicant_id = $%d", len(args)))
	}
	if filter.RoomID != "" {
		args = append(args, filter.RoomID)
		conditions = append(conditions, fmt.Sprintf("ar.room_id = $%d", len(args)))
	}
	if filter.ManagerID != "" {
		args = append(args, filter.ManagerID)
		conditions = append(conditions, fmt.Sprintf("(r.manager_id = $%d OR r.backup_manager_id = $%d)", len(args), len(args)))
	}
	if len(filter.Status) > 0 {
		placeholders := make([]string, len(filter.Status))
		for i, status := range filter.Status {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		conditions = append(conditions, fmt.Sprintf("ar.status IN (%s)", strings.Join(placeholders, ",")))
	}
	if filter.From != nil {
		args = append(args, *filter.From)
		conditions = append(conditions, fmt.Sprintf("ar.planned_exit_time >= $%d", len(args)))
	}
	if filter.To != nil {
		args = append(args, *filter.To)
		conditions = append(conditions, fmt.Sprintf("ar.planned_entry_time <= $%d", len(args)))
	}
	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	page, size := models.NormalizePage(filter.Page, filter.PageSize)
	listQuery := fmt.Sprintf("%s%s ORDER BY ar.updated_at DESC, ar.id LIMIT %d OFFSET %d", accessRequestDetailSelect, where, size, (page-1)*size)

	var requests []models.AccessRequestDetail
	if err := r.db.SelectContext(ctx, &requests, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list access requests: %w", err)
	}

	countQuery := "SELECT COUNT(*) FROM access_requests ar LEFT JOIN rooms r ON r.id = ar.room_id" + where
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count access requests: %w", err)
	}
	return requests, total, nil
}

// Cancel moves a pending request owned by applicantID to CANCELLED.
func (r *AccessRequestRepository) Cancel(ctx context.Context, id, applicantID string, at time.Time) error {
	const query = `UPDATE access_requests SET status = $4, updated_at = $5
	WHERE id = $1 AND applicant_id = $2 AND status = $3`
	result, err := r.db.ExecContext(ctx, query, id, applicantID, models.AccessStatusPending, models.AccessStatusCancelled, at)
	if err != nil {
		return fmt.Errorf("cancel access request: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check cancel rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// DecideParams carries one decision together with the code issued on approval.
type DecideParams struct {
	Approval *models.Approval
	Code     *models.AccessCode
	At       time.Time
}

// Decide records the single decision on a pending request. The status
// transition, the approval row and the access code commit together or not at
// all. sql.ErrNoRows means the request was no longer pending;
// ErrCodeCollision means the drawn code already exists and nothing was written.
func (r *AccessRequestRepository) Decide(ctx context.Context, params DecideParams) (err error) {
	approval := params.Approval
	if approval.ID == "" {
		approval.ID = uuid.NewString()
	}
	if approval.CreatedAt.IsZero() {
		approval.CreatedAt = params.At
	}

	status := models.AccessStatusRejected
	var code *string
	if approval.Decision == models.DecisionApproved {
		if params.Code == nil {
			return fmt.Errorf("approve request %s: missing access code", approval.RequestID)
		}
		status = models.AccessStatusApproved
		code = &params.Code.Code
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin decision: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	const transition = `UPDATE access_requests SET status = $3, approval_remarks = $4, access_code = $5, updated_at = $6
	WHERE id = $1 AND status = $2`
	result, err := tx.ExecContext(ctx, transition, approval.RequestID, models.AccessStatusPending, status, approval.Remarks, code, params.At)
	if err != nil {
		return fmt.Errorf("transition access request: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check decision rows: %w", err)
	}
	if rows == 0 {
		err = sql.ErrNoRows
		return err
	}

	const insertApproval = `INSERT INTO approvals (id, request_id, approver_id, decision, remarks, created_at)
	VALUES (:id, :request_id, :approver_id, :decision, :remarks, :created_at)`
	if _, err = tx.NamedExecContext(ctx, insertApproval, approval); err != nil {
		return fmt.Errorf("insert approval: %w", err)
	}

	if params.Code != nil && status == models.AccessStatusApproved {
		const insertCode = `INSERT INTO access_codes (code, request_id, valid_from, valid_until, status, issued_at)
		VALUES (:code, :request_id, :valid_from, :valid_until, :status, :issued_at)
		ON CONFLICT (code) DO NOTHING`
		result, err = tx.NamedExecContext(ctx, insertCode, params.Code)
		if err != nil {
			return fmt.Errorf("insert access code: %w", err)
		}
		if rows, err = result.RowsAffected(); err != nil {
			return fmt.Errorf("check access code rows: %w", err)
		}
		if rows == 0 {
			err = ErrCodeCollision
			return err
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit decision: %w", err)
	}
	return nil
}
