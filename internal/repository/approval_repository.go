package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/room-access-api/internal/models"
)

const approvalDetailSelect = `SELECT a.id, a.request_id, a.approver_id, a.decision, a.remarks, a.created_at,
       COALESCE(appl.nickname, '') AS applicant_name, COALESCE(appr.nickname, '') AS approver_name,
       ar.contact, COALESCE(r.name, '') AS room_name, ar.request_type, ar.visit_purpose, ar.purpose_description,
       ar.planned_entry_time, ar.planned_exit_time
FROM approvals a
JOIN access_requests ar ON ar.id = a.request_id
LEFT JOIN rooms r ON r.id = ar.room_id
LEFT JOIN users appl ON appl.id = ar.applicant_id
LEFT JOIN users appr ON appr.id = a.approver_id`

// ApprovalRepository reads approval history. Approvals are written by
// AccessRequestRepository.Decide.
type ApprovalRepository struct {
	db *sqlx.DB
}

// NewApprovalRepository constructs the repository.
func NewApprovalRepository(db *sqlx.DB) *ApprovalRepository {
	return &ApprovalRepository{db: db}
}

// List returns approval history matching the filter, latest first.
func (r *ApprovalRepository) List(ctx context.Context, filter models.ApprovalFilter) ([]models.ApprovalDetail, int, error) {
	conditions := make([]string, 0, 4)
	args := make([]interface{}, 0, 4)
	if filter.ApproverID != "" {
		args = append(args, filter.ApproverID)
		conditions = append(conditions, fmt.Sprintf("a.approver_id = $%d", len(args)))
	}
	if filter.ManagerID != "" {
		args = append(args, filter.ManagerID)
		conditions = append(conditions, fmt.Sprintf("(r.manager_id = $%d OR r.backup_manager_id = $%d)", len(args), len(args)))
	}
	if filter.ApplicantID != "" {
		args = append(args, filter.ApplicantID)
		conditions = append(conditions, fmt.Sprintf("ar.applicant_id = $%d", len(args)))
	}
	if filter.Decision != "" {
		args = append(args, filter.Decision)
		conditions = append(conditions, fmt.Sprintf("a.decision = $%d", len(args)))
	}
	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	page, size := models.NormalizePage(filter.Page, filter.PageSize)
	listQuery := fmt.Sprintf("%s%s ORDER BY a.created_at DESC, a.id LIMIT %d OFFSET %d", approvalDetailSelect, where, size, (page-1)*size)

	var approvals []models.ApprovalDetail
	if err := r.db.SelectContext(ctx, &approvals, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list approvals: %w", err)
	}

	countQuery := `SELECT COUNT(*) FROM approvals a
JOIN access_requests ar ON ar.id = a.request_id
LEFT JOIN rooms r ON r.id = ar.room_id` + where
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count approvals: %w", err)
	}
	return approvals, total, nil
}
