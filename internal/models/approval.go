package models

import "time"

// ApprovalDecision is the outcome chosen by an approver.
type ApprovalDecision string

const (
	DecisionApproved ApprovalDecision = "APPROVED"
	DecisionRejected ApprovalDecision = "REJECTED"
)

// Valid reports whether d is a supported decision.
func (d ApprovalDecision) Valid() bool {
	return d == DecisionApproved || d == DecisionRejected
}

// Approval records the single decision taken on an access request.
type Approval struct {
	ID         string           `db:"id" json:"approvalId"`
	RequestID  string           `db:"request_id" json:"requestId"`
	ApproverID string           `db:"approver_id" json:"approverId"`
	Decision   ApprovalDecision `db:"decision" json:"approvalResult"`
	Remarks    *string          `db:"remarks" json:"approvalRemarks,omitempty"`
	CreatedAt  time.Time        `db:"created_at" json:"createdAt"`
}

// ApprovalDetail is an approval joined with request details for history views.
type ApprovalDetail struct {
	Approval
	ApplicantName      string    `db:"applicant_name" json:"applicantName"`
	ApproverName       string    `db:"approver_name" json:"approverName"`
	Contact            string    `db:"contact" json:"contact"`
	RoomName           string    `db:"room_name" json:"roomName"`
	RequestType        string    `db:"request_type" json:"requestType"`
	VisitPurpose       string    `db:"visit_purpose" json:"visitPurpose"`
	PurposeDescription *string   `db:"purpose_description" json:"purposeDescription,omitempty"`
	PlannedEntryTime   time.Time `db:"planned_entry_time" json:"plannedEntryTime"`
	PlannedExitTime    time.Time `db:"planned_exit_time" json:"plannedExitTime"`
}

// ApprovalFilter constrains approval history queries.
type ApprovalFilter struct {
	ApproverID  string
	ManagerID   string
	ApplicantID string
	Decision    ApprovalDecision
	Page        int
	PageSize    int
}
