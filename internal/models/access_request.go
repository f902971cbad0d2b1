package models

import "time"

// AccessRequestStatus captures the lifecycle of a room access request.
type AccessRequestStatus string

const (
	AccessStatusPending   AccessRequestStatus = "PENDING"
	AccessStatusApproved  AccessRequestStatus = "APPROVED"
	AccessStatusRejected  AccessRequestStatus = "REJECTED"
	AccessStatusCancelled AccessRequestStatus = "CANCELLED"
	AccessStatusExpired   AccessRequestStatus = "EXPIRED"
	AccessStatusCompleted AccessRequestStatus = "COMPLETED"
)

// Valid reports whether s is a known status.
func (s AccessRequestStatus) Valid() bool {
	switch s {
	case AccessStatusPending, AccessStatusApproved, AccessStatusRejected,
		AccessStatusCancelled, AccessStatusExpired, AccessStatusCompleted:
		return true
	}
	return false
}

// Terminal reports whether no further transition is possible.
func (s AccessRequestStatus) Terminal() bool {
	switch s {
	case AccessStatusRejected, AccessStatusCancelled, AccessStatusExpired, AccessStatusCompleted:
		return true
	}
	return false
}

// Decided reports whether an approver has ruled on the request.
func (s AccessRequestStatus) Decided() bool {
	switch s {
	case AccessStatusApproved, AccessStatusRejected, AccessStatusExpired, AccessStatusCompleted:
		return true
	}
	return false
}

// LiveAccessStatuses are the statuses that block room deletion.
var LiveAccessStatuses = []AccessRequestStatus{AccessStatusPending, AccessStatusApproved}

// AccessRequest is an applicant's request to enter a room during a window.
type AccessRequest struct {
	ID                 string              `db:"id" json:"requestId"`
	ApplicantID        string              `db:"applicant_id" json:"applicantId"`
	RoomID             string              `db:"room_id" json:"roomId"`
	Contact            string              `db:"contact" json:"contact"`
	RequestType        string              `db:"request_type" json:"requestType"`
	VisitPurpose       string              `db:"visit_purpose" json:"visitPurpose"`
	PurposeDescription *string             `db:"purpose_description" json:"purposeDescription,omitempty"`
	PlannedEntryTime   time.Time           `db:"planned_entry_time" json:"plannedEntryTime"`
	PlannedExitTime    time.Time           `db:"planned_exit_time" json:"plannedExitTime"`
	Status             AccessRequestStatus `db:"status" json:"requestStatus"`
	ApprovalRemarks    *string             `db:"approval_remarks" json:"approvalRemarks,omitempty"`
	AccessCode         *string             `db:"access_code" json:"accessCode,omitempty"`
	CreatedAt          time.Time           `db:"created_at" json:"createdAt"`
	UpdatedAt          time.Time           `db:"updated_at" json:"updatedAt"`
}

// AccessRequestDetail joins display names used by listing views.
type AccessRequestDetail struct {
	AccessRequest
	ApplicantName string `db:"applicant_name" json:"applicantName"`
	RoomName      string `db:"room_name" json:"roomName"`
}

// AccessRequestFilter constrains request listing queries.
type AccessRequestFilter struct {
	ApplicantID string
	RoomID      string
	ManagerID   string
	Status      []AccessRequestStatus
	From        *time.Time
	To          *time.Time
	Page        int
	PageSize    int
}
