package models

import "time"

// AccessRecordStatus is the gate result of a physical entry attempt.
type AccessRecordStatus string

const (
	RecordStatusGranted AccessRecordStatus = "GRANTED"
	RecordStatusDenied  AccessRecordStatus = "DENIED"
)

// AccessRecord is an append-only audit row for one physical entry attempt.
type AccessRecord struct {
	ID         string             `db:"id" json:"recordId"`
	Code       string             `db:"code" json:"accessCode"`
	RequestID  *string            `db:"request_id" json:"requestId,omitempty"`
	ApprovalID *string            `db:"approval_id" json:"approvalId,omitempty"`
	DeviceID   string             `db:"device_id" json:"deviceId"`
	EventID    *string            `db:"event_id" json:"eventId,omitempty"`
	VisitTime  time.Time          `db:"visit_time" json:"visitTime"`
	Status     AccessRecordStatus `db:"status" json:"accessStatus"`
	Reason     *string            `db:"reason" json:"reason,omitempty"`
	CreatedAt  time.Time          `db:"created_at" json:"createdAt"`
}

// AccessRecordDetail joins the request a record resolved to, when any.
type AccessRecordDetail struct {
	AccessRecord
	ApplicantName    *string    `db:"applicant_name" json:"applicantName,omitempty"`
	RoomName         *string    `db:"room_name" json:"roomName,omitempty"`
	RequestType      *string    `db:"request_type" json:"requestType,omitempty"`
	VisitPurpose     *string    `db:"visit_purpose" json:"visitPurpose,omitempty"`
	PlannedEntryTime *time.Time `db:"planned_entry_time" json:"plannedEntryTime,omitempty"`
	PlannedExitTime  *time.Time `db:"planned_exit_time" json:"plannedExitTime,omitempty"`
}

// AccessRecordFilter constrains record listing queries.
type AccessRecordFilter struct {
	ApplicantID string
	ManagerID   string
	RoomID      string
	Status      AccessRecordStatus
	From        *time.Time
	To          *time.Time
	Page        int
	PageSize    int
}
