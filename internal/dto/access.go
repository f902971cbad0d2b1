package dto

import (
	"time"

	"github.com/noah-isme/room-access-api/internal/models"
)

// SubmitAccessRequest is the applicant payload for a room access request.
type SubmitAccessRequest struct {
	RoomID             string    `json:"roomId" validate:"required,uuid"`
	Contact            string    `json:"contact" validate:"required,max=64"`
	RequestType        string    `json:"requestType" validate:"required,max=32"`
	VisitPurpose       string    `json:"visitPurpose" validate:"required,max=128"`
	PurposeDescription string    `json:"purposeDescription" validate:"max=1024"`
	PlannedEntryTime   time.Time `json:"plannedEntryTime" validate:"required"`
	PlannedExitTime    time.Time `json:"plannedExitTime" validate:"required"`
}

// AccessRequestQuery filters the caller's own requests.
type AccessRequestQuery struct {
	Status   []models.AccessRequestStatus
	RoomID   string
	Page     int
	PageSize int
}

// PendingQuery paginates the approver's pending queue.
type PendingQuery struct {
	RoomID   string
	Page     int
	PageSize int
}

// ProcessApprovalRequest carries one approver decision.
type ProcessApprovalRequest struct {
	RequestID      string                  `json:"requestId" validate:"required,uuid"`
	ApprovalResult models.ApprovalDecision `json:"approvalResult" validate:"required,oneof=APPROVED REJECTED"`
	Remarks        string                  `json:"approvalRemarks" validate:"max=512"`
}

// ProcessApprovalResponse reports the decision and, on approval, the issued code.
type ProcessApprovalResponse struct {
	RequestID      string                     `json:"requestId"`
	RequestStatus  models.AccessRequestStatus `json:"requestStatus"`
	ApprovalResult models.ApprovalDecision    `json:"approvalResult"`
	AccessCode     string                     `json:"accessCode,omitempty"`
	ValidFrom      *time.Time                 `json:"validFrom,omitempty"`
	ValidUntil     *time.Time                 `json:"validUntil,omitempty"`
}

// ApprovalResultQuery filters approval history.
type ApprovalResultQuery struct {
	Decision models.ApprovalDecision
	Page     int
	PageSize int
}

// AccessRecordQuery filters access record listings and exports.
type AccessRecordQuery struct {
	RoomID    string
	Status    models.AccessRecordStatus
	StartTime *time.Time
	EndTime   *time.Time
	Page      int
	PageSize  int
}

// GateEntryRequest is the device hook payload for one physical entry attempt.
type GateEntryRequest struct {
	AccessCode   string    `json:"accessCode" validate:"required,max=32"`
	DeviceID     string    `json:"deviceId" validate:"required,max=64"`
	ObservedTime time.Time `json:"observedTime" validate:"required"`
	EventID      string    `json:"eventId" validate:"max=128"`
}

// GateEntryResponse is the outcome of a gate entry attempt.
type GateEntryResponse struct {
	Record    *models.AccessRecord `json:"record"`
	Granted   bool                 `json:"granted"`
	Duplicate bool                 `json:"duplicate"`
}

// CodeValidationResponse is the read-only outcome for a presented code.
type CodeValidationResponse struct {
	AccessCode string             `json:"accessCode"`
	Outcome    models.CodeOutcome `json:"outcome"`
	ValidFrom  *time.Time         `json:"validFrom,omitempty"`
	ValidUntil *time.Time         `json:"validUntil,omitempty"`
}
