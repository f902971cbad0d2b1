package models

import "time"

// AccessCodeStatus is the consumption state of an issued code.
type AccessCodeStatus string

const (
	CodeStatusUnused  AccessCodeStatus = "UNUSED"
	CodeStatusUsed    AccessCodeStatus = "USED"
	CodeStatusExpired AccessCodeStatus = "EXPIRED"
)

// CodeOutcome is the result of validating a presented code.
type CodeOutcome string

const (
	CodeOutcomeValid       CodeOutcome = "VALID"
	CodeOutcomeExpired     CodeOutcome = "EXPIRED"
	CodeOutcomeAlreadyUsed CodeOutcome = "ALREADY_USED"
	CodeOutcomeUnknown     CodeOutcome = "UNKNOWN"
	// CodeOutcomeWrongDevice is only produced at a gate whose device is not
	// the lock bound to the code's room.
	CodeOutcomeWrongDevice CodeOutcome = "WRONG_DEVICE"
)

// AccessCode is a one-time token granting entry during its validity window.
type AccessCode struct {
	Code       string           `db:"code" json:"accessCode"`
	RequestID  string           `db:"request_id" json:"requestId"`
	ValidFrom  time.Time        `db:"valid_from" json:"validFrom"`
	ValidUntil time.Time        `db:"valid_until" json:"validUntil"`
	Status     AccessCodeStatus `db:"status" json:"status"`
	IssuedAt   time.Time        `db:"issued_at" json:"issuedAt"`
	UsedAt     *time.Time       `db:"used_at" json:"usedAt,omitempty"`
}

// Covers reports whether t falls inside [ValidFrom, ValidUntil].
func (c *AccessCode) Covers(t time.Time) bool {
	return !t.Before(c.ValidFrom) && !t.After(c.ValidUntil)
}

// Outcome classifies the code as presented at t without mutating it.
func (c *AccessCode) Outcome(t time.Time) CodeOutcome {
	if c == nil {
		return CodeOutcomeUnknown
	}
	switch c.Status {
	case CodeStatusUsed:
		return CodeOutcomeAlreadyUsed
	case CodeStatusExpired:
		return CodeOutcomeExpired
	}
	if !c.Covers(t) {
		return CodeOutcomeExpired
	}
	return CodeOutcomeValid
}
