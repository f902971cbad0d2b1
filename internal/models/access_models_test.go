package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAccessRequestStatusClassification(t *testing.T) {
	assert.False(t, AccessStatusPending.Terminal())
	assert.False(t, AccessStatusApproved.Terminal())
	for _, s := range []AccessRequestStatus{AccessStatusRejected, AccessStatusCancelled, AccessStatusExpired, AccessStatusCompleted} {
		assert.True(t, s.Terminal(), s)
	}
	assert.True(t, AccessStatusApproved.Decided())
	assert.False(t, AccessStatusCancelled.Decided())
	assert.False(t, AccessRequestStatus("DRAFT").Valid())
}

func TestAccessCodeOutcome(t *testing.T) {
	from := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	code := &AccessCode{Code: "ABCD2345", ValidFrom: from, ValidUntil: from.Add(2 * time.Hour), Status: CodeStatusUnused}

	assert.Equal(t, CodeOutcomeValid, code.Outcome(from))
	assert.Equal(t, CodeOutcomeValid, code.Outcome(from.Add(2*time.Hour)))
	assert.Equal(t, CodeOutcomeExpired, code.Outcome(from.Add(-time.Second)))
	assert.Equal(t, CodeOutcomeExpired, code.Outcome(from.Add(2*time.Hour+time.Second)))

	code.Status = CodeStatusUsed
	assert.Equal(t, CodeOutcomeAlreadyUsed, code.Outcome(from))

	var missing *AccessCode
	assert.Equal(t, CodeOutcomeUnknown, missing.Outcome(from))
}

func TestRoomIsManagedBy(t *testing.T) {
	backup := "user-2"
	room := &Room{ManagerID: "user-1", BackupManagerID: &backup}
	assert.True(t, room.IsManagedBy("user-1"))
	assert.True(t, room.IsManagedBy("user-2"))
	assert.False(t, room.IsManagedBy("user-3"))
	assert.False(t, room.IsManagedBy(""))
}

func TestNormalizePage(t *testing.T) {
	page, size := NormalizePage(0, 0)
	assert.Equal(t, 1, page)
	assert.Equal(t, 20, size)
	_, size = NormalizePage(2, 1000)
	assert.Equal(t, 100, size)
}
