package repository

import (
	"errors"

	"github.com/lib/pq"
)

var (
	// ErrCodeCollision is returned when a freshly drawn access code already exists.
	ErrCodeCollision = errors.New("access code collision")
	// ErrRoomInUse is returned when a room still has pending or approved requests.
	ErrRoomInUse = errors.New("room has live access requests")
	// ErrRoomUnavailable is returned when a request targets a missing or deleted room.
	ErrRoomUnavailable = errors.New("room unavailable")
	// ErrDuplicateEvent is returned when a device event id was already recorded.
	ErrDuplicateEvent = errors.New("duplicate device event")
	// ErrWrongDevice is returned when a code is presented at a gate other than its room's lock device.
	ErrWrongDevice = errors.New("access code presented at another device")
)

const uniqueViolation = "23505"

// IsUniqueViolation reports whether err is a postgres unique constraint violation.
func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}
