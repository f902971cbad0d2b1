package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/room-access-api/internal/models"
)

const accessCodeColumns = `code, request_id, valid_from, valid_until, status, issued_at, used_at`

// AccessCodeRepository reads and retires issued access codes.
type AccessCodeRepository struct {
	db *sqlx.DB
}

// NewAccessCodeRepository constructs the repository.
func NewAccessCodeRepository(db *sqlx.DB) *AccessCodeRepository {
	return &AccessCodeRepository{db: db}
}

// GetByCode fetches a code by its token.
func (r *AccessCodeRepository) GetByCode(ctx context.Context, code string) (*models.AccessCode, error) {
	query := `SELECT ` + accessCodeColumns + ` FROM access_codes WHERE code = $1`
	var ac models.AccessCode
	if err := r.db.GetContext(ctx, &ac, query, code); err != nil {
		return nil, err
	}
	return &ac, nil
}

// Consume marks an unused code as used when at falls inside its validity
// window and completes the owning approved request in the same transaction.
// sql.ErrNoRows means the code was unknown, already used, expired or presented
// outside its window; nothing was written in that case.
//
// A non-nil grant is the gate record for this entry. It is bound to the room's
// lock device and inserted in the same transaction, so the code, the request
// and the record commit together or not at all. ErrWrongDevice returns the
// matched code with nothing written.
func (r *AccessCodeRepository) Consume(ctx context.Context, code string, at time.Time, grant *models.AccessRecord) (consumed *models.AccessCode, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin consume: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	query := `UPDATE access_codes SET status = $2, used_at = $4
	WHERE code = $1 AND status = $3 AND $4 BETWEEN valid_from AND valid_until
	RETURNING ` + accessCodeColumns
	var ac models.AccessCode
	if err = tx.GetContext(ctx, &ac, query, code, models.CodeStatusUsed, models.CodeStatusUnused, at); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("consume access code: %w", err)
	}

	if grant != nil {
		var lockDevice sql.NullString
		const lockQuery = `SELECT r.lock_device_sn FROM access_requests ar JOIN rooms r ON r.id = ar.room_id WHERE ar.id = $1`
		if lerr := tx.GetContext(ctx, &lockDevice, lockQuery, ac.RequestID); lerr != nil && lerr != sql.ErrNoRows {
			return nil, fmt.Errorf("load room lock device: %w", lerr)
		}
		if lockDevice.Valid && lockDevice.String != "" && !strings.EqualFold(lockDevice.String, grant.DeviceID) {
			ac.Status = models.CodeStatusUnused
			ac.UsedAt = nil
			return &ac, ErrWrongDevice
		}
	}

	const complete = `UPDATE access_requests SET status = $3, updated_at = $4 WHERE id = $1 AND status = $2`
	if _, err = tx.ExecContext(ctx, complete, ac.RequestID, models.AccessStatusApproved, models.AccessStatusCompleted, at); err != nil {
		return nil, fmt.Errorf("complete access request: %w", err)
	}

	if grant != nil {
		var approvalID string
		if aerr := tx.GetContext(ctx, &approvalID, `SELECT id FROM approvals WHERE request_id = $1`, ac.RequestID); aerr != nil && aerr != sql.ErrNoRows {
			return nil, fmt.Errorf("load approval for record: %w", aerr)
		}
		grant.RequestID = &ac.RequestID
		if approvalID != "" {
			grant.ApprovalID = &approvalID
		}
		if err = insertAccessRecord(ctx, tx, grant); err != nil {
			return nil, err
		}
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit consume: %w", err)
	}
	return &ac, nil
}

// ExpireLapsed retires every unused code whose window ended before now and
// moves the owning approved requests to EXPIRED. It returns the expired
// request ids.
func (r *AccessCodeRepository) ExpireLapsed(ctx context.Context, now time.Time) (expired []string, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin expiry: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var requestIDs []string
	const expireCodes = `UPDATE access_codes SET status = $1 WHERE status = $2 AND valid_until < $3 RETURNING request_id`
	if err = tx.SelectContext(ctx, &requestIDs, expireCodes, models.CodeStatusExpired, models.CodeStatusUnused, now); err != nil {
		return nil, fmt.Errorf("expire access codes: %w", err)
	}
	if len(requestIDs) == 0 {
		if err = tx.Commit(); err != nil {
			return nil, fmt.Errorf("commit expiry: %w", err)
		}
		return nil, nil
	}

	const expireRequests = `UPDATE access_requests SET status = $2, updated_at = $4
	WHERE id = ANY($1) AND status = $3 RETURNING id`
	if err = tx.SelectContext(ctx, &expired, expireRequests, pq.Array(requestIDs), models.AccessStatusExpired, models.AccessStatusApproved, now); err != nil {
		return nil, fmt.Errorf("expire access requests: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit expiry: %w", err)
	}
	return expired, nil
}
