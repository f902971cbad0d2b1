package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/room-access-api/internal/models"
)

var accessRequestDetailColumns = []string{"id", "applicant_id", "room_id", "contact", "request_type", "visit_purpose",
	"purpose_description", "planned_entry_time", "planned_exit_time", "status", "approval_remarks", "access_code",
	"created_at", "updated_at", "applicant_name", "room_name"}

func TestAccessRequestRepositoryCreate(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAccessRequestRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id FROM rooms WHERE id = $1 AND deleted_at IS NULL FOR SHARE")).
		WithArgs("room-1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("room-1"))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO access_requests")).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	entry := time.Now().Add(time.Hour)
	req := &models.AccessRequest{ApplicantID: "u1", RoomID: "room-1", Contact: "138", RequestType: "VISIT", VisitPurpose: "maintenance",
		PlannedEntryTime: entry, PlannedExitTime: entry.Add(time.Hour)}
	require.NoError(t, repo.Create(context.Background(), req))
	assert.NotEmpty(t, req.ID)
	assert.Equal(t, models.AccessStatusPending, req.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAccessRequestRepositoryCreateDeletedRoom(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAccessRequestRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FOR SHARE")).WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	err := repo.Create(context.Background(), &models.AccessRequest{RoomID: "room-gone"})
	assert.ErrorIs(t, err, ErrRoomUnavailable)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAccessRequestRepositoryListPendingForManager(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAccessRequestRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows(accessRequestDetailColumns).
		AddRow("req-1", "u1", "room-1", "138", "VISIT", "maintenance", nil, now, now.Add(time.Hour), "PENDING", nil, nil, now, now, "Alice", "Cage A")
	mock.ExpectQuery(regexp.QuoteMeta("WHERE (r.manager_id = $1 OR r.backup_manager_id = $1) AND ar.status IN ($2) ORDER BY ar.updated_at DESC, ar.id LIMIT 20 OFFSET 0")).
		WithArgs("m1", models.AccessStatusPending).
		WillReturnRows(rows)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM access_requests ar LEFT JOIN rooms r ON r.id = ar.room_id WHERE")).
		WithArgs("m1", models.AccessStatusPending).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	list, total, err := repo.List(context.Background(), models.AccessRequestFilter{
		ManagerID: "m1",
		Status:    []models.AccessRequestStatus{models.AccessStatusPending},
	})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Alice", list[0].ApplicantName)
	assert.Equal(t, 1, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAccessRequestRepositoryCancel(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAccessRequestRepository(db)
	at := time.Now()

	mock.ExpectExec(regexp.QuoteMeta("UPDATE access_requests SET status = $4")).
		WithArgs("req-1", "u1", models.AccessStatusPending, models.AccessStatusCancelled, at).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.Cancel(context.Background(), "req-1", "u1", at))

	mock.ExpectExec(regexp.QuoteMeta("UPDATE access_requests SET status = $4")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	assert.ErrorIs(t, repo.Cancel(context.Background(), "req-1", "u1", at), sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func approveParams(at time.Time) DecideParams {
	return DecideParams{
		Approval: &models.Approval{RequestID: "req-1", ApproverID: "m1", Decision: models.DecisionApproved},
		Code: &models.AccessCode{Code: "K7P3M9QX", RequestID: "req-1", ValidFrom: at.Add(time.Hour),
			ValidUntil: at.Add(3 * time.Hour), Status: models.CodeStatusUnused, IssuedAt: at},
		At: at,
	}
}

func TestAccessRequestRepositoryDecideApprove(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAccessRequestRepository(db)
	at := time.Now()
	params := approveParams(at)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE access_requests SET status = $3, approval_remarks = $4, access_code = $5")).
		WithArgs("req-1", models.AccessStatusPending, models.AccessStatusApproved, nil, &params.Code.Code, at).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO approvals")).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO access_codes")).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.Decide(context.Background(), params))
	assert.NotEmpty(t, params.Approval.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAccessRequestRepositoryDecideAlreadyDecided(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAccessRequestRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE access_requests SET status = $3")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := repo.Decide(context.Background(), approveParams(time.Now()))
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAccessRequestRepositoryDecideCodeCollisionRollsBack(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAccessRequestRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE access_requests SET status = $3")).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO approvals")).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("ON CONFLICT (code) DO NOTHING")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := repo.Decide(context.Background(), approveParams(time.Now()))
	assert.ErrorIs(t, err, ErrCodeCollision)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAccessRequestRepositoryDecideReject(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAccessRequestRepository(db)
	at := time.Now()
	remarks := "no escort available"

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE access_requests SET status = $3")).
		WithArgs("req-1", models.AccessStatusPending, models.AccessStatusRejected, &remarks, nil, at).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO approvals")).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	err := repo.Decide(context.Background(), DecideParams{
		Approval: &models.Approval{RequestID: "req-1", ApproverID: "m1", Decision: models.DecisionRejected, Remarks: &remarks},
		At:       at,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
