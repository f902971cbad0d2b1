package models

import (
	"context"
	"time"
)

// AuditAction constants represent actions to be logged.
const (
	AuditActionLogin         = "LOGIN"
	AuditActionRoomCreate    = "ROOM_CREATE"
	AuditActionRoomUpdate    = "ROOM_UPDATE"
	AuditActionRoomDelete    = "ROOM_DELETE"
	AuditActionAccessSubmit  = "ACCESS_SUBMIT"
	AuditActionAccessCancel  = "ACCESS_CANCEL"
	AuditActionAccessDecide  = "ACCESS_DECIDE"
	AuditActionAccessExpire  = "ACCESS_EXPIRE"
	AuditActionRecordsExport = "RECORDS_EXPORT"
)

// AuditLog represents an audit trail record.
type AuditLog struct {
	ID         string    `db:"id" json:"id"`
	UserID     *string   `db:"user_id" json:"user_id,omitempty"`
	Action     string    `db:"action" json:"action"`
	Resource   string    `db:"resource" json:"resource"`
	ResourceID *string   `db:"resource_id" json:"resource_id,omitempty"`
	OldValues  []byte    `db:"old_values" json:"old_values,omitempty"`
	NewValues  []byte    `db:"new_values" json:"new_values,omitempty"`
	IPAddress  string    `db:"ip_address" json:"ip_address"`
	UserAgent  string    `db:"user_agent" json:"user_agent"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

type clientMetaKey struct{}

// ClientMeta identifies the caller that triggered an audited change.
type ClientMeta struct {
	IPAddress string
	UserAgent string
	RequestID string
}

// WithClientMeta returns ctx carrying meta.
func WithClientMeta(ctx context.Context, meta ClientMeta) context.Context {
	return context.WithValue(ctx, clientMetaKey{}, meta)
}

// ClientMetaFrom returns the caller meta stored on ctx, if any.
func ClientMetaFrom(ctx context.Context) (ClientMeta, bool) {
	if ctx == nil {
		return ClientMeta{}, false
	}
	meta, ok := ctx.Value(clientMetaKey{}).(ClientMeta)
	return meta, ok
}
