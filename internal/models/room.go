package models

import "time"

// Room is a physical room guarded by the access workflow. Rooms are never
// physically deleted: DeletedAt marks a tombstone so historical requests and
// records keep resolving.
type Room struct {
	ID                 string     `db:"id" json:"roomId"`
	Region             string     `db:"region" json:"roomRegion"`
	Center             string     `db:"center" json:"roomCenter"`
	Name               string     `db:"name" json:"roomName"`
	ManagerID          string     `db:"manager_id" json:"managerId"`
	ManagerName        string     `db:"manager_name" json:"managerName"`
	ManagerPhone       string     `db:"manager_phone" json:"managerPhone"`
	BackupManagerID    *string    `db:"backup_manager_id" json:"backupManagerId,omitempty"`
	BackupManagerName  string     `db:"backup_manager_name" json:"backupManagerName"`
	BackupManagerPhone string     `db:"backup_manager_phone" json:"backupManagerPhone"`
	LockDeviceSN       *string    `db:"lock_device_sn" json:"lockDeviceSn,omitempty"`
	Remarks            *string    `db:"remarks" json:"remarks,omitempty"`
	CreatedBy          string     `db:"created_by" json:"createdBy"`
	UpdatedBy          string     `db:"updated_by" json:"updatedBy"`
	CreatedAt          time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt          time.Time  `db:"updated_at" json:"updatedAt"`
	DeletedAt          *time.Time `db:"deleted_at" json:"deletedAt,omitempty"`
}

// Deleted reports whether the room carries a tombstone.
func (r *Room) Deleted() bool {
	return r != nil && r.DeletedAt != nil
}

// IsManagedBy reports whether userID is the manager or backup manager.
func (r *Room) IsManagedBy(userID string) bool {
	if r == nil || userID == "" {
		return false
	}
	if r.ManagerID == userID {
		return true
	}
	return r.BackupManagerID != nil && *r.BackupManagerID == userID
}

// RoomDetail is a room joined with the display names of its authors.
type RoomDetail struct {
	Room
	CreatedByName string `db:"created_by_name" json:"createdByName"`
	UpdatedByName string `db:"updated_by_name" json:"updatedByName"`
}

// RoomFilter constrains room listing queries.
type RoomFilter struct {
	Region         string
	Center         string
	ManagerID      string
	IncludeDeleted bool
	Page           int
	PageSize       int
}
