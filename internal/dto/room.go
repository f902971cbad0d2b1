package dto

// RoomRequest is the payload for creating or updating a room.
type RoomRequest struct {
	Region          string  `json:"roomRegion" validate:"required,max=64"`
	Center          string  `json:"roomCenter" validate:"required,max=64"`
	Name            string  `json:"roomName" validate:"required,max=128"`
	ManagerID       string  `json:"managerId" validate:"required,uuid"`
	BackupManagerID *string `json:"backupManagerId" validate:"omitempty,uuid"`
	LockDeviceFlag  bool    `json:"lockDeviceFlag"`
	LockDeviceSN    string  `json:"lockDeviceSn" validate:"required_if=LockDeviceFlag true,max=64"`
	Remarks         string  `json:"remarks" validate:"max=512"`
}

// RoomQuery mirrors supported room listing filters.
type RoomQuery struct {
	Region   string `form:"roomRegion"`
	Center   string `form:"roomCenter"`
	Page     int    `form:"page"`
	PageSize int    `form:"pageSize"`
}
