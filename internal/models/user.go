package models

import "time"

// UserRole represents the available roles for the RBAC system.
type UserRole string

const (
	RoleAdmin     UserRole = "ADMIN"
	RoleManager   UserRole = "MANAGER"
	RoleApplicant UserRole = "APPLICANT"
	RoleDevice    UserRole = "DEVICE"
)

// User represents an application user stored in the users table.
type User struct {
	ID           string     `db:"id" json:"userId"`
	Username     string     `db:"username" json:"username"`
	Nickname     string     `db:"nickname" json:"nickname"`
	Tel          string     `db:"tel" json:"tel"`
	PasswordHash string     `db:"password_hash" json:"-"`
	Role         UserRole   `db:"role" json:"role"`
	Region       string     `db:"region" json:"region"`
	DeptName     string     `db:"dept_name" json:"deptName"`
	Active       bool       `db:"active" json:"active"`
	LastLogin    *time.Time `db:"last_login" json:"lastLogin,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updatedAt"`
}

// RoomManager is a candidate approver as exposed to clients.
type RoomManager struct {
	UserID   string `db:"id" json:"userId"`
	Nickname string `db:"nickname" json:"nickname"`
	Tel      string `db:"tel" json:"tel"`
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// NormalizePage clamps page (1-based) and page size to sane bounds.
func NormalizePage(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return page, pageSize
}
