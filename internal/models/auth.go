package models

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// LoginRequest holds credentials for authenticating a user.
type LoginRequest struct {
	Account    string `json:"account" validate:"required"`
	Password   string `json:"password" validate:"required"`
	VerifyCode string `json:"verifyCode"`
	IP         string `json:"-"`
	UserAgent  string `json:"-"`
}

// LoginResponse returns the issued token and user info.
type LoginResponse struct {
	Token     string    `json:"token"`
	ExpiresIn int64     `json:"expiresIn"`
	UserInfo  UserInfo  `json:"userInfo"`
	IssuedAt  time.Time `json:"issuedAt"`
}

// UserInfo describes the authenticated user in responses.
type UserInfo struct {
	ID       string   `json:"userId"`
	Username string   `json:"username"`
	Nickname string   `json:"nickname"`
	Tel      string   `json:"tel"`
	Role     UserRole `json:"permissions"`
	DeptName string   `json:"deptName"`
}

// JWTClaims represents the JWT payload for access tokens.
type JWTClaims struct {
	UserID   string   `json:"user_id"`
	Role     UserRole `json:"role"`
	Username string   `json:"username"`
	Nickname string   `json:"nickname"`
	jwt.RegisteredClaims
}
