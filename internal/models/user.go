package models

import "time"

// AdminRole is the only role carried by session access tokens.
const AdminRole = "admin"

type User struct {
	ID           string
	Email        string
	PasswordHash string
	TOTPSecret   string
	DisplayName  string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type Session struct {
	ID                string
	UserID            string
	RefreshTokenHash  string
	DeviceFingerprint *string
	IPAddress         string
	Location          string
	UserAgent         string
	CreatedAt         time.Time
	ExpiresAt         time.Time
	Revoked           bool
	RevokedAt         *time.Time
}

// Challenge is the pending second-factor state between login and verify-2fa.
// It lives only in the ephemeral store.
type Challenge struct {
	ID          string    `json:"id"`
	UserID      string    `json:"userId"`
	Email       string    `json:"email"`
	DisplayName string    `json:"displayName"`
	ClientIP    string    `json:"clientIp"`
	Location    string    `json:"location"`
	UserAgent   string    `json:"userAgent"`
	CreatedAt   time.Time `json:"createdAt"`
}

// ClientInfo is the request metadata recorded alongside security events.
type ClientInfo struct {
	IPAddress string
	Location  string
	UserAgent string
}
