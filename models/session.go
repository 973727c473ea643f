package models

import "time"

// Session is the durable record of an authenticated session. The cache copy
// carries the current expiry deadline; this row is the record of final expiry
// and survives cache loss.
type Session struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Key       string    `gorm:"size:64;not null;uniqueIndex:uk_sessions_session_key;column:session_key" json:"-"` // Never serialize key
	UserID    uint      `gorm:"not null;index:idx_sessions_user_id" json:"user_id"`
	User      User      `gorm:"foreignKey:UserID;references:ID" json:"user,omitempty"`
	StartedAt time.Time `gorm:"default:CURRENT_TIMESTAMP" json:"started_at"`
	ExpiresAt time.Time `gorm:"not null;index:idx_sessions_expires_at" json:"expires_at"`
	Expired   *bool     `gorm:"default:false;index:idx_sessions_expired" json:"expired"`
}

// TableName returns the table name for Session
func (Session) TableName() string { return "sessions" }

// Touch pushes the expiry deadline forward by ttl from now (sliding expiry).
func (s *Session) Touch(ttl time.Duration) {
	s.ExpiresAt = time.Now().UTC().Add(ttl)
}

// IsExpired reports whether the session deadline has passed.
func (s *Session) IsExpired() bool {
	return time.Now().UTC().After(s.ExpiresAt)
}

// SessionFilter represents filter criteria for session queries
type SessionFilter struct {
	ID            *uint
	Key           *string
	UserID        *uint
	Expired       *bool
	ExpiresAfter  *time.Time
	ExpiresBefore *time.Time
}
