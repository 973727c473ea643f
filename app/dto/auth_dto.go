package dto

import "time"

// LoginRequest carries the login credentials
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email,max=255"`
	Password string `json:"password" validate:"required,min=8,max=128"`
}

// LoginResponse returns the opaque session key and its deadline
type LoginResponse struct {
	SessionKey string    `json:"session_key"`
	ExpiresAt  time.Time `json:"expires_at"`
	Email      string    `json:"email"`
	FirstName  string    `json:"first_name"`
	LastName   string    `json:"last_name"`
}
