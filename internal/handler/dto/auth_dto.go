package dto

import "time"

// AdminCredentials is the part of every admin request body read by the auth middleware.
type AdminCredentials struct {
	AdminKey string `json:"admin_key"`
}

type LoginRequest struct {
	AdminKey string `json:"admin_key"`
}

type LoginResponse struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`
}
