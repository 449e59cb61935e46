// Package model defines data structures for the chat platform.
package model

import (
	"time"
)

// User is the public profile view of an account.
type User struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Bio       string `json:"bio,omitempty"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

// UserRecord is the persisted account document. The credential hash never
// leaves the store/auth boundary.
type UserRecord struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	PasswordHash string    `json:"password_hash"`
	Bio          string    `json:"bio,omitempty"`
	AvatarURL    string    `json:"avatar_url,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// Public strips credential material from a stored record.
func (r *UserRecord) Public() User {
	return User{
		ID:        r.ID,
		Name:      r.Name,
		Bio:       r.Bio,
		AvatarURL: r.AvatarURL,
	}
}

// SignupRequest is the request to create a new account.
type SignupRequest struct {
	Name     string `json:"name"`
	Password string `json:"password"`
	Bio      string `json:"bio,omitempty"`
}

// LoginRequest is the request to exchange credentials for a token.
type LoginRequest struct {
	Name     string `json:"name"`
	Password string `json:"password"`
}

// LoginResponse carries the issued bearer token.
type LoginResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

// BioUpdateRequest is the request to update the caller's bio.
type BioUpdateRequest struct {
	Bio string `json:"bio"`
}
